package container

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/km-arc/go-inject/framework/scope"
	"github.com/km-arc/go-inject/framework/validation"
)

// ── Manifest ──────────────────────────────────────────────────────────────────

// Manifest declares globals and scopes in YAML:
//
//	globals:
//	  appName: demo
//	scopes:
//	  - name: tenant-a
//	    values:
//	      adminId: 1
//	    binds:
//	      - from: "~IDBConn"
//	        to: PgSQLConn
//	    contexts:
//	      - target: UserManager
//	        needs: "@adminId"
//	        value: 7
//	  - name: request
//	    base: tenant-a
type Manifest struct {
	Globals map[string]any  `yaml:"globals"`
	Scopes  []ScopeManifest `yaml:"scopes"`
}

// ScopeManifest describes one scope. Naming the global scope configures it
// in place instead of creating it. Value names are scoped variables; "@@"
// names belong under globals.
type ScopeManifest struct {
	Name     string            `yaml:"name"`
	Base     string            `yaml:"base"`
	Values   map[string]any    `yaml:"values"`
	Binds    []BindManifest    `yaml:"binds"`
	Contexts []ContextManifest `yaml:"contexts"`
}

// BindManifest is a scope rebinding, see scope.Scope.Bind.
type BindManifest struct {
	From string         `yaml:"from"`
	To   string         `yaml:"to"`
	With map[string]any `yaml:"with"`
}

// ContextManifest is a context binding. Expr, when set, redirects the
// dependency; otherwise Value is given as is.
type ContextManifest struct {
	Target string `yaml:"target"`
	Needs  string `yaml:"needs"`
	Value  any    `yaml:"value"`
	Expr   string `yaml:"expr"`
}

// ParseManifest decodes and validates a YAML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return ParseManifest(data)
}

// Validate checks every entry of the manifest.
func (m *Manifest) Validate() error {
	for name := range m.Globals {
		if err := validation.Make(map[string]string{"global": name}, validation.Rules{
			"global": "required|variable",
		}).Err(); err != nil {
			return fmt.Errorf("manifest global %q: %w", name, err)
		}
	}
	for i, s := range m.Scopes {
		if err := s.validate(); err != nil {
			return fmt.Errorf("manifest scope #%d %q: %w", i, s.Name, err)
		}
	}
	return nil
}

func (s *ScopeManifest) validate() error {
	if err := validation.Make(map[string]string{
		"name": s.Name,
		"base": s.Base,
	}, validation.Rules{
		"name": "required|alpha_dash|max:128|different:base",
		"base": "nullable|alpha_dash|max:128",
	}).Err(); err != nil {
		return err
	}
	for name := range s.Values {
		if err := validation.Make(map[string]string{"value": name}, validation.Rules{
			"value": "required|variable:scoped",
		}).Err(); err != nil {
			return err
		}
	}
	for _, b := range s.Binds {
		if err := validation.Make(map[string]string{
			"from": b.From,
			"to":   b.To,
		}, validation.Rules{
			"from": "required|source",
			"to":   "required|expression",
		}).Err(); err != nil {
			return err
		}
	}
	for _, cb := range s.Contexts {
		if err := validation.Make(map[string]string{
			"target": cb.Target,
			"needs":  cb.Needs,
			"expr":   cb.Expr,
		}, validation.Rules{
			"target": "required|expression",
			"needs":  "required|source",
			"expr":   "nullable|expression",
		}).Err(); err != nil {
			return err
		}
	}
	return nil
}

// ── Apply ─────────────────────────────────────────────────────────────────────

// ApplyManifest publishes the manifest's globals and creates its scopes in
// order. A scope's base must be the global scope or appear earlier.
func (c *Container) ApplyManifest(m *Manifest) error {
	for name, v := range m.Globals {
		c.SetGlobal(name, v)
	}
	for _, sm := range m.Scopes {
		s, err := c.manifestScope(sm)
		if err != nil {
			return err
		}
		for name, v := range sm.Values {
			s.BindValue(name, v)
		}
		for _, b := range sm.Binds {
			if err := s.Bind(b.From, b.To, b.With); err != nil {
				return fmt.Errorf("scope %q: %w", sm.Name, err)
			}
		}
		for _, cb := range sm.Contexts {
			if err := giveContext(s, cb); err != nil {
				return fmt.Errorf("scope %q: %w", sm.Name, err)
			}
		}
		c.logger.Info("manifest scope applied",
			zap.String("scope", sm.Name),
			zap.Int("values", len(sm.Values)),
			zap.Int("binds", len(sm.Binds)),
			zap.Int("contexts", len(sm.Contexts)),
		)
	}
	return nil
}

func (c *Container) manifestScope(sm ScopeManifest) (*scope.Scope, error) {
	if sm.Name == c.globalName {
		return c.GetScope()
	}
	return c.CreateScope(sm.Name, sm.Base)
}

func giveContext(s *scope.Scope, cb ContextManifest) error {
	if cb.Expr != "" {
		return s.When(cb.Target).Needs(cb.Needs).GiveExpr(cb.Expr)
	}
	return s.When(cb.Target).Needs(cb.Needs).Give(cb.Value)
}
