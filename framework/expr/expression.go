package expr

import (
	"strings"

	"github.com/km-arc/go-inject/framework/errs"
)

// ── Markers ───────────────────────────────────────────────────────────────────

const (
	markOptional    = "?"
	markConstructor = "&"
	markAbstract    = "~"
	markVar         = "@"
	markMethod      = "::"
	markWildcard    = ".*"
	wildcardMethod  = "*"
)

// ── Target ────────────────────────────────────────────────────────────────────

// Target is a compiled resolution-time expression.
//
//	"?~logger@log1"      optional abstract type bound to variable log1
//	"Cache::redis"       factory method redis on class Cache
//	"&drivers.*"         raw constructors of every class under drivers
//	"@@config"           process-global variable
type Target struct {
	// Text is the canonical rendering. Parsing Text yields an equal Target.
	Text string

	Optional    bool
	Constructor bool
	Abstract    bool

	// Type is the class name or abstract type, without the "~" marker.
	// For wildcard requests it is the namespace prefix.
	Type     string
	Wildcard bool

	// Var is the variable name, without the "@" markers.
	Var    string
	Global bool

	// Method is the factory method requested with "::".
	Method string
}

// ParseTarget compiles a resolution-time expression.
func ParseTarget(text string) (*Target, error) {
	t, err := scan(text)
	if err != nil {
		return nil, err
	}
	if err := t.validate(text); err != nil {
		return nil, err
	}
	t.Text = t.render()
	return t, nil
}

// MustParseTarget is like ParseTarget but panics on a malformed expression.
func MustParseTarget(text string) *Target {
	t, err := ParseTarget(text)
	if err != nil {
		panic(err)
	}
	return t
}

func scan(text string) (*Target, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errs.MalformedExpression(text, "empty expression")
	}

	s := text
	t := &Target{}

	if strings.HasPrefix(s, markOptional) {
		t.Optional = true
		s = s[1:]
	}
	if strings.HasPrefix(s, markConstructor) {
		t.Constructor = true
		s = s[1:]
	}
	if strings.HasPrefix(s, markAbstract) {
		t.Abstract = true
		s = s[1:]
	}

	if i := strings.Index(s, markMethod); i >= 0 {
		m := s[i+len(markMethod):]
		s = s[:i]
		switch {
		case m == wildcardMethod:
			t.Wildcard = true
		case isIdent(m):
			t.Method = m
		default:
			return nil, errs.MalformedExpression(text, "invalid method name "+quote(m))
		}
	}

	if i := strings.Index(s, markVar); i >= 0 {
		v := s[i+len(markVar):]
		s = s[:i]
		if strings.HasPrefix(v, markVar) {
			t.Global = true
			v = v[len(markVar):]
		}
		if !isVarPath(v) {
			return nil, errs.MalformedExpression(text, "invalid variable name "+quote(v))
		}
		t.Var = v
	}

	if strings.HasSuffix(s, markWildcard) {
		if t.Wildcard {
			return nil, errs.MalformedExpression(text, "wildcard given twice")
		}
		t.Wildcard = true
		s = strings.TrimSuffix(s, markWildcard)
		if s == "" {
			return nil, errs.MalformedExpression(text, "wildcard requires a namespace")
		}
	}

	if s != "" {
		if !IsDotted(s) {
			return nil, errs.MalformedExpression(text, "invalid type name "+quote(s))
		}
		t.Type = s
	}
	return t, nil
}

func (t *Target) validate(text string) error {
	switch {
	case t.Method != "" && t.Type == "" && t.Var == "":
		return errs.MalformedExpression(text, "factory method requires a receiver")
	case t.Type == "" && t.Var == "":
		return errs.MalformedExpression(text, "expression names neither a type nor a variable")
	case t.Abstract && t.Type == "":
		return errs.MalformedExpression(text, "abstract marker requires a type")
	case t.Wildcard && t.Type == "":
		return errs.MalformedExpression(text, "wildcard requires a namespace")
	case t.Wildcard && (t.Var != "" || t.Method != "" || t.Abstract):
		return errs.MalformedExpression(text, "wildcard cannot be combined with a variable, method or abstract type")
	case t.Constructor && (t.Type == "" || t.Abstract || t.Var != "" || t.Method != ""):
		return errs.MalformedExpression(text, "constructor request requires a plain class name or namespace")
	}
	return nil
}

func (t *Target) render() string {
	var b strings.Builder
	if t.Optional {
		b.WriteString(markOptional)
	}
	if t.Constructor {
		b.WriteString(markConstructor)
	}
	if t.Abstract {
		b.WriteString(markAbstract)
	}
	b.WriteString(t.Type)
	if t.Wildcard {
		b.WriteString(markWildcard)
	}
	if v := t.VarKey(); v != "" {
		b.WriteString(v)
	}
	if t.Method != "" {
		b.WriteString(markMethod)
		b.WriteString(t.Method)
	}
	return b.String()
}

// ── Keys ──────────────────────────────────────────────────────────────────────

// TypeKey returns the type part with its abstract marker ("~T" or "T").
func (t *Target) TypeKey() string {
	if t.Type == "" {
		return ""
	}
	if t.Abstract {
		return markAbstract + t.Type
	}
	return t.Type
}

// VarKey returns the variable part with its markers ("@v" or "@@v").
func (t *Target) VarKey() string {
	if t.Var == "" {
		return ""
	}
	if t.Global {
		return markVar + markVar + t.Var
	}
	return markVar + t.Var
}

// Receiver returns the expression of the object a factory method is called
// on. It is nil when no method was requested.
//
// When both a type and a variable are present the type is the receiver and
// the variable names the product: "Cache@hot::redis".
func (t *Target) Receiver() *Target {
	if t.Method == "" {
		return nil
	}
	r := &Target{}
	if t.Type != "" {
		r.Type, r.Abstract = t.Type, t.Abstract
	} else {
		r.Var, r.Global = t.Var, t.Global
	}
	r.Text = r.render()
	return r
}

// ProductVar returns the variable the result should be stored under, if any.
// A variable used as factory receiver does not name the product.
func (t *Target) ProductVar() (name string, global bool) {
	if t.Method != "" && t.Type == "" {
		return "", false
	}
	return t.Var, t.Global
}

// FactoryKey returns "Receiver::method", or "" when no method was requested.
func (t *Target) FactoryKey() string {
	if t.Method == "" {
		return ""
	}
	return t.Receiver().Text + markMethod + t.Method
}

// Required returns a copy of t without the optional marker.
func (t *Target) Required() *Target {
	cp := *t
	cp.Optional = false
	cp.Text = cp.render()
	return &cp
}

// WithoutVar returns a copy of t without its variable part.
func (t *Target) WithoutVar() *Target {
	cp := *t
	if cp.Method != "" && cp.Type == "" {
		return &cp
	}
	cp.Var, cp.Global = "", false
	cp.Text = cp.render()
	return &cp
}

// WithVar returns a copy of t whose product is stored under the given variable.
func (t *Target) WithVar(name string, global bool) *Target {
	cp := *t
	if cp.Method != "" && cp.Type == "" {
		return &cp
	}
	cp.Var, cp.Global = name, global
	cp.Text = cp.render()
	return &cp
}

func (t *Target) String() string { return t.Text }

// ── Source ────────────────────────────────────────────────────────────────────

// Source is a compiled registration-time expression: the left-hand side of a
// scope binding or a context binding key.
type Source struct {
	Text     string
	Abstract bool
	Type     string
	Var      string
	Global   bool
}

// ParseSource compiles a registration-time expression. Optional, constructor,
// wildcard and factory markers are rejected.
func ParseSource(text string) (*Source, error) {
	t, err := scan(text)
	if err != nil {
		return nil, err
	}
	switch {
	case t.Optional:
		return nil, errs.MalformedExpression(text, "optional marker is not allowed here")
	case t.Constructor:
		return nil, errs.MalformedExpression(text, "constructor marker is not allowed here")
	case t.Wildcard:
		return nil, errs.MalformedExpression(text, "wildcard is not allowed here")
	case t.Method != "":
		return nil, errs.MalformedExpression(text, "factory method is not allowed here")
	}
	if err := t.validate(text); err != nil {
		return nil, err
	}
	return &Source{
		Text:     t.render(),
		Abstract: t.Abstract,
		Type:     t.Type,
		Var:      t.Var,
		Global:   t.Global,
	}, nil
}

// TypeKey returns the type part with its abstract marker.
func (s *Source) TypeKey() string {
	if s.Type == "" {
		return ""
	}
	if s.Abstract {
		return markAbstract + s.Type
	}
	return s.Type
}

// VarKey returns the variable part with its markers.
func (s *Source) VarKey() string {
	if s.Var == "" {
		return ""
	}
	if s.Global {
		return markVar + markVar + s.Var
	}
	return markVar + s.Var
}

func (s *Source) String() string { return s.Text }

// ── Lexical helpers ───────────────────────────────────────────────────────────

// IsDotted reports whether s is a dot-separated path of identifiers.
func IsDotted(s string) bool {
	if s == "" {
		return false
	}
	for _, seg := range strings.Split(s, ".") {
		if !isIdent(seg) {
			return false
		}
	}
	return true
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func isVarPath(s string) bool {
	if s == "" {
		return false
	}
	for _, seg := range strings.Split(s, ".") {
		if seg == "" {
			return false
		}
		for _, r := range seg {
			if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
				return false
			}
		}
	}
	return true
}

func quote(s string) string { return `"` + s + `"` }
