// Package inspect serves a JSON view of the registry and the live scopes,
// a resolve endpoint for trying expressions, and scope administration.
//
//	GET    /classes               every class, ?type=~IDBConn or ?pattern=^plugins\.
//	GET    /classes/{name}        one class
//	GET    /scopes                live scope names
//	GET    /scopes/{name}         scope snapshot
//	POST   /scopes                {"name": "tenant-a", "base": ""}
//	DELETE /scopes/{name}         destroy a scope, running its uninitializers
//	POST   /resolve               {"expr": "~IDBConn", "scope": "request"}
package inspect

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/km-arc/go-inject/framework/container"
	"github.com/km-arc/go-inject/framework/errs"
	"github.com/km-arc/go-inject/framework/registry"
	"github.com/km-arc/go-inject/framework/validation"
	gohttp "github.com/km-arc/go-inject/http"
	"github.com/km-arc/go-inject/routing"
)

// ResolveTimeout bounds a single /resolve call.
const ResolveTimeout = 5 * time.Second

// Handler serves the introspection routes.
type Handler struct {
	c *container.Container
}

// New creates a Handler over c.
func New(c *container.Container) *Handler {
	return &Handler{c: c}
}

// Routes registers the endpoints on r. r must not have routes yet.
func (h *Handler) Routes(r *routing.Router) {
	r.Middleware(middleware.NoCache)

	r.Get("/classes", h.Classes)
	r.Get("/classes/{name}", h.Class)
	r.Get("/scopes", h.Scopes)
	r.Get("/scopes/{name}", h.Scope)
	r.Post("/resolve", h.Resolve)

	r.Group(func(admin *routing.Router) {
		admin.Middleware(middleware.AllowContentType("application/json"))
		admin.Post("/scopes", h.CreateScope)
		admin.Delete("/scopes/{name}", h.DestroyScope)
	})
}

// ── Views ────────────────────────────────────────────────────────────────────

// ClassView is the JSON form of a registry.Class.
type ClassView struct {
	Name             string         `json:"name"`
	GoType           string         `json:"goType,omitempty"`
	Types            []string       `json:"types,omitempty"`
	Params           []string       `json:"params,omitempty"`
	Properties       map[string]any `json:"properties,omitempty"`
	Factories        map[string]any `json:"factories,omitempty"`
	Initializer      string         `json:"initializer,omitempty"`
	Uninitializer    string         `json:"uninitializer,omitempty"`
	Singleton        bool           `json:"singleton,omitempty"`
	ContextSingleton bool           `json:"contextSingleton,omitempty"`
	Private          bool           `json:"private,omitempty"`
	Deprecated       string         `json:"deprecated,omitempty"`
}

func viewOf(cls *registry.Class) ClassView {
	v := ClassView{
		Name:             cls.Name,
		Types:            cls.Types,
		Singleton:        cls.Singleton,
		ContextSingleton: cls.ContextSingleton,
		Private:          cls.Private,
		Deprecated:       cls.Deprecated,
	}
	if cls.GoType != nil {
		v.GoType = cls.GoType.String()
	}
	for _, p := range cls.Params {
		v.Params = append(v.Params, p.Expr)
	}
	if len(cls.Properties) > 0 {
		v.Properties = make(map[string]any, len(cls.Properties))
		for _, p := range cls.Properties {
			v.Properties[p.Field] = p.Injection.Expr
		}
	}
	if len(cls.Factories) > 0 {
		v.Factories = make(map[string]any, len(cls.Factories))
		for _, m := range cls.Factories {
			v.Factories[m.Name] = m.Product
		}
	}
	if cls.Initializer != nil {
		v.Initializer = cls.Initializer.Name
	}
	if cls.Uninitializer != nil {
		v.Uninitializer = cls.Uninitializer.Name
	}
	return v
}

// ── Handlers ─────────────────────────────────────────────────────────────────

// Classes lists classes, optionally filtered by abstract type or name
// pattern.
func (h *Handler) Classes(w http.ResponseWriter, r *http.Request) {
	req, res := gohttp.NewRequest(r), gohttp.NewResponse(w)

	var found map[string]*registry.Class
	switch typ, pattern := req.Query("type"), req.Query("pattern"); {
	case typ != "":
		if err := validation.Make(map[string]string{"type": typ}, validation.Rules{
			"type": "source",
		}).Err(); err != nil {
			res.Failure(err)
			return
		}
		found = h.c.GetClassesByType(typ)
	case pattern != "":
		re, err := regexp.Compile(pattern)
		if err != nil {
			res.Error(http.StatusBadRequest, err.Error())
			return
		}
		found = h.c.GetClassesByPattern(re)
	default:
		found = make(map[string]*registry.Class)
		for _, name := range h.c.Registry().Names() {
			if cls, err := h.c.Registry().Get(name); err == nil {
				found[name] = cls
			}
		}
	}

	views := make([]ClassView, 0, len(found))
	for _, cls := range found {
		views = append(views, viewOf(cls))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })
	res.Success(views)
}

// Class shows one class.
func (h *Handler) Class(w http.ResponseWriter, r *http.Request) {
	req, res := gohttp.NewRequest(r), gohttp.NewResponse(w)

	cls, err := h.c.Registry().Get(req.RouteParam("name"))
	if err != nil {
		res.Failure(err)
		return
	}
	res.Success(viewOf(cls))
}

// Scopes lists the live scopes.
func (h *Handler) Scopes(w http.ResponseWriter, _ *http.Request) {
	gohttp.NewResponse(w).Success(h.c.Scopes())
}

// Scope shows the local tables of one scope.
func (h *Handler) Scope(w http.ResponseWriter, r *http.Request) {
	req, res := gohttp.NewRequest(r), gohttp.NewResponse(w)

	s, err := h.c.GetScope(req.RouteParam("name"))
	if err != nil {
		res.Failure(err)
		return
	}
	res.Success(s.Snapshot())
}

type scopeRequest struct {
	Name string `json:"name"`
	Base string `json:"base"`
}

// CreateScope creates a scope under base, or under the global scope.
func (h *Handler) CreateScope(w http.ResponseWriter, r *http.Request) {
	req, res := gohttp.NewRequest(r), gohttp.NewResponse(w)

	var body scopeRequest
	if err := req.Bind(&body); err != nil {
		res.Error(http.StatusBadRequest, err.Error())
		return
	}
	v := validation.Make(map[string]string{
		"name": body.Name,
		"base": body.Base,
	}, validation.Rules{
		"name": "required|alpha_dash|max:128|different:base",
		"base": "nullable|alpha_dash|max:128",
	})
	if v.Fails() {
		res.ValidationError(v.Errors())
		return
	}

	s, err := h.c.CreateScope(body.Name, body.Base)
	if err != nil {
		res.Failure(err)
		return
	}
	h.c.Logger().Info("scope created over http", zap.String("scope", body.Name))
	res.Created(s.Snapshot())
}

// DestroyScope destroys a scope and runs its uninitializers. The global
// scope is refused.
func (h *Handler) DestroyScope(w http.ResponseWriter, r *http.Request) {
	req, res := gohttp.NewRequest(r), gohttp.NewResponse(w)

	name := req.RouteParam("name")
	if global, err := h.c.GetScope(); err == nil && global.Name() == name {
		res.Error(http.StatusConflict, "the global scope cannot be destroyed")
		return
	}
	if err := h.c.Destroy(context.WithoutCancel(r.Context()), name); err != nil {
		res.Failure(err)
		return
	}
	h.c.Logger().Info("scope destroyed over http", zap.String("scope", name))
	res.NoContent()
}

type resolveRequest struct {
	Expr  string `json:"expr"`
	Scope string `json:"scope"`
}

// Resolve resolves an expression and reports the Go type of the result.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	req, res := gohttp.NewRequest(r), gohttp.NewResponse(w)

	var body resolveRequest
	if err := req.Bind(&body); err != nil {
		res.Error(http.StatusBadRequest, err.Error())
		return
	}
	v := validation.Make(map[string]string{
		"expr":  body.Expr,
		"scope": body.Scope,
	}, validation.Rules{
		"expr":  "required|expression",
		"scope": "nullable|alpha_dash",
	})
	if v.Fails() {
		res.ValidationError(v.Errors())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), ResolveTimeout)
	defer cancel()

	got, err := h.c.Get(ctx, body.Expr, container.InScopeNamed(body.Scope))
	if err != nil {
		h.c.Logger().Debug("inspect resolve failed",
			zap.String("expr", body.Expr),
			zap.String("code", string(errs.CodeOf(err))),
		)
		res.Failure(err)
		return
	}
	res.Success(map[string]any{
		"expr":  body.Expr,
		"scope": body.Scope,
		"type":  fmt.Sprintf("%T", got),
	})
}
