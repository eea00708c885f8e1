package inspect_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-inject/framework/container"
	"github.com/km-arc/go-inject/framework/inspect"
	"github.com/km-arc/go-inject/framework/registry"
	"github.com/km-arc/go-inject/routing"
)

// ── fixtures ──────────────────────────────────────────────────────────────────

type IDBConn interface{ Driver() string }

type MySQLConn struct{}

func (*MySQLConn) Driver() string { return "mysql" }
func (*MySQLConn) Close()         {}

type PgSQLConn struct{}

func (*PgSQLConn) Driver() string { return "pgsql" }

type Logger struct{ Name string }

type LoggerFactory struct{}

func (*LoggerFactory) Named(subject string) *Logger { return &Logger{Name: subject} }

func newServer(t *testing.T) (*container.Container, *routing.Router) {
	t.Helper()
	reg := registry.New()
	reg.MustRegister(registry.NewClass(func() *MySQLConn { return &MySQLConn{} }).Types("IDBConn").Uninitializer("Close"))
	reg.MustRegister(registry.NewClass(func() *PgSQLConn { return &PgSQLConn{} }).Types("IDBConn").Deprecated("use MySQLConn"))
	reg.MustRegister(registry.NewClass(func() *LoggerFactory { return &LoggerFactory{} }).
		Singleton().
		Provide("Named", "~logger", "@subject"))

	c := container.New(reg)
	r := routing.New(nil)
	r.Prefix("/ioc", inspect.New(c).Routes)
	return c, r
}

func call(t *testing.T, r *routing.Router, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	var m map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &m), rr.Body.String())
	return rr, m
}

func names(t *testing.T, m map[string]any) []string {
	t.Helper()
	items, ok := m["data"].([]any)
	require.True(t, ok, "data should be a list: %v", m)
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.(map[string]any)["name"].(string))
	}
	return out
}

// ── /classes ──────────────────────────────────────────────────────────────────

func TestClasses_All(t *testing.T) {
	_, r := newServer(t)

	rr, m := call(t, r, http.MethodGet, "/ioc/classes", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"LoggerFactory", "MySQLConn", "PgSQLConn"}, names(t, m))
}

func TestClasses_ByType(t *testing.T) {
	_, r := newServer(t)

	rr, m := call(t, r, http.MethodGet, "/ioc/classes?type=~IDBConn", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"MySQLConn", "PgSQLConn"}, names(t, m))
}

func TestClasses_ByTypeRejectsMalformed(t *testing.T) {
	_, r := newServer(t)

	rr, m := call(t, r, http.MethodGet, "/ioc/classes?type=Logger::Named", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, m, "errors")
}

func TestClasses_ByPattern(t *testing.T) {
	_, r := newServer(t)

	rr, m := call(t, r, http.MethodGet, "/ioc/classes?pattern=SQL", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"MySQLConn", "PgSQLConn"}, names(t, m))

	rr, _ = call(t, r, http.MethodGet, "/ioc/classes?pattern=%5B", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestClass_Detail(t *testing.T) {
	_, r := newServer(t)

	rr, m := call(t, r, http.MethodGet, "/ioc/classes/LoggerFactory", "")
	require.Equal(t, http.StatusOK, rr.Code)

	data := m["data"].(map[string]any)
	assert.Equal(t, "LoggerFactory", data["name"])
	assert.Equal(t, true, data["singleton"])
	assert.Equal(t, map[string]any{"Named": "~logger"}, data["factories"])

	_, m = call(t, r, http.MethodGet, "/ioc/classes/MySQLConn", "")
	assert.Equal(t, "Close", m["data"].(map[string]any)["uninitializer"])

	_, m = call(t, r, http.MethodGet, "/ioc/classes/PgSQLConn", "")
	assert.Equal(t, "use MySQLConn", m["data"].(map[string]any)["deprecated"])
}

func TestClass_NotFound(t *testing.T) {
	_, r := newServer(t)

	rr, m := call(t, r, http.MethodGet, "/ioc/classes/Nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "CLASS_NOT_FOUND", m["code"])
}

// ── /scopes ───────────────────────────────────────────────────────────────────

func TestScopes(t *testing.T) {
	c, r := newServer(t)
	req, err := c.CreateScope("request")
	require.NoError(t, err)
	require.NoError(t, req.Bind("~IDBConn", "PgSQLConn", nil))
	req.BindValue("subject", "audit")

	rr, m := call(t, r, http.MethodGet, "/ioc/scopes", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []any{"_global", "request"}, m["data"])

	rr, m = call(t, r, http.MethodGet, "/ioc/scopes/request", "")
	require.Equal(t, http.StatusOK, rr.Code)
	snap := m["data"].(map[string]any)
	assert.Equal(t, "_global", snap["parent"])
	assert.Equal(t, []any{"subject"}, snap["variables"])
	assert.Equal(t, map[string]any{"~IDBConn": "PgSQLConn"}, snap["binds"])
}

func TestScope_NotFound(t *testing.T) {
	_, r := newServer(t)

	rr, m := call(t, r, http.MethodGet, "/ioc/scopes/gone", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "SCOPE_NOT_FOUND", m["code"])
}

func TestCreateScope(t *testing.T) {
	c, r := newServer(t)

	rr, m := call(t, r, http.MethodPost, "/ioc/scopes", `{"name":"tenant-a"}`)
	require.Equal(t, http.StatusCreated, rr.Code, m)
	assert.Equal(t, "_global", m["data"].(map[string]any)["parent"])
	assert.Equal(t, "no-cache, no-store, no-transform, must-revalidate, private, max-age=0", rr.Header().Get("Cache-Control"))

	rr, m = call(t, r, http.MethodPost, "/ioc/scopes", `{"name":"request","base":"tenant-a"}`)
	require.Equal(t, http.StatusCreated, rr.Code, m)
	assert.Equal(t, []string{"_global", "request", "tenant-a"}, c.Scopes())

	rr, m = call(t, r, http.MethodPost, "/ioc/scopes", `{"name":"tenant-a"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "DUPLICATE_SCOPE", m["code"])

	rr, m = call(t, r, http.MethodPost, "/ioc/scopes", `{"name":"x","base":"nowhere"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "SCOPE_NOT_FOUND", m["code"])
}

func TestCreateScope_Invalid(t *testing.T) {
	_, r := newServer(t)

	rr, m := call(t, r, http.MethodPost, "/ioc/scopes", `{"name":"a b"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, m["errors"], "name")

	req := httptest.NewRequest(http.MethodPost, "/ioc/scopes", strings.NewReader("name=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestDestroyScope(t *testing.T) {
	ctx := context.Background()
	c, r := newServer(t)
	tenant, err := c.CreateScope("tenant")
	require.NoError(t, err)
	_, err = c.CreateScope("request", "tenant")
	require.NoError(t, err)
	require.NoError(t, tenant.Bind("~IDBConn", "MySQLConn", nil))
	_, err = c.Get(ctx, "~IDBConn", container.InScopeNamed("request"))
	require.NoError(t, err)

	rr, m := call(t, r, http.MethodDelete, "/ioc/scopes/tenant", "")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "SCOPE_REFERRED", m["code"])

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/ioc/scopes/request", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, []string{"_global", "tenant"}, c.Scopes())

	rr, m = call(t, r, http.MethodDelete, "/ioc/scopes/gone", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "SCOPE_NOT_FOUND", m["code"])

	rr, _ = call(t, r, http.MethodDelete, "/ioc/scopes/_global", "")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

// ── /resolve ──────────────────────────────────────────────────────────────────

func TestResolve(t *testing.T) {
	c, r := newServer(t)
	req, err := c.CreateScope("request")
	require.NoError(t, err)
	require.NoError(t, req.Bind("~IDBConn", "MySQLConn", nil))

	rr, m := call(t, r, http.MethodPost, "/ioc/resolve", `{"expr":"~IDBConn","scope":"request"}`)
	require.Equal(t, http.StatusOK, rr.Code, m)
	assert.Equal(t, "*inspect_test.MySQLConn", m["data"].(map[string]any)["type"])

	// The uninitializer was queued on the request scope.
	require.NoError(t, c.Destroy(context.Background(), "request"))
}

func TestResolve_Ambiguous(t *testing.T) {
	_, r := newServer(t)

	rr, m := call(t, r, http.MethodPost, "/ioc/resolve", `{"expr":"~IDBConn"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "FACTORY_NOT_FOUND", m["code"])
	assert.Equal(t, []any{"MySQLConn", "PgSQLConn"}, m["candidates"])
}

func TestResolve_Invalid(t *testing.T) {
	_, r := newServer(t)

	rr, m := call(t, r, http.MethodPost, "/ioc/resolve", `{"expr":"Logger::","scope":"a b"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	errs := m["errors"].(map[string]any)
	assert.Contains(t, errs, "expr")
	assert.Contains(t, errs, "scope")
}

func TestResolve_BadBody(t *testing.T) {
	_, r := newServer(t)

	rr, _ := call(t, r, http.MethodPost, "/ioc/resolve", `{oops`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
