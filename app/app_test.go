package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/km-arc/go-inject/app"
	"github.com/km-arc/go-inject/framework/config"
	"github.com/km-arc/go-inject/framework/container"
	"github.com/km-arc/go-inject/framework/errs"
	"github.com/km-arc/go-inject/framework/providers"
	"github.com/km-arc/go-inject/framework/registry"
)

func boot(t *testing.T, driver string, log *zap.Logger) *container.Container {
	t.Helper()
	ctx := context.Background()
	if log == nil {
		log = zap.NewNop()
	}
	c := container.New(registry.New())
	reg := container.NewProviderRegistry(c)
	for _, p := range []container.ServiceProvider{
		&providers.ConfigServiceProvider{Config: &config.Config{DB: config.DBConfig{Driver: driver, Host: "db", Port: "5432"}}},
		&providers.LoggingServiceProvider{Logger: log},
		&providers.RoutingServiceProvider{},
		&app.ServiceProvider{Driver: driver, AdminID: 3},
	} {
		require.NoError(t, reg.Register(ctx, p))
	}
	require.NoError(t, reg.Boot(ctx))
	return c
}

func show(t *testing.T, c *container.Container, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	r, err := providers.Router(context.Background(), c)
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))

	var m map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &m), rr.Body.String())
	return rr, m
}

// ── Components ───────────────────────────────────────────────────────────────

func TestUserManager_UsesConfiguredDriver(t *testing.T) {
	ctx := context.Background()
	for _, driver := range []string{"mysql", "pgsql"} {
		t.Run(driver, func(t *testing.T) {
			c := boot(t, driver, nil)

			mgr, err := container.Resolve[*app.UserManager](ctx, c, "UserManager")
			require.NoError(t, err)
			assert.Equal(t, 3, mgr.AdminID())

			v, err := mgr.Describe(ctx, 2)
			require.NoError(t, err)
			assert.Equal(t, driver, v.Driver)
			assert.Equal(t, []string{"reader", "writer"}, v.Roles)
			assert.False(t, v.Admin)
		})
	}
}

func TestConnection_SharedWithinOneResolution(t *testing.T) {
	ctx := context.Background()
	c := boot(t, "mysql", nil)
	req, err := c.CreateScope("request")
	require.NoError(t, err)

	_, err = c.Get(ctx, "UserManager", container.InScope(req))
	require.NoError(t, err)
	assert.Equal(t, 1, req.Snapshot().Uninitializers, "one connection per Get, closed with the scope")

	conn, err := container.Resolve[*app.MySQLConn](ctx, c, "MySQLConn", container.InScope(req))
	require.NoError(t, err)
	require.NoError(t, c.Destroy(ctx, "request"))
	assert.True(t, conn.Closed())
}

func TestLoggerFactory_NamesBySubject(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	c := boot(t, "pgsql", zap.New(core))

	mgr, err := container.Resolve[*app.UserManager](context.Background(), c, "UserManager")
	require.NoError(t, err)
	_, err = mgr.Describe(context.Background(), 1)
	require.NoError(t, err)

	opened := logs.FilterMessage("connection opened").All()
	require.Len(t, opened, 1)
	assert.Equal(t, "pgsql", opened[0].LoggerName)
	assert.Equal(t, "pgsql://db:5432", opened[0].ContextMap()["dsn"])

	described := logs.FilterMessage("user described").All()
	require.Len(t, described, 1)
	assert.Equal(t, "users", described[0].LoggerName)
}

func TestConnection_ClosedRefusesQueries(t *testing.T) {
	conn := app.NewMySQLConn(config.DBConfig{}, nil)
	_, err := conn.Roles(context.Background(), 1)
	assert.ErrorIs(t, err, app.ErrClosed)
	assert.ErrorIs(t, conn.Close(), app.ErrClosed)
}

func TestServiceProvider_UnknownDriver(t *testing.T) {
	ctx := context.Background()
	c := container.New(registry.New())
	reg := container.NewProviderRegistry(c)
	require.NoError(t, reg.Register(ctx, &providers.RoutingServiceProvider{}))
	require.NoError(t, reg.Register(ctx, &app.ServiceProvider{Driver: "oracle"}))

	assert.ErrorContains(t, reg.Boot(ctx), `unknown DB driver "oracle"`)
}

// ── HTTP ─────────────────────────────────────────────────────────────────────

func TestUsersHandler_Show(t *testing.T) {
	c := boot(t, "mysql", nil)

	rr, m := show(t, c, "/users/1")
	require.Equal(t, http.StatusOK, rr.Code, m)
	data := m["data"].(map[string]any)
	assert.Equal(t, true, data["admin"])
	assert.Equal(t, "mysql", data["driver"])
	assert.Equal(t, []any{"admin", "reader"}, data["roles"])

	_, m = show(t, c, "/users/3")
	assert.Equal(t, true, m["data"].(map[string]any)["admin"], "@adminId is 3")

	assert.Equal(t, []string{container.DefaultGlobalScope}, c.Scopes(), "request scopes are destroyed")
}

func TestUsersHandler_TenantScope(t *testing.T) {
	c := boot(t, "mysql", nil)
	tenant, err := c.CreateScope("tenant-b")
	require.NoError(t, err)
	require.NoError(t, tenant.Bind("~IDBConn", "PgSQLConn", nil))
	tenant.BindValue("adminId", 2)

	rr, m := show(t, c, "/users/2?tenant=tenant-b")
	require.Equal(t, http.StatusOK, rr.Code, m)
	data := m["data"].(map[string]any)
	assert.Equal(t, "pgsql", data["driver"])
	assert.Equal(t, true, data["admin"])
}

func TestUsersHandler_Errors(t *testing.T) {
	c := boot(t, "mysql", nil)

	rr, _ := show(t, c, "/users/abc")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, m := show(t, c, "/users/9")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "user 9: no such user", m["message"])

	rr, m = show(t, c, "/users/1?tenant=nowhere")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, string(errs.CodeScopeNotFound), m["code"])
}
