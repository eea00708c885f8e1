package container_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-inject/framework/container"
	"github.com/km-arc/go-inject/framework/errs"
)

func loadScopes(t *testing.T) *container.Container {
	t.Helper()
	m, err := container.LoadManifest(filepath.Join("testdata", "scopes.yaml"))
	require.NoError(t, err)

	c := newContainer(t)
	require.NoError(t, c.ApplyManifest(m))
	return c
}

func TestManifest_Globals(t *testing.T) {
	c := loadScopes(t)

	v, ok := c.Global("region")
	require.True(t, ok)
	assert.Equal(t, "eu-west-1", v)

	v, ok = c.Global("journal")
	require.True(t, ok)
	assert.Equal(t, "shared", v)
}

func TestManifest_ConfiguresGlobalScopeInPlace(t *testing.T) {
	ctx := context.Background()
	c := loadScopes(t)

	assert.Equal(t, []string{"_global", "tenant-a", "tenant-a.request", "tenant-b"}, c.Scopes())

	name, err := c.Get(ctx, "@appName")
	require.NoError(t, err)
	assert.Equal(t, "demo", name)

	mgr, err := container.Resolve[*UserManager](ctx, c, "UserManager", container.InScopeNamed("tenant-b"))
	require.NoError(t, err)
	assert.Equal(t, "mysql", mgr.Conn.Driver(), "global rebinding reaches children")
	assert.Equal(t, 1, mgr.AdminID)
}

func TestManifest_BindWithExtraBindings(t *testing.T) {
	ctx := context.Background()
	c := loadScopes(t)

	mgr, err := container.Resolve[*UserManager](ctx, c, "@admin", container.InScopeNamed("tenant-a"))
	require.NoError(t, err)
	assert.Equal(t, 42, mgr.AdminID)
	assert.Equal(t, "mysql", mgr.Conn.Driver(), "inherits the global rebinding")
}

func TestManifest_ContextBindings(t *testing.T) {
	ctx := context.Background()
	c := loadScopes(t)

	mgr, err := container.Resolve[*UserManager](ctx, c, "UserManager", container.InScopeNamed("tenant-a.request"))
	require.NoError(t, err)
	assert.Equal(t, "pgsql", mgr.Conn.Driver())
	assert.Equal(t, 99, mgr.AdminID)
}

func TestManifest_Rejected(t *testing.T) {
	cases := map[string]string{
		"bad yaml":          "scopes: [",
		"missing name":      "scopes:\n  - base: _global\n",
		"bad name":          "scopes:\n  - name: \"a b\"\n",
		"self base":         "scopes:\n  - name: loop\n    base: loop\n",
		"bad bind source":   "scopes:\n  - name: s\n    binds:\n      - from: \"Logger::Named\"\n        to: Logger\n",
		"bad bind target":   "scopes:\n  - name: s\n    binds:\n      - from: \"~IDBConn\"\n        to: \"Logger::\"\n",
		"missing needs":     "scopes:\n  - name: s\n    contexts:\n      - target: UserManager\n        value: 1\n",
		"bad context expr":  "scopes:\n  - name: s\n    contexts:\n      - target: UserManager\n        needs: \"~IDBConn\"\n        expr: \"?\"\n",
		"bad global":        "globals:\n  \"a b\": 1\n",
		"global value name": "scopes:\n  - name: s\n    values:\n      \"@@x\": 1\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			m, err := container.ParseManifest([]byte(doc))
			assert.Nil(t, m)
			assert.Error(t, err)
		})
	}
}

func TestManifest_UnknownBase(t *testing.T) {
	m, err := container.ParseManifest([]byte("scopes:\n  - name: child\n    base: nowhere\n"))
	require.NoError(t, err)

	err = newContainer(t).ApplyManifest(m)
	assert.True(t, errs.Has(err, errs.CodeScopeNotFound))
}

func TestManifest_DuplicateScope(t *testing.T) {
	m, err := container.ParseManifest([]byte("scopes:\n  - name: twice\n  - name: twice\n"))
	require.NoError(t, err)

	err = newContainer(t).ApplyManifest(m)
	assert.True(t, errs.Has(err, errs.CodeDuplicateScope))
}
