package scope_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-inject/framework/errs"
	"github.com/km-arc/go-inject/framework/expr"
	"github.com/km-arc/go-inject/framework/scope"
)

func TestValues_WalkParentChain(t *testing.T) {
	root := scope.New("root", nil)
	child := scope.New("child", root)

	root.BindValue("dbconfig", "dsn")
	child.BindValue("@adminId", 1)

	v, ok := child.GetValue("@dbconfig")
	require.True(t, ok)
	assert.Equal(t, "dsn", v)

	_, ok = root.GetValue("adminId")
	assert.False(t, ok, "writes land in the local table")

	child.BindValue("dbconfig", "override")
	v, _ = child.GetValue("dbconfig")
	assert.Equal(t, "override", v)
	v, _ = root.GetValue("dbconfig")
	assert.Equal(t, "dsn", v)
}

func TestSingletons_WalkParentChain(t *testing.T) {
	root := scope.New("root", nil)
	child := scope.New("child", root)
	obj := &struct{ name string }{name: "root"}

	root.SetSingleton("Logger", obj)

	got, ok := child.GetSingleton("Logger")
	require.True(t, ok)
	assert.Same(t, obj, got)

	_, ok = root.GetSingleton("Other")
	assert.False(t, ok)
}

func TestBind_CanonicalKeysAndInheritance(t *testing.T) {
	root := scope.New("root", nil)
	child := scope.New("child", root)

	require.NoError(t, root.Bind("~Animal", "Dog", nil))
	require.NoError(t, child.Bind("@admin", "UserManager", map[string]any{"@adminId": 1}))

	b, ok := child.FindBind("~Animal")
	require.True(t, ok)
	assert.Equal(t, "Dog", b.Target)

	b, ok = child.FindBind("@admin")
	require.True(t, ok)
	assert.Equal(t, 1, b.Binds["@adminId"])

	_, ok = root.FindBind("@admin")
	assert.False(t, ok)
	_, ok = root.FindBind("")
	assert.False(t, ok)
}

func TestBind_RejectsMalformed(t *testing.T) {
	s := scope.New("s", nil)

	assert.ErrorIs(t, s.Bind("?x", "Dog", nil), errs.ErrMalformedExpression)
	assert.ErrorIs(t, s.Bind("~Animal", "::bad", nil), errs.ErrMalformedExpression)
	assert.ErrorIs(t, s.Bind("~Animal", "pets.*", nil), errs.ErrMalformedExpression)
	assert.ErrorIs(t, s.Bind("~Animal", "Dog", map[string]any{"a::b": 1}), errs.ErrMalformedExpression)
}

func TestContextBindings_ChildOverridesParent(t *testing.T) {
	root := scope.New("root", nil)
	child := scope.New("child", root)

	require.NoError(t, root.BindContext("UserManager", map[string]any{"@adminId": 1, "@subject": "root"}))
	require.NoError(t, child.When("?UserManager").Needs("@subject").Give("child"))
	require.NoError(t, child.When("UserManager").Needs("~IDBConn").GiveExpr("PgSQLConn"))

	got := child.FindContextBindings("UserManager")
	assert.Equal(t, 1, got["@adminId"])
	assert.Equal(t, "child", got["@subject"])
	assert.Equal(t, expr.Inject("PgSQLConn"), got["~IDBConn"])

	assert.Equal(t, "root", root.FindContextBindings("UserManager")["@subject"])
	assert.Nil(t, child.FindContextBindings("Other"))

	assert.Error(t, child.When("UserManager").Needs("@x").GiveExpr("?"))
}

func TestDestroy_RunsUninitializersLIFO(t *testing.T) {
	s := scope.New("s", nil)
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name // per-iteration copy; module targets go 1.21 loop semantics
		s.AddUninitializer(name, "Close", func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, s.Destroy(context.Background()))
	assert.Equal(t, []string{"third", "second", "first"}, order)
	assert.True(t, s.Destroyed())
}

func TestDestroy_BestEffortReturnsFirstError(t *testing.T) {
	s := scope.New("s", nil)
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	var ran []string

	s.AddUninitializer("a", "Close", func(context.Context) error { ran = append(ran, "a"); return errA })
	s.AddUninitializer("b", "Close", func(context.Context) error { ran = append(ran, "b"); return errB })
	s.AddUninitializer("p", "Close", func(context.Context) error { ran = append(ran, "p"); panic("boom") })

	err := s.Destroy(context.Background())

	assert.Equal(t, []string{"p", "b", "a"}, ran)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked: boom", "first failure in teardown order is surfaced")
}

func TestDestroy_ScopeReferred(t *testing.T) {
	root := scope.New("root", nil)
	child := scope.New("child", root)
	assert.Equal(t, 1, root.Refs())

	err := root.Destroy(context.Background())
	assert.ErrorIs(t, err, errs.ErrScopeReferred)
	assert.False(t, root.Destroyed())

	require.NoError(t, child.Destroy(context.Background()))
	assert.Equal(t, 0, root.Refs())
	assert.Nil(t, child.Parent())

	require.NoError(t, root.Destroy(context.Background()))
	assert.ErrorIs(t, root.Destroy(context.Background()), errs.ErrScopeDestroyed)
}

func TestDestroy_ClearsTables(t *testing.T) {
	s := scope.New("s", nil)
	s.BindValue("x", 1)
	s.SetSingleton("Logger", 1)
	require.NoError(t, s.Bind("~A", "B", nil))

	require.NoError(t, s.Destroy(context.Background()))

	_, ok := s.GetValue("x")
	assert.False(t, ok)
	_, ok = s.GetSingleton("Logger")
	assert.False(t, ok)
	_, ok = s.FindBind("~A")
	assert.False(t, ok)
}

func TestSnapshot(t *testing.T) {
	root := scope.New("root", nil)
	child := scope.New("req", root)
	child.BindValue("b", 1)
	child.BindValue("a", 2)
	child.SetSingleton("Logger", 1)
	require.NoError(t, child.Bind("~IDBConn", "MySQLConn", nil))
	child.AddUninitializer(1, "Close", func(context.Context) error { return nil })

	snap := child.Snapshot()

	assert.Equal(t, "req", snap.Name)
	assert.Equal(t, "root", snap.Parent)
	assert.Equal(t, []string{"a", "b"}, snap.Variables)
	assert.Equal(t, []string{"Logger"}, snap.Singletons)
	assert.Equal(t, map[string]string{"~IDBConn": "MySQLConn"}, snap.Binds)
	assert.Equal(t, 1, snap.Uninitializers)
	assert.Equal(t, 1, root.Snapshot().Refs)
}
