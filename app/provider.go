package app

import (
	"context"
	"fmt"

	"github.com/km-arc/go-inject/framework/container"
	"github.com/km-arc/go-inject/framework/expr"
	"github.com/km-arc/go-inject/framework/providers"
	"github.com/km-arc/go-inject/framework/registry"
)

// drivers maps DB_DRIVER values to connection classes.
var drivers = map[string]string{
	"mysql": "MySQLConn",
	"pgsql": "PgSQLConn",
}

// ServiceProvider registers the demo components and binds "~IDBConn" in
// the global scope to the configured driver.
type ServiceProvider struct {
	container.BaseProvider

	Driver  string // "mysql" or "pgsql"
	AdminID int
}

func (p *ServiceProvider) Register(app *container.Container) error {
	logger := func(subject string) expr.Injection {
		return expr.Inject("~logger", map[string]any{"@subject": subject})
	}
	for _, b := range []*registry.ClassBuilder{
		registry.NewClass(NewLoggerFactory).
			Inject("?@@logger").
			Singleton().
			Provide("Named", "~logger", "?@subject"),
		registry.NewClass(NewMySQLConn).
			Types("IDBConn").
			Inject("@@dbconfig", logger("mysql")).
			ContextSingleton().
			Initializer("Open").
			Uninitializer("Close"),
		registry.NewClass(NewPgSQLConn).
			Types("IDBConn").
			Inject("@@dbconfig", logger("pgsql")).
			ContextSingleton().
			Initializer("Open").
			Uninitializer("Close"),
		registry.NewClass(NewRoleDAO).Inject("~IDBConn"),
		registry.NewClass(NewUserManager).Inject("~IDBConn", "@adminId", "RoleDAO", logger("users")),
	} {
		if _, err := app.Registry().Register(b); err != nil {
			return err
		}
	}
	return nil
}

func (p *ServiceProvider) Boot(ctx context.Context, app *container.Container) error {
	class, ok := drivers[p.Driver]
	if !ok {
		return fmt.Errorf("unknown DB driver %q", p.Driver)
	}
	global, err := app.GetScope()
	if err != nil {
		return err
	}
	if err := global.Bind("~IDBConn", class, nil); err != nil {
		return err
	}
	global.BindValue("adminId", p.AdminID)

	r, err := providers.Router(ctx, app)
	if err != nil {
		return err
	}
	r.Prefix("/users", NewUsersHandler(app).Routes)
	return nil
}
