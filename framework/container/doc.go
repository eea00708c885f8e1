// Package container resolves injection expressions into fully wired object
// graphs and owns the scopes those objects live in.
//
// # Overview
//
// Components are described once, in a registry.Registry, and requested by
// expression. The container walks a fixed precedence order for every
// expression: variables already bound, per-call context bindings, explicit
// factory methods, scope rebindings, a unique factory producing the type,
// and finally construction of the class itself.
//
// # Container Lifecycle
//
//  1. Describe: reg := registry.New(); reg.MustRegister(registry.NewClass(NewLogger).Name("Logger"))
//  2. Create:   c := container.New(reg, container.WithLogger(log))
//  3. Register providers: providers.Register(ctx, &MyProvider{})
//  4. Boot:     providers.Boot(ctx)
//  5. Resolve:  v, err := c.Get(ctx, "~IDBConn")
//  6. Tear down: c.Destroy(ctx)
//
// # Expressions
//
//	"Logger"            class by name
//	"~IDBConn"          the single class or factory satisfying an abstract type
//	"Logger@log1"       build once, then reuse through the scoped variable log1
//	"@@config"          process-global variable, survives Destroy
//	"?~cache"           optional; a miss returns the WithDefault value
//	"Factory::make"     factory method on a class
//	"@db::session"      factory method on the value of a variable
//	"drivers.*"         map of every built class under a namespace
//	"&drivers.*"        map of raw constructors
//
// # Scopes
//
//	req, _ := c.CreateScope("request-42")
//	_ = req.Bind("~IDBConn", "PgSQLConn", nil)
//	conn, _ := c.Get(ctx, "~IDBConn", container.InScope(req))
//	_ = c.Destroy(ctx, "request-42") // runs uninitializers, newest first
//
// # Contextual Binding
//
//	_ = scope.When("UserManager").Needs("@adminId").Give(1)
//	_ = scope.When("UserManager").Needs("~IDBConn").GiveExpr("PgSQLConn")
//
// # Service Providers
//
//	type HeavyProvider struct{ container.BaseProvider }
//
//	func (p *HeavyProvider) IsDeferred() bool   { return true }
//	func (p *HeavyProvider) Provides() []string { return []string{"Heavy"} }
//	func (p *HeavyProvider) Register(app *container.Container) error {
//	    _, err := app.Registry().Register(registry.NewClass(NewHeavy).Name("Heavy"))
//	    return err // only called the first time "Heavy" misses
//	}
package container
