package expr

// Injection pairs an expression with extra context bindings visible only
// while that expression is resolved.
//
// It describes a constructor parameter, a property or a method argument, and
// it is also accepted as a context-binding value: a binding whose value is an
// Injection redirects the request to Injection.Expr instead of being used
// as-is.
//
//	registry.NewClass(NewUserManager).
//	    InjectWith(expr.Inject("~logger", map[string]any{"@subject": "users"}))
type Injection struct {
	Expr  string
	Binds map[string]any
}

// Inject builds an Injection. Multiple bind maps are merged left to right.
func Inject(expression string, binds ...map[string]any) Injection {
	inj := Injection{Expr: expression}
	for _, m := range binds {
		if len(m) == 0 {
			continue
		}
		if inj.Binds == nil {
			inj.Binds = make(map[string]any, len(m))
		}
		for k, v := range m {
			inj.Binds[k] = v
		}
	}
	return inj
}

// Compile parses the injection's expression.
func (i Injection) Compile() (*Target, error) {
	return ParseTarget(i.Expr)
}

// MergeBinds returns a new map holding base overlaid with over.
// Nil is returned when both are empty.
func MergeBinds(base, over map[string]any) map[string]any {
	if len(base) == 0 && len(over) == 0 {
		return nil
	}
	out := make(map[string]any, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}
