package container

import (
	"go.uber.org/zap"

	"github.com/km-arc/go-inject/framework/errs"
	"github.com/km-arc/go-inject/framework/expr"
	"github.com/km-arc/go-inject/framework/registry"
)

// resolveWildcard serves "ns.*" and "&ns.*". The result is a
// map[string]any keyed by fully qualified class name, covering
// sub-namespaces. Object mode skips private classes; constructor mode
// returns every constructor.
func (c *Container) resolveWildcard(bc *buildContext, t *expr.Target) (any, string, error) {
	var members []*registry.Class
	for _, cls := range c.registry.FindInNamespace(t.Type) {
		if len(bc.types) > 0 && !hasAnyType(cls, bc.types) {
			continue
		}
		members = append(members, cls)
	}
	if len(members) == 0 {
		return nil, "", errs.ClassNotFound(t.Required().Text).WithPath(bc.path)
	}

	out := make(map[string]any, len(members))
	if t.Constructor {
		for _, cls := range members {
			out[cls.Name] = cls.Constructor()
		}
		return out, kindConstructor, nil
	}

	member := bc.fork(nil)
	for _, cls := range members {
		if cls.Private {
			continue
		}
		v, err := c.resolveDependency(member, expr.Inject(cls.Name))
		if err != nil {
			return nil, "", err
		}
		out[cls.Name] = v
	}
	c.logger.Debug("wildcard resolved",
		zap.String("namespace", t.Type),
		zap.Int("members", len(out)),
	)
	return out, kindWildcard, nil
}

func hasAnyType(cls *registry.Class, types []string) bool {
	for _, typ := range types {
		if cls.HasType(typ) {
			return true
		}
	}
	return false
}
