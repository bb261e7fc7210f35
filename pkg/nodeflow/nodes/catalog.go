package nodes

import (
	"fmt"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/config"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/registry"
)

// Factory builds a node from its configuration parameters.
type Factory func(params config.Config) (*nodeflow.Node, error)

// Catalog maps model names to factories. The built-in kinds are registered
// at init; applications may add their own.
var Catalog = registry.New[string, Factory]()

func init() {
	Catalog.Register("Const", func(p config.Config) (*nodeflow.Node, error) {
		v, _ := p.Value("value")
		return NewConst(v, p.String("type", "")).Node, nil
	})
	Catalog.Register("Square", func(config.Config) (*nodeflow.Node, error) {
		return NewSquare[float64](), nil
	})
	Catalog.Register("Negate", func(config.Config) (*nodeflow.Node, error) {
		return NewNegate[float64](), nil
	})
	Catalog.Register("Display", func(config.Config) (*nodeflow.Node, error) {
		return NewDisplay().Node, nil
	})
	Catalog.Register("Formula", func(p config.Config) (*nodeflow.Node, error) {
		f, err := NewFormula(p.String("expression", ""), stringList(p, "vars"))
		if err != nil {
			return nil, err
		}
		return f.Node, nil
	})
	Catalog.Register("JSONQuery", func(p config.Config) (*nodeflow.Node, error) {
		return NewJSONQuery(p.String("path", "@this")), nil
	})
	Catalog.Register("Fail", func(config.Config) (*nodeflow.Node, error) {
		return NewFail(nil), nil
	})
}

// New builds a node of the given model from the catalog.
func New(model string, params config.Config) (*nodeflow.Node, error) {
	factory, ok := Catalog.Get(model)
	if !ok {
		return nil, fmt.Errorf("unknown node model %q", model)
	}
	n, err := factory(params)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", model, err)
	}
	return n, nil
}

func stringList(p config.Config, key string) []string {
	raw, _ := p.Value(key)
	items, _ := raw.([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
