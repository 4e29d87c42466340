// Package strategies provides the built-in momentum strategies and the
// static registry the tuner and CLI create them through.
package strategies

import (
	"fmt"
	"sort"

	"github.com/aristath/momentum-lab/internal/domain"
)

// Factory builds a strategy from a parameter map
type Factory func(params map[string]interface{}) (domain.Strategy, error)

var registry = make(map[string]Factory)

// Register adds a strategy factory under an identifier. Registration happens
// statically at start-up; there is no runtime discovery.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// Create instantiates a registered strategy with the given parameters
func Create(name string, params map[string]interface{}) (domain.Strategy, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q, available: %v", name, Available())
	}
	return factory(params)
}

// Available returns the registered strategy identifiers, sorted
func Available() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("dual_momentum", NewDualMomentum)
	Register("rsi_momentum", NewRSIMomentum)
}
