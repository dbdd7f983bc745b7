// Package rc holds the rate control algorithm registry and the built-in
// algorithms.
package rc

import (
	"fmt"
	"sort"

	"github.com/airtap/ratectl/internal/station"
	"github.com/airtap/ratectl/internal/util"
)

// KernelAuto is the pseudo-algorithm name for leaving rate and power
// selection to the kernel. It attaches no control task; the dispatcher just
// forces both control axes to auto.
const KernelAuto = "kernel_auto"

// Factory builds an algorithm instance from its config options.
type Factory func(opts map[string]string, logger util.Logger) (station.Algorithm, error)

var registry = map[string]Factory{}

// Register makes an algorithm available under the given name. Called from
// init functions; duplicate names panic early.
func Register(name string, factory Factory) {
	if _, dup := registry[name]; dup {
		panic("rc: duplicate algorithm " + name)
	}
	registry[name] = factory
}

// New instantiates a registered algorithm.
func New(name string, opts map[string]string, logger util.Logger) (station.Algorithm, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown rate control algorithm %q (have %v)", name, Names())
	}
	return factory(opts, logger)
}

// Known reports whether name resolves to a registered algorithm or the
// kernel pseudo-algorithm.
func Known(name string) bool {
	if name == KernelAuto {
		return true
	}
	_, ok := registry[name]
	return ok
}

// Names lists the registered algorithms, sorted.
func Names() []string {
	names := make([]string, 0, len(registry)+1)
	names = append(names, KernelAuto)
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
