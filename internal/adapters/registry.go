package adapters

import (
	"fmt"
	"sort"
	"strings"

	"github.com/coltonbh/qcop/internal/domain/calc"
	"github.com/coltonbh/qcop/internal/ports"
)

// Registry maps program names to their adapters.
type Registry struct {
	adapters map[string]ports.Adapter
}

// NewRegistry builds a registry from the given adapters. Nil adapters, empty
// program names, and duplicate registrations are construction errors.
func NewRegistry(adapters ...ports.Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[string]ports.Adapter, len(adapters))}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds one adapter under its program name.
func (r *Registry) Register(a ports.Adapter) error {
	if a == nil {
		return fmt.Errorf("cannot register nil adapter")
	}
	name := a.Program()
	if name == "" {
		return fmt.Errorf("adapter has empty program name")
	}
	if _, dup := r.adapters[name]; dup {
		return fmt.Errorf("duplicate adapter for program %q", name)
	}
	r.adapters[name] = a
	return nil
}

// Lookup returns the adapter for program. An unknown program yields a
// *calc.ComputeError of kind ErrAdapterNotFound naming the registered
// programs.
func (r *Registry) Lookup(program string) (ports.Adapter, error) {
	if a, ok := r.adapters[program]; ok {
		return a, nil
	}
	return nil, calc.NewComputeError(program, calc.ErrAdapterNotFound,
		fmt.Sprintf("no adapter registered for program %q; registered programs: %s",
			program, strings.Join(r.Programs(), ", ")), nil)
}

// Programs returns the registered program names, sorted.
func (r *Registry) Programs() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolver exposes the registry as the lookup function driver adapters use
// for nested invocations.
func (r *Registry) Resolver() ports.Resolver {
	return r.Lookup
}
