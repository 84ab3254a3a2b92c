package resolver

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Sternrassler/lims-resolver/pkg/entity"
)

// registered is the type-erased view of a Resolver held by a Registry.
type registered interface {
	Type() entity.Type
	Pending() int
	Close()
}

// Registry holds one Resolver per entity type.
type Registry struct {
	mu        sync.RWMutex
	resolvers map[entity.Type]registered
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		resolvers: make(map[entity.Type]registered),
	}
}

// Register adds r under its entity type.
func Register[K comparable, V any](reg *Registry, r *Resolver[K, V]) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, ok := reg.resolvers[r.Type()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateType, r.Type())
	}
	reg.resolvers[r.Type()] = r
	return nil
}

// Lookup returns the resolver registered for typ.
func Lookup[K comparable, V any](reg *Registry, typ entity.Type) (*Resolver[K, V], error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	found, ok := reg.resolvers[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, typ)
	}
	r, ok := found.(*Resolver[K, V])
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T", ErrTypeMismatch, typ, found)
	}
	return r, nil
}

// Types returns the registered entity types in sorted order.
func (reg *Registry) Types() []entity.Type {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	types := make([]entity.Type, 0, len(reg.resolvers))
	for t := range reg.resolvers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Pending returns the queued id count per registered type.
func (reg *Registry) Pending() map[entity.Type]int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	out := make(map[entity.Type]int, len(reg.resolvers))
	for t, r := range reg.resolvers {
		out[t] = r.Pending()
	}
	return out
}

// Close closes every registered resolver.
func (reg *Registry) Close() {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	var wg sync.WaitGroup
	for _, r := range reg.resolvers {
		wg.Add(1)
		go func(r registered) {
			defer wg.Done()
			r.Close()
		}(r)
	}
	wg.Wait()
}
