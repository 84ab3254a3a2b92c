// Package refs binds one resolver per LIMS entity type to a backend client.
//
// Views render references through the accessor functions:
//
//	name := refs.Sample(r, row.SampleID, func(s entity.Sample) string { return s.Name }, "loading")
//
// A reference that is not loaded yet renders the fallback and is fetched in
// the next batch; callers re-render when the resolver's flush hook fires.
package refs

import (
	"fmt"

	"github.com/Sternrassler/lims-resolver/pkg/cache"
	"github.com/Sternrassler/lims-resolver/pkg/client"
	"github.com/Sternrassler/lims-resolver/pkg/entity"
	"github.com/Sternrassler/lims-resolver/pkg/resolver"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options configures New.
type Options struct {
	// Resolver is applied to every entity type.
	Resolver resolver.Config

	// Store enables the shared cache layer in front of the backend. Nil
	// disables it.
	Store cache.Store

	// Logger is the parent logger; each resolver adds its entity type.
	Logger *zerolog.Logger

	// ResolverOptions are passed to every resolver (flush hooks, clocks).
	ResolverOptions []resolver.Option
}

// Refs holds the resolvers of the LIMS domain.
type Refs struct {
	Samples     *resolver.Resolver[int64, entity.Sample]
	Containers  *resolver.Resolver[int64, entity.Container]
	Projects    *resolver.Resolver[int64, entity.Project]
	Runs        *resolver.Resolver[int64, entity.Run]
	Individuals *resolver.Resolver[int64, entity.Individual]

	registry *resolver.Registry
	bindings map[entity.Type]binding
}

// binding is the type-erased surface of one resolver, used by generic
// callers such as the HTTP proxy.
type binding struct {
	lookup  func(id int64) entity.Record[any]
	request func(ids ...int64)
}

// New creates the resolvers for every supported entity type.
func New(c *client.Client, opts Options) (*Refs, error) {
	if c == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if err := opts.Resolver.Validate(); err != nil {
		return nil, fmt.Errorf("resolver config: %w", err)
	}

	logger := log.With().Str("component", "refs").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	r := &Refs{
		registry: resolver.NewRegistry(),
		bindings: make(map[entity.Type]binding),
	}

	var err error
	if r.Samples, err = bind(r, c, entity.TypeSample, entity.Sample.EntityID, opts, logger); err != nil {
		return nil, err
	}
	if r.Containers, err = bind(r, c, entity.TypeContainer, entity.Container.EntityID, opts, logger); err != nil {
		return nil, err
	}
	if r.Projects, err = bind(r, c, entity.TypeProject, entity.Project.EntityID, opts, logger); err != nil {
		return nil, err
	}
	if r.Runs, err = bind(r, c, entity.TypeRun, entity.Run.EntityID, opts, logger); err != nil {
		return nil, err
	}
	if r.Individuals, err = bind(r, c, entity.TypeIndividual, entity.Individual.EntityID, opts, logger); err != nil {
		return nil, err
	}

	logger.Info().Strs("types", typeNames(r.registry.Types())).Msg("Resolvers registered")
	return r, nil
}

func bind[V any](r *Refs, c *client.Client, typ entity.Type, key func(V) int64, opts Options, logger zerolog.Logger) (*resolver.Resolver[int64, V], error) {
	var lister resolver.Lister[int64, V] = client.NewLister[V](c, typ)
	if opts.Store != nil {
		lister = cache.NewCachingLister[V](typ, lister, key, opts.Store, logger.With().Str("component", "cache").Logger())
	}

	resolverOpts := append([]resolver.Option{resolver.WithLogger(logger)}, opts.ResolverOptions...)
	res := resolver.New[int64, V](typ, lister, key, nil, opts.Resolver, resolverOpts...)

	if err := resolver.Register(r.registry, res); err != nil {
		res.Close()
		return nil, err
	}

	r.bindings[typ] = binding{
		lookup: func(id int64) entity.Record[any] {
			res.Get(id)
			rec := res.Record(id)
			out := entity.Record[any]{Status: rec.Status, Err: rec.Err, Attempts: rec.Attempts}
			if rec.Status == entity.StatusLoaded {
				out.Value = rec.Value
			}
			return out
		},
		request: res.Request,
	}
	return res, nil
}

// Registry returns the registry holding every resolver.
func (r *Refs) Registry() *resolver.Registry {
	return r.registry
}

// Types returns the bound entity types in sorted order.
func (r *Refs) Types() []entity.Type {
	return r.registry.Types()
}

// Lookup resolves id of typ without blocking. A miss queues the id and
// reports the record as it is after queueing (usually Pending).
func (r *Refs) Lookup(typ entity.Type, id int64) (entity.Record[any], error) {
	b, ok := r.bindings[typ]
	if !ok {
		return entity.Record[any]{}, fmt.Errorf("%w: %s", resolver.ErrUnknownType, typ)
	}
	return b.lookup(id), nil
}

// Request queues ids of typ for the next flush.
func (r *Refs) Request(typ entity.Type, ids ...int64) error {
	b, ok := r.bindings[typ]
	if !ok {
		return fmt.Errorf("%w: %s", resolver.ErrUnknownType, typ)
	}
	b.request(ids...)
	return nil
}

// Pending returns the queued id count per entity type.
func (r *Refs) Pending() map[entity.Type]int {
	return r.registry.Pending()
}

// Close stops every resolver and waits for in-flight requests.
func (r *Refs) Close() {
	r.registry.Close()
}

// Sample renders the sample behind id.
func Sample[R any](r *Refs, id *int64, project func(entity.Sample) R, fallback R) R {
	return resolver.Resolve(r.Samples, id, project, fallback)
}

// Container renders the container behind id.
func Container[R any](r *Refs, id *int64, project func(entity.Container) R, fallback R) R {
	return resolver.Resolve(r.Containers, id, project, fallback)
}

// Project renders the project behind id.
func Project[R any](r *Refs, id *int64, project func(entity.Project) R, fallback R) R {
	return resolver.Resolve(r.Projects, id, project, fallback)
}

// Run renders the run behind id.
func Run[R any](r *Refs, id *int64, project func(entity.Run) R, fallback R) R {
	return resolver.Resolve(r.Runs, id, project, fallback)
}

// Individual renders the individual behind id.
func Individual[R any](r *Refs, id *int64, project func(entity.Individual) R, fallback R) R {
	return resolver.Resolve(r.Individuals, id, project, fallback)
}

func typeNames(types []entity.Type) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return names
}
