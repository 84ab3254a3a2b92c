package resolver

import "github.com/Sternrassler/lims-resolver/pkg/entity"

// Resolve returns project(value) when the entity behind id is loaded and
// fallback otherwise. A nil id returns fallback without touching the cache.
//
// A miss queues the id for the next flush; Resolve itself never blocks,
// never waits for the network and never reports fetch errors. Callers that
// need to tell "loading" from "failed" use Resolver.Status.
func Resolve[K comparable, V, R any](r *Resolver[K, V], id *K, project func(V) R, fallback R) R {
	if r == nil || id == nil {
		return fallback
	}
	return ResolveID(r, *id, project, fallback)
}

// ResolveID is Resolve for a non-nullable id.
func ResolveID[K comparable, V, R any](r *Resolver[K, V], id K, project func(V) R, fallback R) R {
	if r == nil {
		return fallback
	}

	rec := r.lookup(id)
	if rec.Status != entity.StatusLoaded || project == nil {
		return fallback
	}
	return project(rec.Value)
}
