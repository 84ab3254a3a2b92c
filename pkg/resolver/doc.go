// Package resolver provides a read-through, request-coalescing entity cache
// for LIMS records served by a REST backend.
//
// Rendering code asks for entities one id at a time. A page showing a few
// hundred samples references containers, projects and individuals by
// foreign key; fetching each one separately would flood the backend. The
// resolver turns those lookups into a handful of chunked list requests:
//
//   - Resolve reads the cache synchronously and never blocks on the network
//   - A miss queues the id in the type's pending set (deduplicated)
//   - The first queued id arms a single throttle timer (default 20ms)
//   - When the timer fires the pending set is drained into a flush epoch
//   - The epoch is split into chunks of at most 1000 ids, fetched concurrently
//   - Ids queued while a flush is in flight are flushed right after it, with
//     no additional delay
//
// Example usage:
//
//	samples := resolver.New(entity.TypeSample, lister, entity.Sample.EntityID, nil, resolver.DefaultConfig())
//	defer samples.Close()
//
//	name := resolver.Resolve(samples, row.SampleID, func(s entity.Sample) string {
//		return s.Name
//	}, "loading...")
//
// One Resolver exists per entity type, usually held in a Registry. Types
// flush independently of each other.
package resolver
