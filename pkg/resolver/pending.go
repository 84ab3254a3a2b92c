package resolver

// PendingSet is an insertion-ordered set of ids waiting for a flush.
// It is not safe for concurrent use; the owning Resolver guards it.
type PendingSet[K comparable] struct {
	ids   []K
	index map[K]struct{}
}

// NewPendingSet creates an empty set.
func NewPendingSet[K comparable]() *PendingSet[K] {
	return &PendingSet[K]{index: make(map[K]struct{})}
}

// Add inserts id. It returns false if id was already present.
func (p *PendingSet[K]) Add(id K) bool {
	if _, ok := p.index[id]; ok {
		return false
	}
	p.index[id] = struct{}{}
	p.ids = append(p.ids, id)
	return true
}

// Len returns the number of queued ids.
func (p *PendingSet[K]) Len() int {
	return len(p.ids)
}

// Drain returns the queued ids in insertion order and empties the set.
// The returned slice is owned by the caller.
func (p *PendingSet[K]) Drain() []K {
	ids := p.ids
	p.ids = nil
	p.index = make(map[K]struct{})
	return ids
}
