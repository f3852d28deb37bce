package generic

import "sync"

// Registry keeps constructed sinks reachable for as long as they are
// logically part of a live graph. A sink has no downstream consumer holding a
// reference to it, so membership here is what extends its lifetime between
// construction and destroy. The registry exists purely for that: it offers no
// ordering and no iteration.
type Registry struct {
	mu    sync.Mutex
	sinks map[Sink]struct{}
}

func NewRegistry() *Registry {
	return &Registry{sinks: map[Sink]struct{}{}}
}

// Register adds the sink to the set. Each sink registers exactly once, at
// construction.
func (r *Registry) Register(sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sinks[sink] = struct{}{}
}

// Unregister removes the sink. Removing an absent sink is a no-op, so destroy
// paths may call this without tracking whether they already have.
func (r *Registry) Unregister(sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sinks, sink)
}

// Contains reports membership. Only tests should need this.
func (r *Registry) Contains(sink Sink) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.sinks[sink]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sinks)
}
