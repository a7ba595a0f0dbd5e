package fiber

import (
	"sync"
	"weak"
)

// registry tracks a scheduler's fibers via weak pointers, so introspection
// (LiveFiberCount, Scavenge) never keeps a fiber alive past its natural
// lifetime. Adapted from eventloop's promise registry: a ring buffer of IDs
// gives Scavenge a deterministic, boundable per-call workload instead of
// walking the whole map every time.
type registry struct {
	mu   sync.RWMutex
	data map[FiberID]weak.Pointer[FiberContext]
	ring []FiberID
	head int
}

func newRegistry() *registry {
	return &registry{
		data: make(map[FiberID]weak.Pointer[FiberContext]),
		ring: make([]FiberID, 0, 256),
	}
}

// add registers f for weak tracking.
func (r *registry) add(f *FiberContext) {
	wp := weak.Make(f)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[f.id] = wp
	r.ring = append(r.ring, f.id)
}

// remove drops f from tracking immediately, called once its scheduler has
// finished retiring it.
func (r *registry) remove(f *FiberContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, f.id)
}

// Len returns the number of fibers currently tracked (including any not
// yet scavenged after termination).
func (r *registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// Scavenge walks up to batchSize ring entries, dropping any whose weak
// pointer has been collected or whose ring slot was already cleared by
// remove. Intended to be called periodically (e.g. from an idle hook) so
// the ring buffer does not grow without bound across a long-running
// scheduler's lifetime.
func (r *registry) Scavenge(batchSize int) {
	if batchSize <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.ring)
	if n == 0 {
		return
	}
	end := r.head + batchSize
	if end > n {
		end = n
	}
	kept := r.ring[:0:0]
	kept = append(kept, r.ring[:r.head]...)
	for i := r.head; i < end; i++ {
		id := r.ring[i]
		if wp, ok := r.data[id]; ok && wp.Value() != nil {
			kept = append(kept, id)
		} else {
			delete(r.data, id)
		}
	}
	kept = append(kept, r.ring[end:]...)
	r.ring = kept
	r.head = end
	if r.head >= len(r.ring) {
		r.head = 0
	}
}
