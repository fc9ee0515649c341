package content

import "sync/atomic"

// Handle is the shared access point for the current snapshot. Swapping in a
// new snapshot is atomic; in-flight readers keep the generation they
// started with until they ask again.
type Handle struct {
	current atomic.Pointer[Snapshot]
}

// NewHandle creates a handle. snap may be nil when no snapshot has been
// built yet; readers must treat a nil Current as "store not ready".
func NewHandle(snap *Snapshot) *Handle {
	h := &Handle{}
	if snap != nil {
		h.current.Store(snap)
	}
	return h
}

// Current returns the live snapshot, or nil before the first Swap.
func (h *Handle) Current() *Snapshot {
	return h.current.Load()
}

// Swap atomically replaces the live snapshot and returns the previous one.
func (h *Handle) Swap(snap *Snapshot) *Snapshot {
	return h.current.Swap(snap)
}

// Ready reports whether a snapshot with at least one item is live.
func (h *Handle) Ready() bool {
	s := h.current.Load()
	return s != nil && s.Len() > 0
}
