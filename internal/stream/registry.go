package stream

import "sync/atomic"

// Registry counts live sessions against a fixed ceiling.
type Registry struct {
	max  int64
	live atomic.Int64
}

func NewRegistry(max int) *Registry {
	return &Registry{max: int64(max)}
}

// TryAcquire reserves a slot if the live count is strictly below the ceiling.
func (r *Registry) TryAcquire() bool {
	for {
		cur := r.live.Load()
		if cur >= r.max {
			return false
		}
		if r.live.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Release frees a slot taken by TryAcquire.
func (r *Registry) Release() {
	r.live.Add(-1)
}

func (r *Registry) Count() int { return int(r.live.Load()) }

func (r *Registry) Max() int { return int(r.max) }
