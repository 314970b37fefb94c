package jenkins

import (
	"context"
	"sync"
)

// Limiter bounds concurrent build triggers per project. The first acquire
// for a project fixes its capacity for the life of the process; capacity is
// clamped to at least one so a misconfigured zero cannot wedge the fan-out.
type Limiter struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLimiter returns an empty limiter.
func NewLimiter() *Limiter {
	return &Limiter{slots: make(map[string]chan struct{})}
}

// Acquire blocks until a slot frees up for the project or the context ends.
func (l *Limiter) Acquire(ctx context.Context, project string, capacity int) error {
	slot := l.slot(project, capacity)
	select {
	case slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees one slot for the project. Releasing without a matching
// acquire is a no-op.
func (l *Limiter) Release(project string) {
	l.mu.Lock()
	slot := l.slots[project]
	l.mu.Unlock()
	if slot == nil {
		return
	}
	select {
	case <-slot:
	default:
	}
}

func (l *Limiter) slot(project string, capacity int) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[project]
	if !ok {
		if capacity < 1 {
			capacity = 1
		}
		slot = make(chan struct{}, capacity)
		l.slots[project] = slot
	}
	return slot
}
