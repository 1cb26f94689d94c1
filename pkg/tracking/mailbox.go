package tracking

import (
	"sync"
	"sync/atomic"
)

// Mailbox is a single-slot handoff. Put overwrites any unconsumed value and
// Take removes it. Neither call blocks beyond a short critical section.
type Mailbox[T any] struct {
	mu      sync.Mutex
	value   T
	full    bool
	dropped atomic.Uint64

	// OnDrop, if set, is called with a value that was replaced before it
	// was taken. It runs outside the lock.
	OnDrop func(T)
}

// Put stores v, replacing any pending value. It reports whether a pending
// value was replaced.
func (m *Mailbox[T]) Put(v T) bool {
	m.mu.Lock()
	old, replaced := m.value, m.full
	m.value, m.full = v, true
	m.mu.Unlock()

	if replaced {
		m.dropped.Add(1)
		if m.OnDrop != nil {
			m.OnDrop(old)
		}
	}
	return replaced
}

// Take removes and returns the pending value, if any.
func (m *Mailbox[T]) Take() (T, bool) {
	var zero T
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.full {
		return zero, false
	}
	v := m.value
	m.value, m.full = zero, false
	return v, true
}

// Pending reports whether a value is waiting.
func (m *Mailbox[T]) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.full
}

// Dropped returns how many values were overwritten before being taken.
func (m *Mailbox[T]) Dropped() uint64 {
	return m.dropped.Load()
}
