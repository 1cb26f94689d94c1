package tracking

import "sync/atomic"

// IDAllocator hands out track ids in strictly increasing order.
// A fresh allocator per Manager keeps ids deterministic in tests.
type IDAllocator struct {
	next atomic.Int64
}

// NewIDAllocator returns an allocator whose first id is start.
func NewIDAllocator(start int64) *IDAllocator {
	a := &IDAllocator{}
	a.next.Store(start)
	return a
}

// Next returns the next id.
func (a *IDAllocator) Next() int64 {
	return a.next.Add(1) - 1
}

// Peek returns the id the next call to Next will return.
func (a *IDAllocator) Peek() int64 {
	return a.next.Load()
}
