// Package journal carries observation records from the demo workers to the
// goroutine that prints them. Producers never block each other; the drain
// side is a single goroutine.
//
// The slot sequencing follows Dmitry Vyukov's bounded queue:
// https://www.1024cores.net/home/lock-free-algorithms/queues/bounded-mpmc-queue
package journal

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

const goschedEvery = 64

type slot[T any] struct {
	// seq == pos: free for the producer claiming pos.
	// seq == pos+1: holds the record for pos.
	seq atomic.Uint64
	val T
}

// Ring holds at most Capacity records in append order.
type Ring[T any] struct {
	_        cpu.CacheLinePad
	mask     uint64
	capacity uint64
	slots    []slot[T]
	_        cpu.CacheLinePad
	tail     atomic.Uint64
	_        cpu.CacheLinePad
	head     uint64 // owned by the draining goroutine
	_        cpu.CacheLinePad
}

// New panics unless capacity is a nonzero power of two.
func New[T any](capacity uint64) *Ring[T] {
	if capacity == 0 || (capacity&(capacity-1)) != 0 {
		panic("capacity must be power of 2 and > 0")
	}

	slots := make([]slot[T], capacity)
	for i := uint64(0); i < capacity; i++ {
		slots[i].seq.Store(i)
	}

	return &Ring[T]{
		mask:     capacity - 1,
		capacity: capacity,
		slots:    slots,
	}
}

// TryAppend reports false instead of waiting when every slot is taken.
// Safe for concurrent use.
func (r *Ring[T]) TryAppend(v T) bool {
	var spins uint32
	for {
		pos := r.tail.Load()
		s := &r.slots[pos&r.mask]

		diff := int64(s.seq.Load()) - int64(pos)
		switch {
		case diff == 0:
			if r.tail.CompareAndSwap(pos, pos+1) {
				s.val = v
				s.seq.Store(pos + 1)
				return true
			}
		case diff < 0:
			// full
			return false
		}

		spins++
		if spins%goschedEvery == 0 {
			runtime.Gosched()
		}
	}
}

// Append is TryAppend that yields until a slot frees up.
func (r *Ring[T]) Append(v T) {
	for !r.TryAppend(v) {
		runtime.Gosched()
	}
}

// Next drains the oldest published record. Only one goroutine may call it.
func (r *Ring[T]) Next() (T, bool) {
	var zero T

	pos := r.head
	s := &r.slots[pos&r.mask]
	if s.seq.Load() != pos+1 {
		return zero, false
	}

	r.head = pos + 1
	v := s.val
	s.val = zero
	// hand the slot to the producer one lap ahead
	s.seq.Store(pos + r.capacity)
	return v, true
}

func (r *Ring[T]) Capacity() uint64 {
	return r.capacity
}
