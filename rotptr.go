// Package rotptr provides Pointer, a rotating pointer: one value slot that
// many goroutines may read at once while at most one goroutine replaces it.
//
// All coordination happens on a single 64-bit state word holding a READ
// flag, a WRITE flag, a participant counter and a sequence number. Every
// transition is a CAS retry loop on that word; nothing ever parks on a
// mutex. Waiting is spinning, with a periodic runtime.Gosched.
//
// Readers register on the counter before looking at the flags. A reader
// that finds a read phase open joins it; one that finds a writer stays
// registered and waits; one that finds the word idle opens the read phase.
// A writer gets in only while both flags are clear. There is no fairness:
// a steady stream of overlapping readers keeps a writer out indefinitely.
//
// Values are handed around as *T. A value swapped out of the Pointer, and
// the last value still in it at Close, belong to the caller and come back
// as a Retired handle.
package rotptr

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

var ErrAcquireAborted = fmt.Errorf("acquire aborted")

// Pointer is a single-writer, multi-reader slot for a *T.
//
// Must not be copied after first use.
type Pointer[T any] struct {
	// cause copy attempts to be caught by `go vet`
	_ [0]sync.Mutex

	_     cpu.CacheLinePad
	word  atomic.Uint64
	_     cpu.CacheLinePad
	value atomic.Pointer[T] // read under a read phase, written under WRITE only

	release func(*T)
	stats   *stats
}

type Option[T any] func(*Pointer[T])

// WithRelease sets the hook run by Retired.Release on values that leave
// the Pointer.
func WithRelease[T any](fn func(*T)) Option[T] {
	return func(p *Pointer[T]) {
		p.release = fn
	}
}

// WithStats enables the counters reported by Pointer.Stats.
func WithStats[T any]() Option[T] {
	return func(p *Pointer[T]) {
		p.stats = new(stats)
	}
}

// New creates a Pointer holding initial, which may be nil.
func New[T any](initial *T, opts ...Option[T]) *Pointer[T] {
	p := &Pointer[T]{}
	for _, opt := range opts {
		opt(p)
	}
	p.value.Store(initial)
	return p
}

// AcquireRead spins until the caller has joined a read phase.
func (p *Pointer[T]) AcquireRead() *ReadGuard[T] {
	p.prepareRead(context.Background())
	return &ReadGuard[T]{p: p}
}

// AcquireReadContext is AcquireRead with a way out. If ctx is done before a
// read phase is joined, the registration is withdrawn and the returned
// error wraps both ErrAcquireAborted and the context's cause.
func (p *Pointer[T]) AcquireReadContext(ctx context.Context) (*ReadGuard[T], error) {
	if ctx.Err() != nil {
		return nil, abortErr(ctx)
	}
	if !p.prepareRead(ctx) {
		return nil, abortErr(ctx)
	}
	return &ReadGuard[T]{p: p}, nil
}

// TryAcquireRead joins or opens a read phase unless a writer holds the
// Pointer, in which case it returns false right away.
func (p *Pointer[T]) TryAcquireRead() (*ReadGuard[T], bool) {
	if !p.tryPrepareRead() {
		return nil, false
	}
	return &ReadGuard[T]{p: p}, true
}

// AcquireWrite spins until the caller holds the Pointer exclusively.
func (p *Pointer[T]) AcquireWrite() *WriteGuard[T] {
	p.prepareWrite(context.Background())
	return &WriteGuard[T]{p: p}
}

// AcquireWriteContext is AcquireWrite with a way out; see AcquireReadContext.
func (p *Pointer[T]) AcquireWriteContext(ctx context.Context) (*WriteGuard[T], error) {
	if ctx.Err() != nil {
		return nil, abortErr(ctx)
	}
	if !p.prepareWrite(ctx) {
		return nil, abortErr(ctx)
	}
	return &WriteGuard[T]{p: p}, nil
}

// TryAcquireWrite takes the Pointer exclusively if it is idle right now.
func (p *Pointer[T]) TryAcquireWrite() (*WriteGuard[T], bool) {
	if !p.tryPrepareWrite() {
		return nil, false
	}
	return &WriteGuard[T]{p: p}, true
}

func abortErr(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrAcquireAborted, context.Cause(ctx))
}

// Read runs fn inside a read phase. The phase is left on every exit path,
// panics included. fn must not keep v after it returns.
func (p *Pointer[T]) Read(fn func(v *T)) {
	g := p.AcquireRead()
	defer g.Release()
	fn(g.Get())
}

// Write runs fn while holding the Pointer exclusively.
func (p *Pointer[T]) Write(fn func(g *WriteGuard[T])) {
	g := p.AcquireWrite()
	defer g.Release()
	fn(g)
}

// Load returns a copy of the current value, or the zero value if the
// Pointer holds nil.
func (p *Pointer[T]) Load() (val T) {
	g := p.AcquireRead()
	val = g.Load()
	g.Release()
	return val
}

// Store overwrites the current value in place. If the Pointer holds nil, a
// new value is allocated instead.
func (p *Pointer[T]) Store(val T) {
	g := p.AcquireWrite()
	if cur := g.Get(); cur != nil {
		*cur = val
	} else {
		g.Swap(&val)
	}
	g.Release()
}

// Swap installs v and returns the value it replaced.
func (p *Pointer[T]) Swap(v *T) Retired[T] {
	g := p.AcquireWrite()
	old := g.Swap(v)
	g.Release()
	return old
}

// State decodes the state word as it is right now. It is a diagnostic; the
// answer may be stale by the time it is returned.
func (p *Pointer[T]) State() State {
	return p.load().state()
}

// Close hands the value still stored to the caller and leaves nil behind.
// No guard may be outstanding and no acquisition may be in flight.
func (p *Pointer[T]) Close() Retired[T] {
	w := p.load()
	if !w.idle() || w.counter() != 0 {
		panic(fmt.Sprintf("rotptr: Close on a busy pointer (%s, %d participants)", w.mode(), w.counter()))
	}
	return p.retire(p.value.Swap(nil))
}

func (p *Pointer[T]) retire(v *T) Retired[T] {
	return Retired[T]{v: v, release: p.release}
}
