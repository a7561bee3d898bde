package rotptr

import "sync"

// ReadGuard is membership in a read phase. Release it exactly once,
// normally with defer right after acquiring.
type ReadGuard[T any] struct {
	_ [0]sync.Mutex
	p *Pointer[T]
}

func (g *ReadGuard[T]) pointer() *Pointer[T] {
	if g.p == nil {
		panic("rotptr: use of released read guard")
	}
	return g.p
}

// Get returns the current value. The pointee must be treated as read-only
// and must not be used after Release.
func (g *ReadGuard[T]) Get() *T {
	return g.pointer().value.Load()
}

// Load returns a copy of the current value, or the zero value for nil.
func (g *ReadGuard[T]) Load() (val T) {
	if v := g.Get(); v != nil {
		val = *v
	}
	return val
}

// Clone registers one more participant in the phase g belongs to. The phase
// stays open until both guards are released.
func (g *ReadGuard[T]) Clone() *ReadGuard[T] {
	p := g.pointer()
	p.register()
	p.stats.add(readAcquires)
	return &ReadGuard[T]{p: p}
}

func (g *ReadGuard[T]) Release() {
	p := g.pointer()
	g.p = nil
	p.finishRead()
}

// WriteGuard is exclusive ownership of a Pointer. Only one exists per
// Pointer at a time; it is handed out by pointer and must not be copied.
type WriteGuard[T any] struct {
	_ [0]sync.Mutex
	p *Pointer[T]
}

func (g *WriteGuard[T]) pointer() *Pointer[T] {
	if g.p == nil {
		panic("rotptr: use of released write guard")
	}
	return g.p
}

// Get returns the current value for in-place modification.
func (g *WriteGuard[T]) Get() *T {
	return g.pointer().value.Load()
}

// Swap installs v and returns the value it replaced. The Pointer keeps no
// reference to the returned value.
func (g *WriteGuard[T]) Swap(v *T) Retired[T] {
	p := g.pointer()
	return p.retire(p.swap(v))
}

func (g *WriteGuard[T]) Release() {
	p := g.pointer()
	g.p = nil
	p.finishWrite()
}

// Retired is a value that has left a Pointer. The holder owns it and is
// expected to call Release once it is done with it.
type Retired[T any] struct {
	v       *T
	release func(*T)
}

// Value returns the retired value; nil if the Pointer held nil.
func (r Retired[T]) Value() *T { return r.v }

// Release runs the Pointer's release hook on the value, if there is one.
func (r Retired[T]) Release() {
	if r.v != nil && r.release != nil {
		r.release(r.v)
	}
}
