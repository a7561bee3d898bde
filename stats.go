package rotptr

import "sync/atomic"

type counter int

const (
	readAcquires counter = iota
	readSpins
	readClearLost
	writeAcquires
	writeSpins
	swaps
	swapRetries
	aborted

	numCounters
)

// stats is nil unless the Pointer was built WithStats; add is a no-op then.
type stats struct {
	c [numCounters]atomic.Uint64
}

func (s *stats) add(c counter) {
	if s != nil {
		s.c[c].Add(1)
	}
}

type Stats struct {
	ReadAcquires  uint64
	ReadSpins     uint64
	ReadClearLost uint64 // last-reader CAS lost to a newer reader

	WriteAcquires uint64
	WriteSpins    uint64

	Swaps       uint64
	SwapRetries uint64

	Aborted uint64 // context-bound acquisitions given up
}

// Stats retrieves the contention counters of the Pointer. All counters are
// zero unless the Pointer was created with WithStats.
func (p *Pointer[T]) Stats() Stats {
	s := p.stats
	if s == nil {
		return Stats{}
	}
	return Stats{
		ReadAcquires:  s.c[readAcquires].Load(),
		ReadSpins:     s.c[readSpins].Load(),
		ReadClearLost: s.c[readClearLost].Load(),
		WriteAcquires: s.c[writeAcquires].Load(),
		WriteSpins:    s.c[writeSpins].Load(),
		Swaps:         s.c[swaps].Load(),
		SwapRetries:   s.c[swapRetries].Load(),
		Aborted:       s.c[aborted].Load(),
	}
}
