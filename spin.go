package rotptr

import (
	"context"
	"runtime"

	"github.com/valyala/fastrand"
)

// Contending goroutines yield every goschedMin..goschedMin+goschedJitter-1
// spins. The period is drawn per acquisition so that waiters on the same
// word do not hand the processor back in lockstep.
const (
	goschedMin    = 32
	goschedJitter = 64
)

type spinner struct {
	spins uint32
	every uint32
	done  <-chan struct{}
}

func newSpinner(ctx context.Context) spinner {
	return spinner{
		every: goschedMin + fastrand.Uint32n(goschedJitter),
		done:  ctx.Done(),
	}
}

// wait burns one retry. At every yield point it gives up the processor and,
// when the context can be cancelled, reports whether it has been.
func (s *spinner) wait() bool {
	s.spins++
	if s.spins%s.every != 0 {
		return false
	}
	runtime.Gosched()
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
