package rotptr

import "context"

func (p *Pointer[T]) load() word { return word(p.word.Load()) }

// prepareWrite sets WRITE once both flags are clear. The counter is left
// alone: readers that registered but have not opened a read phase yet keep
// their registration and wait for finishWrite.
func (p *Pointer[T]) prepareWrite(ctx context.Context) bool {
	sp := newSpinner(ctx)
	for {
		w := p.load()
		if w.idle() {
			if p.word.CompareAndSwap(uint64(w), uint64(w.withWrite().nextSeq())) {
				p.stats.add(writeAcquires)
				return true
			}
			// a reader registered or opened a phase under us, look again
			continue
		}

		p.stats.add(writeSpins)
		if sp.wait() {
			p.stats.add(aborted)
			return false
		}
	}
}

func (p *Pointer[T]) tryPrepareWrite() bool {
	for {
		w := p.load()
		if !w.idle() {
			return false
		}
		if p.word.CompareAndSwap(uint64(w), uint64(w.withWrite().nextSeq())) {
			p.stats.add(writeAcquires)
			return true
		}
	}
}

// swap publishes v and advances the sequence. Only the counter can move
// while WRITE is held, so a failed CAS is retried on a fresh load with the
// counter carried over verbatim.
func (p *Pointer[T]) swap(v *T) *T {
	old := p.value.Swap(v)
	for {
		w := p.load()
		if p.word.CompareAndSwap(uint64(w), uint64(w.nextSeq())) {
			p.stats.add(swaps)
			return old
		}
		p.stats.add(swapRetries)
	}
}

// finishWrite clears WRITE. Nobody else may touch the bit while it is held.
func (p *Pointer[T]) finishWrite() {
	p.word.And(^writeFlag)
}

// register adds the caller to the participant counter and returns the word
// as it stood right after the increment. A full counter is refused before
// anything is written, so the word is intact when the panic is recovered.
func (p *Pointer[T]) register() word {
	for {
		w := p.load()
		if w.counter() == MaxParticipants {
			panic("rotptr: participant counter overflow")
		}
		next := word(uint64(w) + participant)
		if p.word.CompareAndSwap(uint64(w), uint64(next)) {
			return next
		}
	}
}

// prepareRead registers first, then either joins an open read phase, waits
// out a writer while staying registered, or opens the read phase itself.
func (p *Pointer[T]) prepareRead(ctx context.Context) bool {
	w := p.register()
	sp := newSpinner(ctx)
	for {
		switch {
		case w.reading():
			p.stats.add(readAcquires)
			return true

		case w.writing():
			p.stats.add(readSpins)
			if sp.wait() {
				// still registered: undo it the same way a joined reader leaves
				p.finishRead()
				p.stats.add(aborted)
				return false
			}
			w = p.load()

		default:
			if p.word.CompareAndSwap(uint64(w), uint64(w.withRead().nextSeq())) {
				p.stats.add(readAcquires)
				return true
			}
			// someone else opened the phase, or a writer got in first
			w = p.load()
		}
	}
}

func (p *Pointer[T]) tryPrepareRead() bool {
	w := p.register()
	for {
		switch {
		case w.reading():
			p.stats.add(readAcquires)
			return true

		case w.writing():
			p.finishRead()
			return false

		default:
			if p.word.CompareAndSwap(uint64(w), uint64(w.withRead().nextSeq())) {
				p.stats.add(readAcquires)
				return true
			}
			w = p.load()
		}
	}
}

// finishRead deregisters. The last participant out clears READ with a
// single CAS; if that fails a newer reader has registered, and closing the
// phase becomes its job.
func (p *Pointer[T]) finishRead() {
	w := word(p.word.Add(^(participant - 1)))
	if w.counter() != 0 || !w.reading() {
		return
	}
	if !p.word.CompareAndSwap(uint64(w), uint64(w.withoutRead())) {
		p.stats.add(readClearLost)
	}
}
