package rotptr

// Bit layout of the state word, low to high:
//
//	| counter (30) | READ (1) | WRITE (1) | sequence (32) |
//
// The sequence field takes the place of pointer bits: it is bumped by every
// swap and every time a read or write phase opens, so a stale word never
// compares equal to a word that has since moved through another phase.
const (
	counterShift = 0
	counterBits  = 30
	counterMask  = (uint64(1)<<counterBits - 1) << counterShift

	readShift = counterShift + counterBits
	readFlag  = uint64(1) << readShift

	writeShift = readShift + 1
	writeFlag  = uint64(1) << writeShift

	flagMask = readFlag | writeFlag

	seqShift = writeShift + 1
	seqBits  = 64 - seqShift
	seqMask  = (uint64(1)<<seqBits - 1) << seqShift

	// one participant, as added to or removed from the raw word
	participant = uint64(1) << counterShift
)

// MaxParticipants is the number of readers that may be registered on a
// Pointer at once, whether joined or waiting.
const MaxParticipants = counterMask >> counterShift

type word uint64

func (w word) counter() uint64 { return (uint64(w) & counterMask) >> counterShift }
func (w word) seq() uint64     { return (uint64(w) & seqMask) >> seqShift }

func (w word) reading() bool { return uint64(w)&readFlag != 0 }
func (w word) writing() bool { return uint64(w)&writeFlag != 0 }
func (w word) idle() bool    { return uint64(w)&flagMask == 0 }

func (w word) withRead() word    { return w | word(readFlag) }
func (w word) withoutRead() word { return w &^ word(readFlag) }
func (w word) withWrite() word   { return w | word(writeFlag) }

// nextSeq returns w with the sequence advanced by one; flags and counter are
// carried over untouched.
func (w word) nextSeq() word {
	seq := (w.seq() + 1) << seqShift & seqMask
	return word(uint64(w)&^seqMask | seq)
}

func makeWord(seq, counter uint64, read, write bool) word {
	w := word(seq<<seqShift&seqMask | counter<<counterShift&counterMask)
	if read {
		w = w.withRead()
	}
	if write {
		w = w.withWrite()
	}
	return w
}

func (w word) mode() Mode {
	switch {
	case w.writing():
		return Writing
	case w.reading():
		return Reading
	default:
		return Idle
	}
}

// Mode is the phase a Pointer is in.
type Mode uint8

const (
	Idle Mode = iota
	Reading
	Writing
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Reading:
		return "reading"
	case Writing:
		return "writing"
	default:
		return "unknown"
	}
}

// State is a decoded snapshot of a Pointer's state word.
type State struct {
	Sequence     uint64
	Mode         Mode
	Participants uint64
}

func (w word) state() State {
	return State{
		Sequence:     w.seq(),
		Mode:         w.mode(),
		Participants: w.counter(),
	}
}
