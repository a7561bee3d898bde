package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"runtime"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aradilov/rotptr"
	"github.com/aradilov/rotptr/internal/journal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	journalCapacity = 1 << 12

	// written over every value that leaves the pointer
	poison = -1
)

type config struct {
	writers int
	readers int
	tasks   int
	print   bool
}

func (c config) validate() error {
	if c.writers < 0 || c.readers < 0 {
		return fmt.Errorf("worker counts must not be negative (writers=%d, readers=%d)", c.writers, c.readers)
	}
	if c.writers+c.readers == 0 {
		return fmt.Errorf("need at least one worker")
	}
	if c.tasks <= 0 {
		return fmt.Errorf("tasks must be positive, got %d", c.tasks)
	}
	return nil
}

type observation struct {
	worker int
	index  int
	value  int64
}

type report struct {
	final   int64
	stats   rotptr.Stats
	elapsed time.Duration
}

// values recycles pointees through a sync.Pool, poisoning them on the way
// in so that any read of a released value stands out.
type values struct {
	pool sync.Pool
}

func (v *values) get(n int64) *int64 {
	p, _ := v.pool.Get().(*int64)
	if p == nil {
		p = new(int64)
	}
	*p = n
	return p
}

func (v *values) put(p *int64) {
	*p = poison
	v.pool.Put(p)
}

// run races cfg.writers writers and cfg.readers readers on one pointer that
// starts at 0, then checks what they saw. With cfg.print every observation
// goes through the journal to a collector, and the full table is written to
// out once the workers are done.
func run(ctx context.Context, cfg config, out io.Writer) (report, error) {
	if err := cfg.validate(); err != nil {
		return report{}, err
	}

	vals := &values{}
	ptr := rotptr.New(vals.get(0), rotptr.WithRelease(vals.put), rotptr.WithStats[int64]())

	var ring *journal.Ring[observation]
	workersDone := make(chan struct{})
	printDone := make(chan error, 1)
	if cfg.print {
		ring = journal.New[observation](journalCapacity)
		t := newTable(cfg.writers, cfg.readers, cfg.tasks)
		go func() {
			printDone <- printObservations(ring, t, out, workersDone)
		}()
	} else {
		printDone <- nil
	}

	wlogs := make([][]int64, cfg.writers)
	rlogs := make([][]int64, cfg.readers)

	var start atomic.Bool
	g, gctx := errgroup.WithContext(ctx)
	for i := range wlogs {
		wlogs[i] = make([]int64, cfg.tasks)
		g.Go(func() error {
			return writeWorker(gctx, ptr, vals, &start, i, wlogs[i], ring)
		})
	}
	for i := range rlogs {
		rlogs[i] = make([]int64, cfg.tasks)
		g.Go(func() error {
			return readWorker(gctx, ptr, &start, cfg.writers+i, rlogs[i], ring)
		})
	}

	logrus.WithFields(logrus.Fields{
		"writers": cfg.writers,
		"readers": cfg.readers,
		"tasks":   cfg.tasks,
	}).Debug("launching workers")

	began := time.Now()
	start.Store(true)
	err := g.Wait()
	elapsed := time.Since(began)
	close(workersDone)

	if perr := <-printDone; perr != nil && err == nil {
		err = fmt.Errorf("print observations: %w", perr)
	}
	if err != nil {
		return report{}, err
	}

	final := ptr.Close()
	defer final.Release()

	rep := report{
		final:   *final.Value(),
		stats:   ptr.Stats(),
		elapsed: elapsed,
	}
	if err := verify(wlogs, rlogs, rep.final); err != nil {
		return rep, err
	}
	return rep, nil
}

func awaitStart(ctx context.Context, start *atomic.Bool) error {
	for !start.Load() {
		if err := ctx.Err(); err != nil {
			return err
		}
		runtime.Gosched()
	}
	return nil
}

func writeWorker(ctx context.Context, ptr *rotptr.Pointer[int64], vals *values, start *atomic.Bool, id int, log []int64, ring *journal.Ring[observation]) error {
	if err := awaitStart(ctx, start); err != nil {
		return err
	}

	for i := range log {
		g, err := ptr.AcquireWriteContext(ctx)
		if err != nil {
			return fmt.Errorf("writer %d: %w", id, err)
		}
		prev := *g.Get()
		old := g.Swap(vals.get(prev + 1))
		g.Release()

		if got := *old.Value(); got != prev {
			return fmt.Errorf("writer %d: swap %d returned %d, but %d was observed under the same guard", id, i, got, prev)
		}
		old.Release()

		log[i] = prev
		if ring != nil {
			ring.Append(observation{worker: id, index: i, value: prev})
		}
	}
	return nil
}

func readWorker(ctx context.Context, ptr *rotptr.Pointer[int64], start *atomic.Bool, id int, log []int64, ring *journal.Ring[observation]) error {
	if err := awaitStart(ctx, start); err != nil {
		return err
	}

	for i := range log {
		g, err := ptr.AcquireReadContext(ctx)
		if err != nil {
			return fmt.Errorf("reader %d: %w", id, err)
		}
		v := *g.Get()
		g.Release()

		if v == poison {
			return fmt.Errorf("reader %d: read %d observed a released value", id, i)
		}

		log[i] = v
		if ring != nil {
			ring.Append(observation{worker: id, index: i, value: v})
		}
	}
	return nil
}

// table holds one column per worker, filled in from the journal as the
// observations arrive.
type table struct {
	writers int
	cols    [][]int64
	filled  [][]bool
}

func newTable(writers, readers, tasks int) *table {
	t := &table{
		writers: writers,
		cols:    make([][]int64, writers+readers),
		filled:  make([][]bool, writers+readers),
	}
	for i := range t.cols {
		t.cols[i] = make([]int64, tasks)
		t.filled[i] = make([]bool, tasks)
	}
	return t
}

func (t *table) add(o observation) {
	t.cols[o.worker][o.index] = o.value
	t.filled[o.worker][o.index] = true
}

// render writes a header naming the columns (w0.. for writers, r<n>.. for
// readers) and then row i holding every worker's i-th observation. Cells a
// worker never reached, because the run was cut short, print as "-".
func (t *table) render(out io.Writer) error {
	bw := bufio.NewWriter(out)

	for i := range t.cols {
		if i > 0 {
			bw.WriteByte('\t')
		}
		if i < t.writers {
			fmt.Fprintf(bw, "w%d", i)
		} else {
			fmt.Fprintf(bw, "r%d", i)
		}
	}
	bw.WriteByte('\n')

	if len(t.cols) > 0 {
		for row := range t.cols[0] {
			for i, col := range t.cols {
				if i > 0 {
					bw.WriteByte('\t')
				}
				if t.filled[i][row] {
					bw.WriteString(strconv.FormatInt(col[row], 10))
				} else {
					bw.WriteByte('-')
				}
			}
			bw.WriteByte('\n')
		}
	}
	return bw.Flush()
}

// printObservations drains ring into a table until the workers are done and
// the ring is empty, then renders it to out.
func printObservations(ring *journal.Ring[observation], t *table, out io.Writer, workersDone <-chan struct{}) error {
	for {
		if o, ok := ring.Next(); ok {
			t.add(o)
			continue
		}

		select {
		case <-workersDone:
			for {
				o, ok := ring.Next()
				if !ok {
					return t.render(out)
				}
				t.add(o)
			}
		default:
			runtime.Gosched()
		}
	}
}

// verify checks the writer logs form one unbroken chain 0..n-1 ending in
// final, and that no reader ever saw the value go backwards.
func verify(wlogs, rlogs [][]int64, final int64) error {
	var all []int64
	for w, log := range wlogs {
		for i := 1; i < len(log); i++ {
			if log[i] <= log[i-1] {
				return fmt.Errorf("writer %d: observed %d after %d", w, log[i], log[i-1])
			}
		}
		all = append(all, log...)
	}

	slices.Sort(all)
	for i, v := range all {
		if v != int64(i) {
			return fmt.Errorf("write chain broken at %d: found %d (lost or duplicated update)", i, v)
		}
	}
	if final != int64(len(all)) {
		return fmt.Errorf("final value %d after %d writes", final, len(all))
	}

	for r, log := range rlogs {
		for i, v := range log {
			if v < 0 || v > final {
				return fmt.Errorf("reader %d: observed %d at %d, outside 0..%d", r, v, i, final)
			}
			if i > 0 && v < log[i-1] {
				return fmt.Errorf("reader %d: observed %d after %d", r, v, log[i-1])
			}
		}
	}
	return nil
}
