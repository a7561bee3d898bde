package journal

import (
	"runtime"
	"sync"
	"testing"
)

func TestRingSequential(t *testing.T) {
	const capacity = 1024

	r := New[int](capacity)

	for i := 0; i < capacity; i++ {
		if !r.TryAppend(i) {
			t.Fatalf("append failed at %d (ring unexpectedly full)", i)
		}
	}
	if r.TryAppend(-1) {
		t.Fatalf("expected overflow (append should return false), but got true")
	}

	for i := 0; i < capacity; i++ {
		v, ok := r.Next()
		if !ok {
			t.Fatalf("next failed at %d (ring unexpectedly empty)", i)
		}
		if v != i {
			t.Fatalf("expected %d, got %d (FIFO violated)", i, v)
		}
	}

	if v, ok := r.Next(); ok {
		t.Fatalf("expected empty ring at the end, got value=%v", v)
	}
}

func TestRingWrapsAround(t *testing.T) {
	const capacity = 8
	r := New[int](capacity)

	for lap := 0; lap < 10; lap++ {
		for i := 0; i < capacity/2; i++ {
			r.Append(lap*100 + i)
		}
		for i := 0; i < capacity/2; i++ {
			v, ok := r.Next()
			if !ok || v != lap*100+i {
				t.Fatalf("lap %d: expected %d, got %d (ok=%v)", lap, lap*100+i, v, ok)
			}
		}
	}
}

func TestRingBadCapacity(t *testing.T) {
	for _, c := range []uint64{0, 3, 100} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("capacity %d: expected panic", c)
				}
			}()
			New[int](c)
		}()
	}
}

// Concurrent test: many producers, single consumer.
// Checks that all values [0..N) are received exactly once, and that each
// producer's values arrive in the order it appended them.
func TestRingConcurrentProducers(t *testing.T) {
	const (
		capacity    = 1 << 10
		N           = 200_000
		producers   = 8
		perProducer = N / producers
	)

	r := New[int](capacity)
	seen := make([]int, N)
	last := make([]int, producers)
	for p := range last {
		last[p] = -1
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for received := 0; received < N; {
			v, ok := r.Next()
			if !ok {
				runtime.Gosched()
				continue
			}
			if v < 0 || v >= N {
				t.Errorf("consumer: out-of-range value %d", v)
				continue
			}
			p := v / perProducer
			if v <= last[p] {
				t.Errorf("producer %d: %d arrived after %d", p, v, last[p])
			}
			last[p] = v
			seen[v]++
			received++
		}
	}()

	var pg sync.WaitGroup
	pg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(from, to int) {
			defer pg.Done()
			for i := from; i < to; i++ {
				r.Append(i)
			}
		}(p*perProducer, (p+1)*perProducer)
	}

	pg.Wait()
	wg.Wait()

	for i := 0; i < N; i++ {
		if seen[i] != 1 {
			t.Fatalf("value %d seen %d times (expected 1)", i, seen[i])
		}
	}
}

func BenchmarkRing_MP1C(b *testing.B) {
	const (
		capacity  = 1 << 16
		producers = 8
	)

	r := New[int](capacity)
	perProducer := b.N / producers

	var wg sync.WaitGroup
	wg.Add(producers + 1)

	go func() {
		defer wg.Done()
		for total := 0; total < perProducer*producers; {
			if _, ok := r.Next(); !ok {
				runtime.Gosched()
				continue
			}
			total++
		}
	}()

	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				r.Append(i)
			}
		}()
	}

	b.ResetTimer()
	wg.Wait()
	b.StopTimer()
}
