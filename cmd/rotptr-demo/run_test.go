package main

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/aradilov/rotptr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	var out bytes.Buffer
	rep, err := run(context.Background(), config{writers: 2, readers: 2, tasks: 1000}, &out)
	require.NoError(t, err)

	assert.Equal(t, int64(2000), rep.final)
	assert.Equal(t, uint64(2000), rep.stats.WriteAcquires)
	assert.Equal(t, uint64(2000), rep.stats.ReadAcquires)
	assert.Equal(t, uint64(2000), rep.stats.Swaps)
	assert.Zero(t, rep.stats.Aborted)
	assert.Empty(t, out.String(), "nothing is printed without --print")
}

func TestRunPrint(t *testing.T) {
	var out bytes.Buffer
	_, err := run(context.Background(), config{writers: 1, readers: 3, tasks: 500, print: true}, &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 1+500)
	assert.Equal(t, "w0\tr1\tr2\tr3", lines[0])

	last := make([]int64, 4)
	for i, l := range lines[1:] {
		cells := strings.Split(l, "\t")
		require.Len(t, cells, 4, "row %d", i)

		// a single writer sees every value in order
		assert.Equal(t, strconv.Itoa(i), cells[0], "row %d", i)

		for c, cell := range cells[1:] {
			v, err := strconv.ParseInt(cell, 10, 64)
			require.NoError(t, err, "row %d column %d", i, c+1)
			assert.GreaterOrEqual(t, v, last[c+1], "reader column %d went backwards at row %d", c+1, i)
			last[c+1] = v
		}
	}
}

func TestTableRender(t *testing.T) {
	tbl := newTable(2, 1, 3)
	tbl.add(observation{worker: 0, index: 0, value: 0})
	tbl.add(observation{worker: 1, index: 0, value: 1})
	tbl.add(observation{worker: 2, index: 0, value: 2})
	tbl.add(observation{worker: 0, index: 1, value: 2})
	tbl.add(observation{worker: 2, index: 2, value: 3})

	var out bytes.Buffer
	require.NoError(t, tbl.render(&out))
	assert.Equal(t, "w0\tw1\tr2\n"+
		"0\t1\t2\n"+
		"2\t-\t-\n"+
		"-\t-\t3\n", out.String())
}

func TestRunOnlyReaders(t *testing.T) {
	rep, err := run(context.Background(), config{readers: 4, tasks: 100}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rep.final)
}

func TestRunInvalidConfig(t *testing.T) {
	tests := map[string]config{
		"no workers":       {tasks: 10},
		"negative writers": {writers: -1, readers: 1, tasks: 10},
		"no tasks":         {writers: 1, readers: 1},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := run(context.Background(), cfg, nil)
			assert.Error(t, err)
		})
	}
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := run(ctx, config{writers: 2, readers: 2, tasks: 100}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVerify(t *testing.T) {
	tests := map[string]struct {
		wlogs [][]int64
		rlogs [][]int64
		final int64
		err   string
	}{
		"ok": {
			wlogs: [][]int64{{0, 2, 3}, {1, 4}},
			rlogs: [][]int64{{0, 0, 3, 5}},
			final: 5,
		},
		"lost update": {
			wlogs: [][]int64{{0, 1}, {1, 3}},
			final: 4,
			err:   "write chain broken",
		},
		"writer went backwards": {
			wlogs: [][]int64{{1, 0}},
			final: 2,
			err:   "writer 0",
		},
		"wrong final": {
			wlogs: [][]int64{{0, 1}},
			final: 3,
			err:   "final value",
		},
		"reader went backwards": {
			wlogs: [][]int64{{0, 1}},
			rlogs: [][]int64{{2, 1}},
			final: 2,
			err:   "reader 0",
		},
		"reader saw released value": {
			wlogs: [][]int64{{0}},
			rlogs: [][]int64{{poison}},
			final: 1,
			err:   "outside",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := verify(tc.wlogs, tc.rlogs, tc.final)
			if tc.err == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.err)
		})
	}
}

func TestValuesPoisonOnRelease(t *testing.T) {
	vals := &values{}
	p := rotptr.New(vals.get(7), rotptr.WithRelease(vals.put))

	old := p.Swap(vals.get(8))
	v := old.Value()
	require.Equal(t, int64(7), *v)
	old.Release()
	assert.Equal(t, int64(poison), *v)
}

func TestCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--writers", "1", "--readers", "1", "--tasks", "50", "--print", "--log-level", "warn"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})

	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	assert.Equal(t, 1+50, strings.Count(out.String(), "\n"))
	assert.True(t, strings.HasPrefix(out.String(), "w0\tr1\n"))
}

func TestCommandBadLogLevel(t *testing.T) {
	rootCmd.SetArgs([]string{"--tasks", "1", "--log-level", "loud"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
