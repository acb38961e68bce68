package checkpoint

import (
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-opera-escrow/escrow/slopes"
	"github.com/rony4d/go-opera-escrow/inter"
)

func point(bias, slope int64, ts inter.Timestamp) inter.Point {
	return inter.Point{Bias: big.NewInt(bias), Slope: big.NewInt(slope), Ts: ts, Blk: 0}
}

func TestHistory_FindPrefersLaterTies(t *testing.T) {
	require := require.New(t)

	h, err := FromPoints([]inter.Point{
		point(0, 0, 10),
		point(100, 1, 50),
		point(300, 3, 50),
		point(250, 3, 100),
	})
	require.NoError(err)

	tests := []struct {
		ts    inter.Timestamp
		want  int
		found bool
	}{
		{5, -1, false},
		{10, 0, true},
		{49, 0, true},
		{50, 2, true},
		{99, 2, true},
		{100, 3, true},
		{1000, 3, true},
	}
	for _, tt := range tests {
		got, ok := h.Find(tt.ts)
		require.Equal(tt.found, ok, "ts %d", tt.ts)
		require.Equal(tt.want, got, "ts %d", tt.ts)
	}

	require.Equal(int64(270), h.ValueAt(60).Int64())
	require.Equal(int64(0), h.ValueAt(5).Int64())
	require.Equal(int64(0), h.ValueAt(1000).Int64())
}

func TestHistory_FromPointsValidates(t *testing.T) {
	_, err := FromPoints(nil)
	require.Error(t, err)

	_, err = FromPoints([]inter.Point{point(0, 0, 10), point(1, 0, 5)})
	require.Error(t, err)

	_, err = FromPoints([]inter.Point{point(-1, 0, 10)})
	require.Error(t, err)
}

func TestHistory_Segments(t *testing.T) {
	require := require.New(t)

	h, err := FromPoints([]inter.Point{
		point(0, 0, 20),
		point(100, 1, 50),
		point(300, 3, 50),
		point(250, 3, 100),
	})
	require.NoError(err)

	type seg struct {
		start, end inter.Timestamp
		bias       int64
	}
	var got []seg
	h.Segments(0, 150, func(start, end inter.Timestamp, p inter.Point) {
		got = append(got, seg{start, end, p.Bias.Int64()})
	})
	require.Equal([]seg{
		{0, 20, 0},
		{20, 50, 0},
		{50, 100, 300},
		{100, 150, 250},
	}, got)

	got = nil
	h.Segments(60, 80, func(start, end inter.Timestamp, p inter.Point) {
		got = append(got, seg{start, end, p.Bias.Int64()})
	})
	require.Equal([]seg{{60, 80, 300}}, got)

	got = nil
	h.Segments(80, 80, func(start, end inter.Timestamp, p inter.Point) {
		got = append(got, seg{start, end, p.Bias.Int64()})
	})
	require.Empty(got)
}

func TestHistory_WithLeavesReceiverUntouched(t *testing.T) {
	require := require.New(t)

	c := Checkpointer{Step: 100, Strict: true}
	h, sched := lockedHistory(t, c)
	b, err := c.Advance(h, sched, 350, 31, Delta{})
	require.NoError(err)

	view, err := h.With(b)
	require.NoError(err)
	require.Equal(6, view.Len())
	require.Equal(2, h.Len())

	// the original keeps growing independently
	extra, err := c.Advance(h, sched, 120, 5, Delta{})
	require.NoError(err)
	require.NoError(h.Apply(extra))
	last, ok := view.At(5)
	require.True(ok)
	require.Equal(inter.Timestamp(350), last.Ts)
}

func TestProject_MatchesDenseAdvance(t *testing.T) {
	require := require.New(t)

	c := Checkpointer{Step: 100, Strict: true}
	h, sched := lockedHistory(t, c)
	// second lock expiring later, added at 50 as well
	b, err := c.Advance(h, sched, 50, 1, Delta{Bias: big.NewInt(450), Slope: big.NewInt(1)})
	require.NoError(err)
	require.NoError(h.Apply(b))
	sched.Add(500, big.NewInt(-1))

	future := []inter.Timestamp{50, 99, 100, 250, 300, 301, 450, 500, 700}
	projected := make([]*big.Int, len(future))
	for i, ts := range future {
		projected[i] = Project(h, sched, 100, ts)
	}

	b, err = c.Advance(h, sched, 700, 10, Delta{})
	require.NoError(err)
	require.NoError(h.Apply(b))
	for i, ts := range future {
		require.Equal(h.ValueAt(ts).String(), projected[i].String(), "ts %d", ts)
		require.Equal(h.ValueAt(ts).String(), Project(h, sched, 100, ts).String(), "ts %d after checkpoint", ts)
	}
	require.Equal(int64(0), Project(h, sched, 100, 700).Int64())
	require.Equal(int64(0), Project(h, slopes.New(), 0, 10).Int64())
}

func TestProject_FarFuture(t *testing.T) {
	require := require.New(t)

	const year = inter.Timestamp(365 * 24 * 3600)
	c := Checkpointer{Step: 100, Strict: true}
	h := NewHistory(inter.ZeroPoint(0, 1))
	sched := slopes.New()
	b, err := c.Advance(h, sched, 0, 1, Delta{Bias: (4 * year).Big(), Slope: big.NewInt(1)})
	require.NoError(err)
	require.NoError(h.Apply(b))
	sched.Add(4*year, big.NewInt(-1))

	horizons := []inter.Timestamp{year, 4*year - 1, 4 * year, 40 * year, inter.Timestamp(math.MaxUint64)}
	got := make([]*big.Int, len(horizons))
	var open *big.Int
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i, ts := range horizons {
			got[i] = Project(h, sched, 100, ts)
		}
		// no expiry recorded: the line keeps decaying and clamps at zero
		open = Project(h, slopes.New(), 100, inter.Timestamp(math.MaxUint64))
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("projection did not finish")
	}

	require.Equal((3 * year).Big().String(), got[0].String())
	require.Equal(int64(1), got[1].Int64())
	for _, v := range got[2:] {
		require.Equal(int64(0), v.Int64())
	}
	require.Equal(int64(0), open.Int64())
}
