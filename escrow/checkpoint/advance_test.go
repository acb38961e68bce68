package checkpoint

import (
	"errors"
	"math/big"
	"testing"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-opera-escrow/escrow/slopes"
	"github.com/rony4d/go-opera-escrow/inter"
)

// lockedHistory returns a dense history holding one lock of slope 2 that was
// created at t=50 and expires at t=300, plus its schedule.
func lockedHistory(t *testing.T, c Checkpointer) (*History, *slopes.Schedule) {
	h := NewHistory(inter.ZeroPoint(50, 1))
	sched := slopes.New()

	b, err := c.Advance(h, sched, 50, 1, Delta{Bias: big.NewInt(500), Slope: big.NewInt(2)})
	require.NoError(t, err)
	require.Len(t, b.Points, 1)
	require.NoError(t, h.Apply(b))
	sched.Add(300, big.NewInt(-2))
	return h, sched
}

func requirePoint(t *testing.T, p inter.Point, bias, slope int64, ts inter.Timestamp, blk idx.Block) {
	t.Helper()
	require.Equal(t, bias, p.Bias.Int64(), "bias of %s", p)
	require.Equal(t, slope, p.Slope.Int64(), "slope of %s", p)
	require.Equal(t, ts, p.Ts, "ts of %s", p)
	require.Equal(t, blk, p.Blk, "blk of %s", p)
}

func TestAdvance_ReplaysBoundaries(t *testing.T) {
	require := require.New(t)

	c := Checkpointer{Step: 100, Strict: true}
	h, sched := lockedHistory(t, c)
	require.Equal(3, c.Pending(h, 350))

	b, err := c.Advance(h, sched, 350, 31, Delta{})
	require.NoError(err)
	require.True(b.Complete)
	require.Len(b.Points, 4)

	requirePoint(t, b.Points[0], 400, 2, 100, 6)
	requirePoint(t, b.Points[1], 200, 2, 200, 16)
	requirePoint(t, b.Points[2], 0, 0, 300, 26)
	requirePoint(t, b.Points[3], 0, 0, 350, 31)

	// nothing is written before Apply
	require.Equal(2, h.Len())
	require.NoError(h.Apply(b))
	require.Equal(uint64(5), h.Epoch())
	require.Error(h.Apply(b), "stale batch must be rejected")
}

func TestAdvance_BoundaryAtNowCarriesScheduledChange(t *testing.T) {
	require := require.New(t)

	c := Checkpointer{Step: 100, Strict: true}
	h, sched := lockedHistory(t, c)

	b, err := c.Advance(h, sched, 300, 26, Delta{Bias: big.NewInt(10), Slope: big.NewInt(1)})
	require.NoError(err)
	require.Len(b.Points, 3)
	// the change scheduled at 300 is folded into the final point
	requirePoint(t, b.Points[2], 10, 1, 300, 26)
}

func TestAdvance_Idempotent(t *testing.T) {
	require := require.New(t)

	c := Checkpointer{Step: 100, Strict: true}
	h, sched := lockedHistory(t, c)

	b, err := c.Advance(h, sched, 350, 31, Delta{})
	require.NoError(err)
	require.NoError(h.Apply(b))

	again, err := c.Advance(h, sched, 350, 31, Delta{})
	require.NoError(err)
	require.Empty(again.Points)
	require.True(again.Complete)
	require.NoError(h.Apply(again))
	require.Equal(uint64(5), h.Epoch())
}

func TestAdvance_RejectsTimeTravel(t *testing.T) {
	c := Checkpointer{Step: 100, Strict: true}
	h, sched := lockedHistory(t, c)

	_, err := c.Advance(h, sched, 49, 1, Delta{})
	require.True(t, errors.Is(err, ErrInvalidTime))

	_, err = c.Advance(h, sched, 60, 0, Delta{})
	require.True(t, errors.Is(err, ErrInvalidTime))
}

func TestAdvance_BacklogAndCatchUp(t *testing.T) {
	require := require.New(t)

	c := Checkpointer{Step: 100, Limit: 2, Strict: true}
	h, sched := lockedHistory(t, c)

	_, err := c.Advance(h, sched, 350, 31, Delta{Bias: big.NewInt(1)})
	require.True(errors.Is(err, ErrBacklog))
	require.Equal(2, h.Len())

	b, err := c.CatchUp(h, sched, 350, 31)
	require.NoError(err)
	require.False(b.Complete)
	require.Len(b.Points, 2)
	requirePoint(t, b.Points[1], 200, 2, 200, 16)
	require.NoError(h.Apply(b))

	b, err = c.CatchUp(h, sched, 350, 31)
	require.NoError(err)
	require.True(b.Complete)
	require.Len(b.Points, 2)
	requirePoint(t, b.Points[0], 0, 0, 300, 26)
	requirePoint(t, b.Points[1], 0, 0, 350, 31)
	require.NoError(h.Apply(b))
	require.Equal(0, c.Pending(h, 350))
}

func TestAdvance_StrictInvariant(t *testing.T) {
	require := require.New(t)

	c := Checkpointer{Step: 100, Strict: true}
	h := NewHistory(inter.ZeroPoint(50, 1))
	b, err := c.Advance(h, slopes.New(), 50, 1, Delta{Bias: big.NewInt(500), Slope: big.NewInt(2)})
	require.NoError(err)
	require.NoError(h.Apply(b))

	// no scheduled change at expiry: the weight would go far below zero
	_, err = c.Advance(h, slopes.New(), 400, 2, Delta{})
	require.True(errors.Is(err, ErrInvariant))

	_, err = c.Advance(h, slopes.New(), 60, 2, Delta{Bias: big.NewInt(-10000)})
	require.True(errors.Is(err, ErrInvariant))

	broken := slopes.New()
	broken.Add(100, big.NewInt(-5))
	_, err = c.Advance(h, broken, 150, 2, Delta{})
	require.True(errors.Is(err, ErrInvariant))
}

func TestAdvance_SparseClampsExpiredLock(t *testing.T) {
	require := require.New(t)

	c := Checkpointer{}
	h := NewHistory(inter.ZeroPoint(0, 0))
	b, err := c.Advance(h, nil, 50, 1, Delta{Bias: big.NewInt(500), Slope: big.NewInt(2)})
	require.NoError(err)
	require.NoError(h.Apply(b))

	b, err = c.Advance(h, nil, 400, 9, Delta{})
	require.NoError(err)
	require.Len(b.Points, 1)
	requirePoint(t, b.Points[0], 0, 0, 400, 9)
}
