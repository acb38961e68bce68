package checkpoint

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"

	"github.com/rony4d/go-opera-escrow/escrow/slopes"
	"github.com/rony4d/go-opera-escrow/inter"
)

var (
	// ErrInvalidTime is returned when a caller asks to advance a history to a
	// time (or block) earlier than its latest point.
	ErrInvalidTime = errors.New("time moved backwards")
	// ErrBacklog is returned when more boundaries separate the latest point from
	// now than a single advance may replay.
	ErrBacklog = errors.New("checkpoint backlog exceeds per-call limit")
	// ErrInvariant signals a defect: a weight or decay rate turned negative.
	ErrInvariant = errors.New("ledger invariant violated")
)

// Delta is the direct change a lock operation superimposes on the decayed
// values at now.
type Delta struct {
	Bias  *big.Int
	Slope *big.Int
}

// IsZero reports whether the delta changes nothing.
func (d Delta) IsZero() bool {
	return (d.Bias == nil || d.Bias.Sign() == 0) && (d.Slope == nil || d.Slope.Sign() == 0)
}

// Batch is the set of points an advance would append. Nothing is written to a
// history until the batch is applied, which lets callers validate a whole
// operation before committing any of it.
type Batch struct {
	// Base is the history length the batch was computed against.
	Base int
	// Points to append, in time order.
	Points []inter.Point
	// Complete is false when a bounded catch-up stopped before reaching now.
	Complete bool
}

// Last returns the newest point of the batch, if any.
func (b Batch) Last() (inter.Point, bool) {
	if len(b.Points) == 0 {
		return inter.Point{}, false
	}
	return b.Points[len(b.Points)-1], true
}

// Checkpointer advances histories. The global ledger uses a dense checkpointer
// (Step = window length) so every boundary where scheduled slope changes apply
// is recorded; per-user ledgers use a sparse one (Step = 0) because a single
// lock changes slope only at its own expiry, where its weight reaches zero.
type Checkpointer struct {
	// Step is the boundary spacing. Zero disables boundary points.
	Step inter.Timestamp
	// Limit caps boundary points appended per call. Zero means unbounded.
	Limit int
	// Strict treats negative weight beyond one second of decay, or any negative
	// slope, as an invariant violation instead of clamping it.
	Strict bool
}

// Pending returns how many boundary points separate the latest point of h from now.
func (c Checkpointer) Pending(h *History, now inter.Timestamp) int {
	if c.Step == 0 {
		return 0
	}
	last := h.points[len(h.points)-1].Ts
	first := last.Floor(c.Step) + c.Step
	if first >= now {
		return 0
	}
	return int((now-1-first)/c.Step) + 1
}

// Advance computes the points bringing h up to now with delta applied on top.
// It never returns a partial batch: when the replay would exceed Limit it fails
// with ErrBacklog and the caller should catch up first.
//
// Parameters:
//   - h: history to advance (not modified)
//   - sched: scheduled slope changes, read at every boundary crossed
//   - now: target time, must not precede the latest point
//   - blk: host block counter at now
//   - delta: direct change applied at now
//
// Returns:
//   - Batch: points to append; empty when now is already recorded and delta is zero
//   - error: ErrInvalidTime, ErrBacklog or ErrInvariant
func (c Checkpointer) Advance(h *History, sched slopes.Reader, now inter.Timestamp, blk idx.Block, delta Delta) (Batch, error) {
	if pending := c.Pending(h, now); c.Limit > 0 && pending > c.Limit {
		return Batch{}, fmt.Errorf("%w: %d boundaries pending, limit %d", ErrBacklog, pending, c.Limit)
	}
	return c.advance(h, sched, now, blk, delta)
}

// CatchUp advances h towards now without any direct change, replaying at most
// Limit boundaries. Repeated calls converge on now in bounded steps.
func (c Checkpointer) CatchUp(h *History, sched slopes.Reader, now inter.Timestamp, blk idx.Block) (Batch, error) {
	return c.advance(h, sched, now, blk, Delta{})
}

func (c Checkpointer) advance(h *History, sched slopes.Reader, now inter.Timestamp, blk idx.Block, delta Delta) (Batch, error) {
	last := h.points[len(h.points)-1]
	if now < last.Ts || blk < last.Blk {
		return Batch{}, fmt.Errorf("%w: at %d/%d, latest point %d/%d", ErrInvalidTime, now, blk, last.Ts, last.Blk)
	}
	b := Batch{Base: len(h.points), Complete: true}
	if now == last.Ts && delta.IsZero() {
		return b, nil
	}

	bias := new(big.Int).Set(last.Bias)
	slope := new(big.Int).Set(last.Slope)
	ts := last.Ts

	if c.Step > 0 {
		for w := last.Ts.Floor(c.Step) + c.Step; w <= now; w += c.Step {
			if w < now && c.Limit > 0 && len(b.Points) == c.Limit {
				b.Complete = false
				return b, nil
			}
			decay(bias, slope, w-ts)
			prevSlope := new(big.Int).Set(slope)
			slope.Add(slope, sched.At(w))
			if err := c.settle(bias, slope, prevSlope); err != nil {
				return Batch{}, fmt.Errorf("boundary %d: %w", w, err)
			}
			ts = w
			if w == now {
				break
			}
			b.Points = append(b.Points, inter.Point{
				Bias:  new(big.Int).Set(bias),
				Slope: new(big.Int).Set(slope),
				Ts:    w,
				Blk:   interpolateBlock(last.Ts, last.Blk, now, blk, w),
			})
		}
	}

	decay(bias, slope, now-ts)
	if err := c.settle(bias, slope, slope); err != nil {
		return Batch{}, fmt.Errorf("at %d: %w", now, err)
	}
	if delta.Bias != nil {
		bias.Add(bias, delta.Bias)
	}
	if delta.Slope != nil {
		slope.Add(slope, delta.Slope)
	}
	if bias.Sign() < 0 || slope.Sign() < 0 {
		return Batch{}, fmt.Errorf("%w: bias %s slope %s after direct change at %d", ErrInvariant, bias, slope, now)
	}
	b.Points = append(b.Points, inter.Point{Bias: bias, Slope: slope, Ts: now, Blk: blk})
	return b, nil
}

// settle resolves negative values produced by decay.
func (c Checkpointer) settle(bias, slope, tolerance *big.Int) error {
	if slope.Sign() < 0 {
		if c.Strict {
			return fmt.Errorf("%w: negative slope %s", ErrInvariant, slope)
		}
		slope.SetUint64(0)
	}
	if bias.Sign() > 0 {
		return nil
	}
	if c.Strict {
		if new(big.Int).Neg(bias).Cmp(tolerance) > 0 {
			return fmt.Errorf("%w: bias %s below rounding tolerance", ErrInvariant, bias)
		}
		bias.SetUint64(0)
		return nil
	}
	// a single lock has fully decayed
	bias.SetUint64(0)
	slope.SetUint64(0)
	return nil
}

func decay(bias, slope *big.Int, dt inter.Timestamp) {
	if dt == 0 || slope.Sign() == 0 {
		return
	}
	d := dt.Big()
	bias.Sub(bias, d.Mul(d, slope))
}

// interpolateBlock estimates the block counter at boundary w assuming blocks
// advanced uniformly between the latest point and now.
func interpolateBlock(fromTs inter.Timestamp, fromBlk idx.Block, toTs inter.Timestamp, toBlk idx.Block, w inter.Timestamp) idx.Block {
	if toTs <= fromTs || toBlk <= fromBlk {
		return fromBlk
	}
	v := new(big.Int).SetUint64(uint64(toBlk - fromBlk))
	v.Mul(v, (w - fromTs).Big())
	v.Div(v, (toTs - fromTs).Big())
	return fromBlk + idx.Block(v.Uint64())
}
