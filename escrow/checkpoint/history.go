// Package checkpoint maintains append-only histories of decaying weight and the
// algorithm that advances them through time.
//
// A History is a sequence of inter.Point ordered by time. Between two points
// the weight is linear; scheduled slope changes only ever happen at points, so
// the recorded trajectory is an exact piecewise-linear curve. Histories only
// grow, which keeps every past query answerable.
package checkpoint

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/rony4d/go-opera-escrow/inter"
)

var errStaleBatch = errors.New("checkpoint: batch computed against a different history length")

// History is an append-only sequence of points. Epoch 0 is the sentinel point
// the history was created with.
type History struct {
	points []inter.Point
}

// NewHistory starts a history at the given sentinel point.
func NewHistory(genesis inter.Point) *History {
	return &History{points: []inter.Point{genesis.Copy()}}
}

// FromPoints restores a history, checking that points are time ordered and non-negative.
func FromPoints(points []inter.Point) (*History, error) {
	if len(points) == 0 {
		return nil, errors.New("checkpoint: empty history")
	}
	h := &History{points: make([]inter.Point, len(points))}
	for i, p := range points {
		if p.Bias == nil || p.Slope == nil || p.Bias.Sign() < 0 || p.Slope.Sign() < 0 {
			return nil, fmt.Errorf("checkpoint: point %d carries negative or missing weight", i)
		}
		if i > 0 && (p.Ts < points[i-1].Ts || p.Blk < points[i-1].Blk) {
			return nil, fmt.Errorf("checkpoint: point %d goes back in time", i)
		}
		h.points[i] = p.Copy()
	}
	return h, nil
}

// Len returns the number of recorded points, sentinel included.
func (h *History) Len() int {
	return len(h.points)
}

// Epoch returns the index of the latest point.
func (h *History) Epoch() uint64 {
	return uint64(len(h.points) - 1)
}

// At returns a copy of the point at the given epoch.
func (h *History) At(epoch uint64) (inter.Point, bool) {
	if epoch >= uint64(len(h.points)) {
		return inter.Point{}, false
	}
	return h.points[epoch].Copy(), true
}

// Last returns a copy of the latest point.
func (h *History) Last() inter.Point {
	return h.points[len(h.points)-1].Copy()
}

// Points returns a deep copy of the whole history.
func (h *History) Points() []inter.Point {
	out := make([]inter.Point, len(h.points))
	for i, p := range h.points {
		out[i] = p.Copy()
	}
	return out
}

// Find binary-searches the latest point recorded at or before ts. Among points
// sharing a timestamp the one appended last wins.
//
// Returns:
//   - int: index of the point
//   - bool: false when ts precedes the whole history
func (h *History) Find(ts inter.Timestamp) (int, bool) {
	i := sort.Search(len(h.points), func(i int) bool { return h.points[i].Ts > ts }) - 1
	return i, i >= 0
}

// ValueAt returns the recorded weight at ts, extrapolated from the governing point.
func (h *History) ValueAt(ts inter.Timestamp) *big.Int {
	i, ok := h.Find(ts)
	if !ok {
		return new(big.Int)
	}
	return h.points[i].ValueAt(ts)
}

// Segments walks the linear pieces of the history covering [from, to). For each
// piece fn receives its bounds and the point governing it; the point must be
// treated as read-only. Time before the first point is reported as zero weight.
func (h *History) Segments(from, to inter.Timestamp, fn func(start, end inter.Timestamp, p inter.Point)) {
	if to <= from {
		return
	}
	start := from
	i, ok := h.Find(from)
	if !ok {
		first := h.points[0].Ts
		if first >= to {
			fn(from, to, inter.ZeroPoint(from, 0))
			return
		}
		fn(from, first, inter.ZeroPoint(from, 0))
		start = first
		i, _ = h.Find(first)
	}
	for start < to {
		next := i + 1
		end := to
		if next < len(h.points) && h.points[next].Ts < to {
			end = h.points[next].Ts
		}
		fn(start, end, h.points[i])
		if end == to {
			return
		}
		start = end
		i = next
		for i+1 < len(h.points) && h.points[i+1].Ts == start {
			i++
		}
	}
}

// Apply appends a batch produced by a Checkpointer against this history.
func (h *History) Apply(b Batch) error {
	if b.Base != len(h.points) {
		return errStaleBatch
	}
	h.points = append(h.points, b.Points...)
	return nil
}

// With returns a read-only view of the history as if b had been applied.
// The receiver is left untouched.
func (h *History) With(b Batch) (*History, error) {
	if b.Base != len(h.points) {
		return nil, errStaleBatch
	}
	n := len(h.points)
	return &History{points: append(h.points[:n:n], b.Points...)}, nil
}

// Copy returns a deep copy of the history.
func (h *History) Copy() *History {
	return &History{points: h.Points()}
}
