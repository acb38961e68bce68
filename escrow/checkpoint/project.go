package checkpoint

import (
	"math/big"

	"github.com/rony4d/go-opera-escrow/escrow/slopes"
	"github.com/rony4d/go-opera-escrow/inter"
)

// Project evaluates a dense history at ts, applying the scheduled slope
// changes between the governing point and ts. For times already covered by
// the history the result equals h.ValueAt(ts); past the latest point it is the
// exact future value, computed without recording anything. Only scheduled
// boundaries are visited, so the cost does not depend on how far ts lies.
func Project(h *History, sched slopes.Ranger, step inter.Timestamp, ts inter.Timestamp) *big.Int {
	i, ok := h.Find(ts)
	if !ok {
		return new(big.Int)
	}
	p := h.points[i]
	if step == 0 {
		return p.ValueAt(ts)
	}
	bias := new(big.Int).Set(p.Bias)
	slope := new(big.Int).Set(p.Slope)
	last := p.Ts
	for _, w := range sched.Between(p.Ts, ts) {
		if !w.Aligned(step) {
			// the checkpoint walk only applies changes on window boundaries
			continue
		}
		decay(bias, slope, w-last)
		last = w
		if w == ts {
			break
		}
		slope.Add(slope, sched.At(w))
		if slope.Sign() < 0 {
			slope.SetUint64(0)
		}
		if bias.Sign() <= 0 {
			break
		}
	}
	decay(bias, slope, ts-last)
	if bias.Sign() < 0 {
		bias.SetUint64(0)
	}
	return bias
}
