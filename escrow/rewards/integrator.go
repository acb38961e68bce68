package rewards

import (
	"math/big"

	"github.com/rony4d/go-opera-escrow/escrow/checkpoint"
	"github.com/rony4d/go-opera-escrow/inter"
)

// Integral returns twice the area under the trajectory recorded in h over
// [from, to). Each linear piece contributes the trapezoid
// (v(start)+v(end))*(end-start); keeping the doubled area avoids halving every
// piece and makes the result exact.
func Integral(h *checkpoint.History, from, to inter.Timestamp) *big.Int {
	area := new(big.Int)
	h.Segments(from, to, func(start, end inter.Timestamp, p inter.Point) {
		// the weight may reach zero inside the piece, integrate up to that point only
		if zero, ok := zeroCrossing(p); ok && zero > start && zero < end {
			end = zero
		}
		v := p.ValueAt(start)
		v.Add(v, p.ValueAt(end))
		v.Mul(v, (end - start).Big())
		area.Add(area, v)
	})
	return area
}

// Average returns the time-average of the trajectory over
// [window, window+length), rounded down.
func Average(h *checkpoint.History, window, length inter.Timestamp) *big.Int {
	if length == 0 {
		return new(big.Int)
	}
	area := Integral(h, window, window+length)
	return area.Div(area, new(big.Int).Mul(big.NewInt(2), length.Big()))
}

// Share splits amount by the ratio of two integrals, multiplying before dividing.
// A zero total yields zero.
func Share(amount, part, total *big.Int) *big.Int {
	if total.Sign() == 0 || part.Sign() == 0 || amount.Sign() == 0 {
		return new(big.Int)
	}
	v := new(big.Int).Mul(amount, part)
	return v.Div(v, total)
}

func zeroCrossing(p inter.Point) (inter.Timestamp, bool) {
	if p.Slope == nil || p.Slope.Sign() == 0 || p.Bias == nil {
		return 0, false
	}
	q := new(big.Int).Div(p.Bias, p.Slope)
	if !q.IsUint64() {
		return 0, false
	}
	return p.Ts + inter.Timestamp(q.Uint64()), true
}
