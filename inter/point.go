package inter

import (
	"fmt"
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
)

// Point is one recorded sample of a decaying weight trajectory.
//
// Between two consecutive points of the same ledger the weight evolves linearly:
//
//	weight(t) = max(0, Bias - Slope*(t - Ts))
//
// Points are appended by the checkpoint algorithm and never mutated afterwards,
// which is why every constructor below returns fresh *big.Int values.
type Point struct {
	// Bias is the weight at Ts.
	Bias *big.Int
	// Slope is the decay rate per second active from Ts onwards.
	Slope *big.Int
	// Ts is the time the point was recorded.
	Ts Timestamp
	// Blk is the host block counter at Ts, used to correlate history with blocks.
	Blk idx.Block
}

// ZeroPoint returns a point carrying no weight at the given position.
func ZeroPoint(ts Timestamp, blk idx.Block) Point {
	return Point{
		Bias:  new(big.Int),
		Slope: new(big.Int),
		Ts:    ts,
		Blk:   blk,
	}
}

// Copy returns a deep copy of the point.
func (p Point) Copy() Point {
	cp := p
	cp.Bias = cloneBig(p.Bias)
	cp.Slope = cloneBig(p.Slope)
	return cp
}

// IsZero reports whether the point carries neither weight nor decay.
func (p Point) IsZero() bool {
	return sign(p.Bias) == 0 && sign(p.Slope) == 0
}

// ValueAt extrapolates the weight at t from this point.
//
// Parameters:
//   - t: query time; values before Ts return the recorded bias
//
// Returns:
//   - *big.Int: max(0, Bias - Slope*(t-Ts)), always a fresh value
func (p Point) ValueAt(t Timestamp) *big.Int {
	v := cloneBig(p.Bias)
	if t <= p.Ts || sign(p.Slope) == 0 {
		return v
	}
	dt := (t - p.Ts).Big()
	v.Sub(v, dt.Mul(dt, p.Slope))
	if v.Sign() < 0 {
		v.SetUint64(0)
	}
	return v
}

// String implements fmt.Stringer.
func (p Point) String() string {
	return fmt.Sprintf("{bias=%s slope=%s ts=%d blk=%d}", bigString(p.Bias), bigString(p.Slope), p.Ts, p.Blk)
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func sign(v *big.Int) int {
	if v == nil {
		return 0
	}
	return v.Sign()
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
