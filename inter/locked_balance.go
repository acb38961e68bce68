package inter

import (
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
)

// LockedBalance is a user's lock record: the locked quantity and its expiry.
// Amount and End are both zero exactly when no lock exists.
type LockedBalance struct {
	Amount *big.Int
	// End is always a multiple of the window length.
	End Timestamp
}

// NoLock returns the empty lock record.
func NoLock() LockedBalance {
	return LockedBalance{Amount: new(big.Int)}
}

// Copy returns a deep copy of the record.
func (l LockedBalance) Copy() LockedBalance {
	return LockedBalance{Amount: cloneBig(l.Amount), End: l.End}
}

// Exists reports whether anything is locked.
func (l LockedBalance) Exists() bool {
	return sign(l.Amount) > 0
}

// Expired reports whether the lock no longer carries weight at now.
func (l LockedBalance) Expired(now Timestamp) bool {
	return now >= l.End
}

// PointAt computes the lock's own contribution to a trajectory at now.
//
// Parameters:
//   - now: evaluation time
//   - blk: host block counter stamped on the point
//   - maxTime: maximum lock duration, the divisor defining the decay rate
//
// Returns:
//   - Point: slope = Amount/maxTime and bias = slope*(End-now) while the lock is
//     live, a zero point otherwise
func (l LockedBalance) PointAt(now Timestamp, blk idx.Block, maxTime Timestamp) Point {
	if !l.Exists() || l.Expired(now) || maxTime == 0 {
		return ZeroPoint(now, blk)
	}
	slope := new(big.Int).Div(l.Amount, maxTime.Big())
	bias := (l.End - now).Big()
	bias.Mul(bias, slope)
	return Point{Bias: bias, Slope: slope, Ts: now, Blk: blk}
}
