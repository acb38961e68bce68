// Package inter defines the core data structures shared by the escrow ledger:
// timestamps, trajectory points and lock records.
//
// Key concepts:
//   - Timestamp: wall-clock seconds supplied by the host, never read from the OS
//     inside the ledger itself
//   - Point: one recorded sample of a piecewise-linear decaying weight
//   - LockedBalance: the amount a user locked and the window-aligned expiry
//
// All weights are *big.Int and are never negative once recorded.

package inter

import (
	"fmt"
	"math/big"
	"time"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
)

// Timestamp is a point in time measured in whole seconds since the Unix epoch.
// The ledger works exclusively with second granularity so that decay arithmetic
// (slope * seconds) stays exact.
type Timestamp uint64

// FromUnix converts Unix seconds into a Timestamp. Negative input is clamped to zero.
func FromUnix(sec int64) Timestamp {
	if sec < 0 {
		return 0
	}
	return Timestamp(sec)
}

// FromTime converts a time.Time into a Timestamp, truncating sub-second precision.
func FromTime(t time.Time) Timestamp {
	return FromUnix(t.Unix())
}

// Unix returns the timestamp as Unix seconds.
func (t Timestamp) Unix() int64 {
	return int64(t)
}

// Time returns the timestamp as a UTC time.Time.
func (t Timestamp) Time() time.Time {
	return time.Unix(int64(t), 0).UTC()
}

// Bytes returns the big-endian encoding used for storage keys.
func (t Timestamp) Bytes() []byte {
	return bigendian.Uint64ToBytes(uint64(t))
}

// Big returns the timestamp as a new *big.Int.
func (t Timestamp) Big() *big.Int {
	return new(big.Int).SetUint64(uint64(t))
}

// Floor rounds t down to the nearest multiple of step.
//
// Parameters:
//   - step: window or sub-window length in seconds; zero leaves t unchanged
//
// Returns:
//   - Timestamp: the start of the step-aligned bucket containing t
func (t Timestamp) Floor(step Timestamp) Timestamp {
	if step == 0 {
		return t
	}
	return t / step * step
}

// Aligned reports whether t lies exactly on a step boundary.
func (t Timestamp) Aligned(step Timestamp) bool {
	return step != 0 && t%step == 0
}

// String implements fmt.Stringer.
func (t Timestamp) String() string {
	return fmt.Sprintf("%d", uint64(t))
}

// Seconds converts a duration into a Timestamp span, truncating sub-second precision.
func Seconds(d time.Duration) Timestamp {
	return Timestamp(d / time.Second)
}
