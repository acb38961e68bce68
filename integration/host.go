package integration

import (
	"time"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"

	"github.com/rony4d/go-opera-escrow/inter"
)

// ClockHost feeds the ledger the wall clock. Readings never go backwards: a
// clock step back repeats the last reading instead.
//
// The block counter advances by one whenever a reading moves to a new second,
// so it counts the distinct instants the ledger has observed.
type ClockHost struct {
	now  func() time.Time
	last inter.Timestamp
	blk  idx.Block
}

// NewClockHost returns a host starting at block start. A nil now uses time.Now.
func NewClockHost(now func() time.Time, start idx.Block) *ClockHost {
	if now == nil {
		now = time.Now
	}
	return &ClockHost{now: now, blk: start}
}

// Now returns the current time in seconds.
func (h *ClockHost) Now() inter.Timestamp {
	ts := inter.FromTime(h.now())
	if ts <= h.last {
		return h.last
	}
	h.last = ts
	h.blk++
	return ts
}

// Block returns the current block counter.
func (h *ClockHost) Block() idx.Block {
	return h.blk
}

// Resume makes the host continue after a previously recorded instant, so a
// restored ledger never sees time or blocks going backwards.
func (h *ClockHost) Resume(ts inter.Timestamp, blk idx.Block) {
	if ts > h.last {
		h.last = ts
	}
	if blk > h.blk {
		h.blk = blk
	}
}
