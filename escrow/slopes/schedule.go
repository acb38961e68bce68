// Package slopes holds the deferred slope-change schedule of the escrow ledger:
// for every lock expiry it records by how much the aggregate decay rate changes
// once that expiry is reached.
package slopes

import (
	"errors"
	"math/big"
	"sort"

	"github.com/rony4d/go-opera-escrow/inter"
)

// Reader is the read side of a schedule, as consumed by the checkpoint algorithm.
type Reader interface {
	// At returns the signed slope change scheduled at ts (zero when none).
	At(ts inter.Timestamp) *big.Int
}

// Ranger is a Reader that can also list the timestamps it holds changes for.
type Ranger interface {
	Reader
	// Between returns the scheduled timestamps in (from, to], ascending.
	Between(from, to inter.Timestamp) []inter.Timestamp
}

// Schedule is an ordered map from timestamp to a signed slope change.
// Zero entries are never stored.
type Schedule struct {
	changes map[inter.Timestamp]*big.Int
	keys    []inter.Timestamp // sorted ascending, mirrors changes
}

// Entry is the persisted form of one schedule entry. rlp cannot carry negative
// integers, so the sign travels separately.
type Entry struct {
	Ts  inter.Timestamp
	Neg bool
	Abs *big.Int
}

var errDuplicateEntry = errors.New("duplicate slope change entry")

// New returns an empty schedule.
func New() *Schedule {
	return &Schedule{changes: make(map[inter.Timestamp]*big.Int)}
}

// Add accumulates delta into the entry at ts. An entry that sums to zero is removed.
func (s *Schedule) Add(ts inter.Timestamp, delta *big.Int) {
	if delta == nil || delta.Sign() == 0 {
		return
	}
	cur, ok := s.changes[ts]
	if !ok {
		s.changes[ts] = new(big.Int).Set(delta)
		s.insertKey(ts)
		return
	}
	cur.Add(cur, delta)
	if cur.Sign() == 0 {
		s.Clear(ts)
	}
}

// At returns a copy of the change scheduled at ts.
func (s *Schedule) At(ts inter.Timestamp) *big.Int {
	if v, ok := s.changes[ts]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Clear drops the entry at ts, if any.
func (s *Schedule) Clear(ts inter.Timestamp) {
	if _, ok := s.changes[ts]; !ok {
		return
	}
	delete(s.changes, ts)
	i := s.search(ts)
	s.keys = append(s.keys[:i], s.keys[i+1:]...)
}

// Len returns the number of non-zero entries.
func (s *Schedule) Len() int {
	return len(s.keys)
}

// Keys returns all scheduled timestamps in ascending order.
func (s *Schedule) Keys() []inter.Timestamp {
	out := make([]inter.Timestamp, len(s.keys))
	copy(out, s.keys)
	return out
}

// Between returns the scheduled timestamps in the half-open range (from, to].
func (s *Schedule) Between(from, to inter.Timestamp) []inter.Timestamp {
	if to <= from {
		return nil
	}
	lo := sort.Search(len(s.keys), func(i int) bool { return s.keys[i] > from })
	hi := sort.Search(len(s.keys), func(i int) bool { return s.keys[i] > to })
	out := make([]inter.Timestamp, hi-lo)
	copy(out, s.keys[lo:hi])
	return out
}

// Sum returns the total of all scheduled changes.
func (s *Schedule) Sum() *big.Int {
	total := new(big.Int)
	for _, v := range s.changes {
		total.Add(total, v)
	}
	return total
}

// Copy returns a deep copy of the schedule.
func (s *Schedule) Copy() *Schedule {
	cp := &Schedule{
		changes: make(map[inter.Timestamp]*big.Int, len(s.changes)),
		keys:    s.Keys(),
	}
	for ts, v := range s.changes {
		cp.changes[ts] = new(big.Int).Set(v)
	}
	return cp
}

// Entries exports the schedule in ascending timestamp order.
func (s *Schedule) Entries() []Entry {
	out := make([]Entry, 0, len(s.keys))
	for _, ts := range s.keys {
		v := s.changes[ts]
		out = append(out, Entry{Ts: ts, Neg: v.Sign() < 0, Abs: new(big.Int).Abs(v)})
	}
	return out
}

// FromEntries rebuilds a schedule from exported entries.
func FromEntries(entries []Entry) (*Schedule, error) {
	s := New()
	for _, e := range entries {
		if _, ok := s.changes[e.Ts]; ok {
			return nil, errDuplicateEntry
		}
		if e.Abs == nil {
			continue
		}
		v := new(big.Int).Set(e.Abs)
		if e.Neg {
			v.Neg(v)
		}
		s.Add(e.Ts, v)
	}
	return s, nil
}

func (s *Schedule) search(ts inter.Timestamp) int {
	return sort.Search(len(s.keys), func(i int) bool { return s.keys[i] >= ts })
}

func (s *Schedule) insertKey(ts inter.Timestamp) {
	i := s.search(ts)
	s.keys = append(s.keys, 0)
	copy(s.keys[i+1:], s.keys[i:])
	s.keys[i] = ts
}
