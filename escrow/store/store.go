// Package store persists ledger snapshots in a key-value database.
//
// Every Save appends a new record under an increasing sequence number and
// indexes it by the snapshot's state hash, so any past state can be reloaded
// either by position or by fingerprint. Records are RLP encoded.
//
// Layout (one table per prefix):
//
//	"r" + seq(8 bytes)  -> rlp(record)
//	"h" + state hash    -> seq
//	"m" + "head"        -> seq of the latest record
//	"m" + "tail"        -> seq of the oldest retained record
package store

import (
	"errors"
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/kvdb"
	"github.com/Fantom-foundation/lachesis-base/kvdb/table"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-opera-escrow/custody"
	"github.com/rony4d/go-opera-escrow/escrow"
)

// ErrNotFound is returned when no record matches the query.
var ErrNotFound = errors.New("snapshot not found")

var (
	headKey = []byte("head")
	tailKey = []byte("tail")
)

// Record is one persisted ledger state together with the custody balances
// that back it.
type Record struct {
	Seq      uint64
	Hash     hash.Hash
	Snapshot escrow.Snapshot
	Balances []custody.Balance
}

// encoded form, the hash and sequence are derived
type record struct {
	Snapshot escrow.Snapshot
	Balances []custody.Balance
}

// Store keeps ledger snapshots.
type Store struct {
	db  kvdb.Store
	log logrus.FieldLogger

	table struct {
		Records kvdb.Store `table:"r"`
		Hashes  kvdb.Store `table:"h"`
		Meta    kvdb.Store `table:"m"`
	}
}

// New wraps db. The store does not take ownership of db.
func New(db kvdb.Store, log logrus.FieldLogger) *Store {
	s := &Store{db: db, log: log}
	table.MigrateTables(&s.table, s.db)
	return s
}

// Save appends a snapshot and the custody balances backing it.
//
// Returns:
//   - uint64: sequence number of the new record, starting at 1
//   - hash.Hash: state hash of the snapshot
//   - error: encoding or database failure
func (s *Store) Save(snap escrow.Snapshot, balances []custody.Balance) (uint64, hash.Hash, error) {
	head, _, err := s.Head()
	if err != nil {
		return 0, hash.Hash{}, err
	}
	seq := head + 1
	h := snap.Hash()

	b, err := rlp.EncodeToBytes(&record{Snapshot: snap, Balances: balances})
	if err != nil {
		return 0, hash.Hash{}, fmt.Errorf("encode snapshot: %w", err)
	}
	key := bigendian.Uint64ToBytes(seq)
	if err := s.table.Records.Put(key, b); err != nil {
		return 0, hash.Hash{}, err
	}
	if err := s.table.Hashes.Put(h.Bytes(), key); err != nil {
		return 0, hash.Hash{}, err
	}
	if err := s.table.Meta.Put(headKey, key); err != nil {
		return 0, hash.Hash{}, err
	}
	s.log.WithFields(logrus.Fields{
		"seq":  seq,
		"hash": h.String(),
		"size": len(b),
	}).Debug("Snapshot saved")
	return seq, h, nil
}

// Head returns the sequence number of the latest record.
func (s *Store) Head() (uint64, bool, error) {
	v, err := s.get(s.table.Meta, headKey)
	if err != nil || v == nil {
		return 0, false, err
	}
	if len(v) != 8 {
		return 0, false, fmt.Errorf("corrupted head record of %d bytes", len(v))
	}
	return bigendian.BytesToUint64(v), true, nil
}

func (s *Store) tail() (uint64, error) {
	v, err := s.get(s.table.Meta, tailKey)
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 1, nil
	}
	return bigendian.BytesToUint64(v), nil
}

// Prune deletes all but the newest keep records. Zero keep retains everything.
//
// Returns:
//   - int: number of deleted records
//   - error: database failure
func (s *Store) Prune(keep uint64) (int, error) {
	head, ok, err := s.Head()
	if err != nil || !ok || keep == 0 || head <= keep {
		return 0, err
	}
	from, err := s.tail()
	if err != nil {
		return 0, err
	}
	last := head - keep
	removed := 0
	for seq := from; seq <= last; seq++ {
		rec, err := s.Load(seq)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return removed, err
		}
		// identical states share one hash entry pointing at the newest of them
		v, err := s.get(s.table.Hashes, rec.Hash.Bytes())
		if err != nil {
			return removed, err
		}
		if len(v) == 8 && bigendian.BytesToUint64(v) == seq {
			if err := s.table.Hashes.Delete(rec.Hash.Bytes()); err != nil {
				return removed, err
			}
		}
		if err := s.table.Records.Delete(bigendian.Uint64ToBytes(seq)); err != nil {
			return removed, err
		}
		removed++
	}
	if err := s.table.Meta.Put(tailKey, bigendian.Uint64ToBytes(last+1)); err != nil {
		return removed, err
	}
	if removed > 0 {
		s.log.WithFields(logrus.Fields{
			"removed": removed,
			"tail":    last + 1,
		}).Debug("Snapshots pruned")
	}
	return removed, nil
}

// Load returns the record with the given sequence number.
func (s *Store) Load(seq uint64) (*Record, error) {
	v, err := s.get(s.table.Records, bigendian.Uint64ToBytes(seq))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("%w: seq %d", ErrNotFound, seq)
	}
	var r record
	if err := rlp.DecodeBytes(v, &r); err != nil {
		return nil, fmt.Errorf("decode snapshot %d: %w", seq, err)
	}
	return &Record{
		Seq:      seq,
		Hash:     r.Snapshot.Hash(),
		Snapshot: r.Snapshot,
		Balances: r.Balances,
	}, nil
}

// Latest returns the most recent record.
func (s *Store) Latest() (*Record, error) {
	head, ok, err := s.Head()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return s.Load(head)
}

// LoadByHash returns the record whose snapshot has the given state hash.
func (s *Store) LoadByHash(h hash.Hash) (*Record, error) {
	v, err := s.get(s.table.Hashes, h.Bytes())
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("%w: hash %s", ErrNotFound, h.String())
	}
	return s.Load(bigendian.BytesToUint64(v))
}

func (s *Store) get(t kvdb.Store, key []byte) ([]byte, error) {
	ok, err := t.Has(key)
	if err != nil || !ok {
		return nil, err
	}
	return t.Get(key)
}
