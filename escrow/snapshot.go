package escrow

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"math/big"
	"sort"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/rony4d/go-opera-escrow/escrow/checkpoint"
	"github.com/rony4d/go-opera-escrow/escrow/rewards"
	"github.com/rony4d/go-opera-escrow/escrow/slopes"
	"github.com/rony4d/go-opera-escrow/inter"
)

// AccountRecord is the persisted form of one user.
type AccountRecord struct {
	User   common.Address
	Lock   inter.LockedBalance
	Points []inter.Point
}

// CursorRecord is the persisted claim cursor of one user and token.
type CursorRecord struct {
	User   common.Address
	Token  common.Address
	Window inter.Timestamp
}

// Snapshot is the complete ledger state in RLP-serializable form. Every
// collection is sorted, so equal states always encode to equal bytes.
type Snapshot struct {
	Rules RulesRLP

	Global   []inter.Point
	Schedule []slopes.Entry
	Accounts []AccountRecord

	Windows []rewards.WindowRecord
	Totals  []rewards.TotalsRecord
	Cursors []CursorRecord

	Supply  *big.Int
	Members uint64

	Owner          common.Address
	Emergency      bool
	Disabled       []uint8
	MinManualDelay inter.Timestamp
	LastManual     inter.Timestamp
}

// Snapshot exports the current state.
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Rules:          RulesRLP(e.rules.Copy()),
		Global:         e.global.Points(),
		Schedule:       e.schedule.Entries(),
		Supply:         new(big.Int).Set(e.supply),
		Members:        e.members,
		Owner:          e.owner,
		Emergency:      e.emergency,
		MinManualDelay: e.minManualDelay,
		LastManual:     e.lastManual,
	}
	for _, user := range sortedAddresses(e.accounts) {
		a := e.accounts[user]
		s.Accounts = append(s.Accounts, AccountRecord{
			User:   user,
			Lock:   a.lock.Copy(),
			Points: a.history.Points(),
		})
	}
	s.Windows, s.Totals = e.rewards.Export()

	for user, tokens := range e.claimed {
		for token, w := range tokens {
			s.Cursors = append(s.Cursors, CursorRecord{User: user, Token: token, Window: w})
		}
	}
	sort.Slice(s.Cursors, func(i, j int) bool {
		a, b := s.Cursors[i], s.Cursors[j]
		if a.User != b.User {
			return addressLess(a.User, b.User)
		}
		return addressLess(a.Token, b.Token)
	})

	for op := range e.disabled {
		s.Disabled = append(s.Disabled, uint8(op))
	}
	sort.Slice(s.Disabled, func(i, j int) bool { return s.Disabled[i] < s.Disabled[j] })
	return s
}

// Hash calculates the SHA256 hash of the RLP-encoded snapshot, a fingerprint
// of the whole ledger state.
func (s Snapshot) Hash() hash.Hash {
	hasher := sha256.New()
	err := rlp.Encode(hasher, &s)
	if err != nil {
		panic("can't hash: " + err.Error())
	}
	return hash.BytesToHash(hasher.Sum(nil))
}

// StateHash returns the hash of the current state.
func (e *Engine) StateHash() hash.Hash {
	return e.Snapshot().Hash()
}

// Restore rebuilds an engine from a snapshot, validating every history.
func Restore(s Snapshot, host Host, custody Custody, opts ...Option) (*Engine, error) {
	rules := Rules(s.Rules)
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("snapshot rules: %w", err)
	}
	e := newEngine(rules, host, custody, opts...)

	global, err := checkpoint.FromPoints(s.Global)
	if err != nil {
		return nil, fmt.Errorf("global history: %w", err)
	}
	e.global = global

	if e.schedule, err = slopes.FromEntries(s.Schedule); err != nil {
		return nil, fmt.Errorf("slope schedule: %w", err)
	}

	for _, rec := range s.Accounts {
		h, err := checkpoint.FromPoints(rec.Points)
		if err != nil {
			return nil, fmt.Errorf("history of %s: %w", rec.User.Hex(), err)
		}
		if _, dup := e.accounts[rec.User]; dup {
			return nil, fmt.Errorf("duplicate account %s", rec.User.Hex())
		}
		lock := rec.Lock.Copy()
		e.accounts[rec.User] = &account{lock: lock, history: h}
	}

	e.rewards = rewards.Import(s.Windows, s.Totals)
	for _, c := range s.Cursors {
		e.setCursor(c.User, c.Token, c.Window)
	}

	if s.Supply != nil {
		e.supply.Set(s.Supply)
	}
	e.members = s.Members
	e.owner = s.Owner
	e.emergency = s.Emergency
	for _, op := range s.Disabled {
		e.disabled[Operation(op)] = true
	}
	e.minManualDelay = s.MinManualDelay
	e.lastManual = s.LastManual

	// options take precedence over the persisted owner
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func addressLess(a, b common.Address) bool {
	return bytes.Compare(a[:], b[:]) < 0
}
