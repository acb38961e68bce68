// Package escrow implements the voting-escrow ledger: users lock an amount
// until a window-aligned expiry, their weight decays linearly to zero at that
// expiry, and reward deposits are shared among lock holders in proportion to
// their time-weighted share of total weight over the window the reward
// arrived in.
//
// This package provides:
//   - Ledger rules and network presets (MainNet, TestNet, FakeNet)
//   - The Engine: lock operations, reward receipt, claims, queries, admin hooks
//   - Snapshot export/import with a deterministic state hash
//
// The Engine does not read the clock nor move funds by itself; both come from
// the Host and Custody collaborators supplied by the caller.

package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jsoniter "github.com/json-iterator/go"

	"github.com/rony4d/go-opera-escrow/inter"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Preset names
const (
	MainNetName = "main"
	TestNetName = "test"
	FakeNetName = "fake"

	// DefaultWindowLength is the reward window (and decay schedule) granularity.
	DefaultWindowLength = inter.Timestamp(24 * 60 * 60)

	// DefaultMaxLockTime is the longest lock accepted, also the decay divisor.
	DefaultMaxLockTime = inter.Timestamp(4 * 365 * 24 * 60 * 60)
)

// RulesRLP is the RLP-serializable form of Rules. It is persisted together
// with every snapshot so that state is never reinterpreted under different
// window arithmetic.
type RulesRLP struct {
	Name    string // preset name (e.g. "main", "test", "fake")
	Symbol  string // ledger symbol shown by tooling
	Version string

	// Windows options - window length and maximum lock duration
	Windows WindowRules

	// Locks options - locked token and admission limits
	Locks LockRules

	// Checkpoints options - replay limits and manual checkpoint throttling
	Checkpoints CheckpointRules

	// Rewards options - claim processing limits
	Rewards RewardRules
}

// Rules describes the complete configuration of a ledger.
//
// Note: Copy() must deep-copy every pointer field (*big.Int).
type Rules RulesRLP

// WindowRules defines the time arithmetic of the ledger.
type WindowRules struct {
	// Length is the window length in seconds. Lock expiries are rounded down to
	// a multiple of it and rewards are bucketed by it.
	Length inter.Timestamp

	// MaxLockTime is the longest lock accepted. A lock of amount A decays at
	// A/MaxLockTime per second.
	MaxLockTime inter.Timestamp
}

// LockRules defines admission of new locks.
type LockRules struct {
	// Token is the fungible token being locked; zero address means the native coin.
	Token common.Address

	// MinAmount is the smallest amount a lock may hold.
	MinAmount *big.Int

	// MaxPoolMembers caps the number of users holding a lock. Zero means unlimited.
	MaxPoolMembers uint64
}

// CheckpointRules bounds checkpoint work.
type CheckpointRules struct {
	// MaxBoundaries is the largest number of window boundaries one call may
	// replay into the global history. Zero means unlimited.
	MaxBoundaries uint32

	// MinManualDelay is the initial minimum spacing between manual checkpoints.
	MinManualDelay inter.Timestamp
}

// RewardRules bounds claim work.
type RewardRules struct {
	// MaxClaimWindows caps the windows settled by one claim. Zero means unlimited.
	MaxClaimWindows uint32
}

// MainNetRules returns the production configuration: daily windows, four-year locks.
func MainNetRules() Rules {
	return Rules{
		Name:        MainNetName,
		Symbol:      "veASSET",
		Version:     "1.0.0",
		Windows:     DefaultWindowRules(),
		Locks:       DefaultLockRules(),
		Checkpoints: DefaultCheckpointRules(),
		Rewards:     DefaultRewardRules(),
	}
}

// TestNetRules returns the test network configuration, identical to mainnet
// apart from its name so that tests stay realistic.
func TestNetRules() Rules {
	r := MainNetRules()
	r.Name = TestNetName
	r.Symbol = "veTEST"
	return r
}

// FakeNetRules returns accelerated rules for local development:
//   - hourly windows instead of daily
//   - 30-day maximum lock instead of four years
//   - no minimum amount and no manual checkpoint delay
func FakeNetRules() Rules {
	return Rules{
		Name:    FakeNetName,
		Symbol:  "veFAKE",
		Version: "1.0.0",
		Windows: FakeWindowRules(),
		Locks: LockRules{
			MinAmount: new(big.Int),
		},
		Checkpoints: CheckpointRules{
			MaxBoundaries: 1000,
		},
		Rewards: DefaultRewardRules(),
	}
}

// DefaultWindowRules returns daily windows with four-year locks.
func DefaultWindowRules() WindowRules {
	return WindowRules{
		Length:      DefaultWindowLength,
		MaxLockTime: DefaultMaxLockTime,
	}
}

// FakeWindowRules returns hourly windows with 30-day locks.
func FakeWindowRules() WindowRules {
	return WindowRules{
		Length:      inter.Seconds(time.Hour),
		MaxLockTime: inter.Seconds(30 * 24 * time.Hour),
	}
}

// DefaultLockRules requires at least one whole token (1e18 units) per lock.
func DefaultLockRules() LockRules {
	return LockRules{
		MinAmount:      big.NewInt(1e18),
		MaxPoolMembers: 0,
	}
}

// DefaultCheckpointRules allows a bit under three years of daily boundaries per
// call and rate limits manual checkpoints to one per minute.
func DefaultCheckpointRules() CheckpointRules {
	return CheckpointRules{
		MaxBoundaries:  1000,
		MinManualDelay: inter.Seconds(time.Minute),
	}
}

// DefaultRewardRules leaves claims unbounded.
func DefaultRewardRules() RewardRules {
	return RewardRules{MaxClaimWindows: 0}
}

// RulesByName returns the preset with the given name.
func RulesByName(name string) (Rules, error) {
	switch name {
	case MainNetName:
		return MainNetRules(), nil
	case TestNetName:
		return TestNetRules(), nil
	case FakeNetName:
		return FakeNetRules(), nil
	default:
		return Rules{}, fmt.Errorf("unknown rules preset: %q (valid: main, test, fake)", name)
	}
}

// Validate checks the rules are usable.
func (r Rules) Validate() error {
	if r.Windows.Length == 0 {
		return errors.New("window length must be positive")
	}
	if r.Windows.MaxLockTime < r.Windows.Length {
		return fmt.Errorf("max lock time %d shorter than one window %d", r.Windows.MaxLockTime, r.Windows.Length)
	}
	if r.Locks.MinAmount != nil && r.Locks.MinAmount.Sign() < 0 {
		return errors.New("min lock amount is negative")
	}
	return nil
}

// WindowOf returns the start of the window containing ts.
func (r Rules) WindowOf(ts inter.Timestamp) inter.Timestamp {
	return ts.Floor(r.Windows.Length)
}

// Copy creates a deep copy of Rules.
func (r Rules) Copy() Rules {
	cp := r
	if r.Locks.MinAmount != nil {
		cp.Locks.MinAmount = new(big.Int).Set(r.Locks.MinAmount)
	}
	return cp
}

// String returns a JSON representation of Rules for logging.
func (r Rules) String() string {
	b, _ := json.Marshal(&r)
	return string(b)
}

func (r Rules) minAmount() *big.Int {
	if r.Locks.MinAmount == nil {
		return new(big.Int)
	}
	return r.Locks.MinAmount
}
