package escrow

import (
	"bytes"
	"errors"
	"io/ioutil"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-opera-escrow/escrow/checkpoint"
	"github.com/rony4d/go-opera-escrow/escrow/rewards"
	"github.com/rony4d/go-opera-escrow/escrow/slopes"
	"github.com/rony4d/go-opera-escrow/inter"
)

// Operation names an individually switchable user operation.
type Operation uint8

const (
	OpCreateLock Operation = iota
	OpIncreaseAmount
	OpIncreaseUnlockTime
	OpWithdraw
)

func (op Operation) String() string {
	switch op {
	case OpCreateLock:
		return "create_lock"
	case OpIncreaseAmount:
		return "increase_amount"
	case OpIncreaseUnlockTime:
		return "increase_unlock_time"
	case OpWithdraw:
		return "withdraw"
	}
	return "unknown"
}

// user ledgers never record intermediate boundaries, so they read no schedule
var noSlopeChanges slopes.Reader = slopes.New()

// account is the per-user state: the lock record and its point history.
type account struct {
	lock    inter.LockedBalance
	history *checkpoint.History
}

func newAccount() *account {
	return &account{
		lock:    inter.NoLock(),
		history: checkpoint.NewHistory(inter.ZeroPoint(0, 0)),
	}
}

// Engine is the voting-escrow ledger. It is not safe for concurrent use;
// callers serialise operations the way a host serialises transactions.
type Engine struct {
	rules   Rules
	host    Host
	custody Custody
	log     logrus.FieldLogger

	global   *checkpoint.History
	schedule *slopes.Schedule
	accounts map[common.Address]*account
	rewards  *rewards.Ledger
	// claimed[user][token] is the last window settled by a claim
	claimed map[common.Address]map[common.Address]inter.Timestamp

	supply  *big.Int
	members uint64

	owner          common.Address
	emergency      bool
	disabled       map[Operation]bool
	minManualDelay inter.Timestamp
	lastManual     inter.Timestamp
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger lock, reward and admin events are reported to.
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithOwner sets the address allowed to run admin operations.
func WithOwner(owner common.Address) Option {
	return func(e *Engine) {
		e.owner = owner
	}
}

// New creates an empty ledger. The global history starts at the host's
// current time and block.
func New(rules Rules, host Host, custody Custody, opts ...Option) (*Engine, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	e := newEngine(rules, host, custody, opts...)
	e.global = checkpoint.NewHistory(inter.ZeroPoint(host.Now(), host.Block()))
	e.log.WithField("rules", rules.Name).Debug("Escrow ledger created")
	return e, nil
}

func newEngine(rules Rules, host Host, custody Custody, opts ...Option) *Engine {
	discard := logrus.New()
	discard.Out = ioutil.Discard

	e := &Engine{
		rules:          rules.Copy(),
		host:           host,
		custody:        custody,
		log:            discard,
		schedule:       slopes.New(),
		accounts:       make(map[common.Address]*account),
		rewards:        rewards.NewLedger(),
		claimed:        make(map[common.Address]map[common.Address]inter.Timestamp),
		supply:         new(big.Int),
		disabled:       make(map[Operation]bool),
		minManualDelay: rules.Checkpoints.MinManualDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// globalCheckpointer records every window boundary and refuses silent clamping.
func (e *Engine) globalCheckpointer() checkpoint.Checkpointer {
	return checkpoint.Checkpointer{
		Step:   e.rules.Windows.Length,
		Limit:  int(e.rules.Checkpoints.MaxBoundaries),
		Strict: true,
	}
}

func (e *Engine) userCheckpointer() checkpoint.Checkpointer {
	return checkpoint.Checkpointer{}
}

// advanceGlobal computes the global batch for the current instant.
func (e *Engine) advanceGlobal(delta checkpoint.Delta) (checkpoint.Batch, error) {
	b, err := e.globalCheckpointer().Advance(e.global, e.schedule, e.host.Now(), e.host.Block(), delta)
	if err != nil {
		e.fail("global checkpoint", err)
	}
	return b, err
}

// fail reports invariant violations, which indicate a defect rather than a
// caller mistake.
func (e *Engine) fail(op string, err error) {
	if errors.Is(err, ErrInvariant) {
		e.log.WithError(err).WithField("op", op).Error("Ledger invariant violated")
	}
}

// mustApply commits a batch computed against the current history. Batches are
// always applied right after being computed, so a mismatch is a programming error.
func mustApply(h *checkpoint.History, b checkpoint.Batch) {
	if err := h.Apply(b); err != nil {
		panic(err)
	}
}

// Rules returns a copy of the ledger rules.
func (e *Engine) Rules() Rules {
	return e.rules.Copy()
}

// Owner returns the admin address.
func (e *Engine) Owner() common.Address {
	return e.owner
}

// Emergency reports whether emergency mode is enabled.
func (e *Engine) Emergency() bool {
	return e.emergency
}

// Disabled reports whether op is switched off.
func (e *Engine) Disabled(op Operation) bool {
	return e.disabled[op]
}

// MinManualCheckpointDelay returns the minimum spacing of manual checkpoints.
func (e *Engine) MinManualCheckpointDelay() inter.Timestamp {
	return e.minManualDelay
}

// LastManualCheckpoint returns when Checkpoint last ran, zero if never.
func (e *Engine) LastManualCheckpoint() inter.Timestamp {
	return e.lastManual
}

// CurrentWindow returns the start of the window containing the host's current time.
func (e *Engine) CurrentWindow() inter.Timestamp {
	return e.rules.WindowOf(e.host.Now())
}

// Locked returns the user's lock record.
func (e *Engine) Locked(user common.Address) inter.LockedBalance {
	if a, ok := e.accounts[user]; ok {
		return a.lock.Copy()
	}
	return inter.NoLock()
}

// Supply returns the sum of all locked amounts, not decayed.
func (e *Engine) Supply() *big.Int {
	return new(big.Int).Set(e.supply)
}

// Members returns the number of users holding a lock.
func (e *Engine) Members() uint64 {
	return e.members
}

// Users returns every address that ever locked, in byte order.
func (e *Engine) Users() []common.Address {
	return sortedAddresses(e.accounts)
}

// BalanceOfAt returns the user's weight at ts, past or future.
func (e *Engine) BalanceOfAt(user common.Address, ts inter.Timestamp) *big.Int {
	a, ok := e.accounts[user]
	if !ok {
		return new(big.Int)
	}
	return a.history.ValueAt(ts)
}

// BalanceOf returns the user's weight now.
func (e *Engine) BalanceOf(user common.Address) *big.Int {
	return e.BalanceOfAt(user, e.host.Now())
}

// TotalSupplyAt returns the total weight at ts. Times past the latest
// recorded point are answered exactly by walking the slope schedule.
func (e *Engine) TotalSupplyAt(ts inter.Timestamp) *big.Int {
	return checkpoint.Project(e.global, e.schedule, e.rules.Windows.Length, ts)
}

// TotalSupply returns the total weight now.
func (e *Engine) TotalSupply() *big.Int {
	return e.TotalSupplyAt(e.host.Now())
}

// Epoch returns the index of the latest global point.
func (e *Engine) Epoch() uint64 {
	return e.global.Epoch()
}

// PointAt returns the global point recorded at epoch.
func (e *Engine) PointAt(epoch uint64) (inter.Point, bool) {
	return e.global.At(epoch)
}

// UserEpoch returns the index of the user's latest point, zero when the user
// never locked.
func (e *Engine) UserEpoch(user common.Address) uint64 {
	if a, ok := e.accounts[user]; ok {
		return a.history.Epoch()
	}
	return 0
}

// UserPointAt returns the user's point recorded at epoch. Epoch 0 is always
// the all-zero sentinel.
func (e *Engine) UserPointAt(user common.Address, epoch uint64) (inter.Point, bool) {
	a, ok := e.accounts[user]
	if !ok {
		if epoch == 0 {
			return inter.ZeroPoint(0, 0), true
		}
		return inter.Point{}, false
	}
	return a.history.At(epoch)
}

// SlopeChange returns the net slope change scheduled at ts.
func (e *Engine) SlopeChange(ts inter.Timestamp) *big.Int {
	return e.schedule.At(ts)
}

// WindowRewards returns the rewards of token deposited into window.
func (e *Engine) WindowRewards(window inter.Timestamp, token common.Address) *big.Int {
	return e.rewards.Amount(token, window)
}

// StuckRewards returns deposits of token that arrived while nothing was locked.
func (e *Engine) StuckRewards(token common.Address) *big.Int {
	return e.rewards.Stuck(token)
}

// RewardTotals returns the lifetime accounting of token.
func (e *Engine) RewardTotals(token common.Address) rewards.Totals {
	return e.rewards.Totals(token)
}

// RewardTokens returns every token ever deposited as a reward.
func (e *Engine) RewardTokens() []common.Address {
	return e.rewards.Tokens()
}

// ClaimedWindow returns the last window settled by the user's claims of
// token, zero when the user never claimed.
func (e *Engine) ClaimedWindow(user, token common.Address) inter.Timestamp {
	w, _ := e.cursor(user, token)
	return w
}

func (e *Engine) cursor(user, token common.Address) (inter.Timestamp, bool) {
	w, ok := e.claimed[user][token]
	return w, ok
}

func (e *Engine) setCursor(user, token common.Address, w inter.Timestamp) {
	m, ok := e.claimed[user]
	if !ok {
		m = make(map[common.Address]inter.Timestamp)
		e.claimed[user] = m
	}
	m[token] = w
}

func sortedAddresses(m map[common.Address]*account) []common.Address {
	out := make([]common.Address, 0, len(m))
	for addr := range m {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

func (e *Engine) requireOwner(caller common.Address) error {
	if caller != e.owner {
		return ErrNotOwner
	}
	return nil
}
