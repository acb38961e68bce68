package escrow

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-opera-escrow/escrow/checkpoint"
	"github.com/rony4d/go-opera-escrow/inter"
)

// Deposit kinds reported with lock events.
const (
	depositCreate        = "create_lock"
	depositIncreaseAmt   = "increase_amount"
	depositIncreaseTime  = "increase_unlock_time"
	depositEmergencyExit = "emergency_exit"
)

// lockChange is a fully validated lock mutation. Computing it touches no state;
// commit applies it and cannot fail.
type lockChange struct {
	user     common.Address
	acct     *account
	prev     inter.LockedBalance
	next     inter.LockedBalance
	now      inter.Timestamp

	global   checkpoint.Batch
	personal checkpoint.Batch
}

// prepareLock computes both checkpoint batches for replacing the user's lock
// record prev with next at the current instant.
func (e *Engine) prepareLock(user common.Address, prev, next inter.LockedBalance) (*lockChange, error) {
	now, blk := e.host.Now(), e.host.Block()
	maxTime := e.rules.Windows.MaxLockTime

	oldPt := prev.PointAt(now, blk, maxTime)
	newPt := next.PointAt(now, blk, maxTime)
	delta := checkpoint.Delta{
		Bias:  new(big.Int).Sub(newPt.Bias, oldPt.Bias),
		Slope: new(big.Int).Sub(newPt.Slope, oldPt.Slope),
	}

	g, err := e.advanceGlobal(delta)
	if err != nil {
		return nil, err
	}
	acct, ok := e.accounts[user]
	if !ok {
		acct = newAccount()
	}
	u, err := e.userCheckpointer().Advance(acct.history, noSlopeChanges, now, blk, delta)
	if err != nil {
		e.fail("user checkpoint", err)
		return nil, err
	}
	return &lockChange{
		user:     user,
		acct:     acct,
		prev:     prev,
		next:     next,
		now:      now,
		global:   g,
		personal: u,
	}, nil
}

func (e *Engine) commitLock(c *lockChange) {
	mustApply(e.global, c.global)
	mustApply(c.acct.history, c.personal)
	e.accounts[c.user] = c.acct

	maxTime := e.rules.Windows.MaxLockTime
	if c.prev.Exists() && c.prev.End > c.now {
		e.schedule.Add(c.prev.End, c.prev.PointAt(c.now, 0, maxTime).Slope)
	}
	if c.next.Exists() && c.next.End > c.now {
		e.schedule.Add(c.next.End, new(big.Int).Neg(c.next.PointAt(c.now, 0, maxTime).Slope))
	}

	prevSupply := new(big.Int).Set(e.supply)
	e.supply.Add(e.supply, c.next.Amount)
	e.supply.Sub(e.supply, c.prev.Amount)
	switch {
	case !c.prev.Exists() && c.next.Exists():
		e.members++
	case c.prev.Exists() && !c.next.Exists():
		e.members--
	}
	c.acct.lock = c.next.Copy()

	e.log.WithFields(logrus.Fields{
		"prev":   prevSupply,
		"supply": e.supply,
	}).Debug("Supply")
}

func (e *Engine) checkLockOp(op Operation) error {
	if e.disabled[op] {
		return ErrOperationDisabled
	}
	if e.emergency {
		return ErrEmergency
	}
	return nil
}

// roundExpiry floors expiry to a window boundary and checks it lies in
// (now, now+MaxLockTime].
func (e *Engine) roundExpiry(expiry, now inter.Timestamp) (inter.Timestamp, error) {
	end := e.rules.WindowOf(expiry)
	if end <= now {
		return 0, ErrExpiryTooSoon
	}
	if end > now+e.rules.Windows.MaxLockTime {
		return 0, ErrExpiryTooFar
	}
	return end, nil
}

// CreateLock locks amount of the ledger token for user until expiry, rounded
// down to a window boundary.
//
// Parameters:
//   - user: lock owner, must hold no lock
//   - amount: positive quantity, at least Rules.Locks.MinAmount
//   - expiry: unlock time; after rounding it must lie in the future and at
//     most MaxLockTime away
//
// Returns:
//   - error: ErrAlreadyLocked, ErrZeroAmount, ErrBelowMinimum,
//     ErrExpiryTooSoon, ErrExpiryTooFar, ErrPoolFull, ErrCheckpointBacklog,
//     or a custody error
func (e *Engine) CreateLock(user common.Address, amount *big.Int, expiry inter.Timestamp) error {
	if err := e.checkLockOp(OpCreateLock); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if amount.Cmp(e.rules.minAmount()) < 0 {
		return ErrBelowMinimum
	}
	old := e.Locked(user)
	if old.Exists() {
		return ErrAlreadyLocked
	}
	now := e.host.Now()
	end, err := e.roundExpiry(expiry, now)
	if err != nil {
		return err
	}
	if limit := e.rules.Locks.MaxPoolMembers; limit > 0 && e.members >= limit {
		return ErrPoolFull
	}

	next := inter.LockedBalance{Amount: new(big.Int).Set(amount), End: end}
	c, err := e.prepareLock(user, old, next)
	if err != nil {
		return err
	}
	if err := e.custody.TransferIn(e.rules.Locks.Token, user, amount); err != nil {
		return err
	}
	e.commitLock(c)
	e.logDeposit(user, amount, end, depositCreate, now)
	return nil
}

// IncreaseAmount adds extra to the user's unexpired lock, keeping its expiry.
func (e *Engine) IncreaseAmount(user common.Address, extra *big.Int) error {
	if err := e.checkLockOp(OpIncreaseAmount); err != nil {
		return err
	}
	if extra == nil || extra.Sign() <= 0 {
		return ErrZeroAmount
	}
	now := e.host.Now()
	old := e.Locked(user)
	if !old.Exists() {
		return ErrNoLock
	}
	if old.Expired(now) {
		return ErrLockExpired
	}
	next := inter.LockedBalance{Amount: new(big.Int).Add(old.Amount, extra), End: old.End}
	if next.Amount.Cmp(e.rules.minAmount()) < 0 {
		return ErrBelowMinimum
	}

	c, err := e.prepareLock(user, old, next)
	if err != nil {
		return err
	}
	if err := e.custody.TransferIn(e.rules.Locks.Token, user, extra); err != nil {
		return err
	}
	e.commitLock(c)
	e.logDeposit(user, extra, old.End, depositIncreaseAmt, now)
	return nil
}

// IncreaseUnlockTime moves the expiry of the user's unexpired lock to a later
// window boundary.
func (e *Engine) IncreaseUnlockTime(user common.Address, expiry inter.Timestamp) error {
	if err := e.checkLockOp(OpIncreaseUnlockTime); err != nil {
		return err
	}
	now := e.host.Now()
	old := e.Locked(user)
	if !old.Exists() {
		return ErrNoLock
	}
	if old.Expired(now) {
		return ErrLockExpired
	}
	end := e.rules.WindowOf(expiry)
	if end <= old.End {
		return ErrExpiryNotLater
	}
	if end > now+e.rules.Windows.MaxLockTime {
		return ErrExpiryTooFar
	}

	next := inter.LockedBalance{Amount: new(big.Int).Set(old.Amount), End: end}
	c, err := e.prepareLock(user, old, next)
	if err != nil {
		return err
	}
	e.commitLock(c)
	e.logDeposit(user, new(big.Int), end, depositIncreaseTime, now)
	return nil
}

// Withdraw releases the whole locked amount once the lock expired, or at any
// time in emergency mode.
//
// Returns:
//   - *big.Int: the amount released to the user
//   - error: ErrNoLock, ErrNotExpired, ErrOperationDisabled, ErrCheckpointBacklog
//     or a custody error
func (e *Engine) Withdraw(user common.Address) (*big.Int, error) {
	if e.disabled[OpWithdraw] {
		return nil, ErrOperationDisabled
	}
	now := e.host.Now()
	old := e.Locked(user)
	if !old.Exists() {
		return nil, ErrNoLock
	}
	if !old.Expired(now) && !e.emergency {
		return nil, ErrNotExpired
	}

	c, err := e.prepareLock(user, old, inter.NoLock())
	if err != nil {
		return nil, err
	}
	if err := e.custody.TransferOut(e.rules.Locks.Token, user, old.Amount); err != nil {
		return nil, err
	}
	e.commitLock(c)

	kind := "withdraw"
	if !old.Expired(now) {
		kind = depositEmergencyExit
	}
	e.log.WithFields(logrus.Fields{
		"user":   user.Hex(),
		"amount": old.Amount,
		"type":   kind,
		"ts":     now,
	}).Info("Withdraw")
	return new(big.Int).Set(old.Amount), nil
}

func (e *Engine) logDeposit(user common.Address, amount *big.Int, locktime inter.Timestamp, kind string, now inter.Timestamp) {
	e.log.WithFields(logrus.Fields{
		"user":     user.Hex(),
		"amount":   amount,
		"locktime": locktime,
		"type":     kind,
		"ts":       now,
	}).Info("Deposit")
}
