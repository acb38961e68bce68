package escrow

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-opera-escrow/escrow/checkpoint"
	"github.com/rony4d/go-opera-escrow/escrow/rewards"
	"github.com/rony4d/go-opera-escrow/inter"
)

// ReceiveReward deposits amount of token from a payer into the current
// window. Deposits arriving while the total weight is zero are kept in the
// token's stuck bucket until the owner resolves them.
func (e *Engine) ReceiveReward(from, token common.Address, amount *big.Int) error {
	if e.emergency {
		return ErrEmergency
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	g, err := e.advanceGlobal(checkpoint.Delta{})
	if err != nil {
		return err
	}
	view, err := e.global.With(g)
	if err != nil {
		return err
	}
	now := e.host.Now()
	supply := view.ValueAt(now)

	if err := e.custody.TransferIn(token, from, amount); err != nil {
		return err
	}
	mustApply(e.global, g)

	window := e.rules.WindowOf(now)
	fields := logrus.Fields{
		"token":  token.Hex(),
		"from":   from.Hex(),
		"amount": amount,
		"window": window,
	}
	if supply.Sign() == 0 {
		e.rewards.DepositStuck(token, amount)
		e.log.WithFields(fields).Warn("Reward received with nothing locked, kept as stuck")
		return nil
	}
	e.rewards.Deposit(token, window, amount)
	e.log.WithFields(fields).Info("RewardReceived")
	return nil
}

// claimPlan is the outcome of settling a user's closed windows.
type claimPlan struct {
	amount  *big.Int
	cursor  inter.Timestamp
	moved   bool // cursor advanced
	windows int
}

// planClaim settles closed windows after the user's cursor against the given
// views of the user and global histories. Nothing is modified.
func (e *Engine) planClaim(user, token common.Address, personal, global *checkpoint.History) (claimPlan, error) {
	length := e.rules.Windows.Length
	now := e.host.Now()
	plan := claimPlan{amount: new(big.Int)}

	cursor, set := e.cursor(user, token)
	plan.cursor = cursor

	current := now.Floor(length)
	if current < length {
		return plan, nil
	}
	lastClosed := current - length

	var start inter.Timestamp
	if set {
		start = cursor + length
	} else {
		first, ok := personal.At(1)
		if !ok {
			return plan, nil
		}
		start = first.Ts.Floor(length)
	}

	limit := int(e.rules.Rewards.MaxClaimWindows)
	for w := start; w <= lastClosed; w += length {
		if limit > 0 && plan.windows == limit {
			break
		}
		plan.windows++
		plan.cursor = w
		plan.moved = true

		r := e.rewards.Amount(token, w)
		if r.Sign() == 0 {
			continue
		}
		// share by the exact integrals, not by the floored averages
		part := rewards.Integral(personal, w, w+length)
		total := rewards.Integral(global, w, w+length)
		if total.Sign() == 0 {
			if part.Sign() != 0 {
				return claimPlan{}, fmt.Errorf("%w: user weight %s in window %d with zero total", ErrInvariant, part, w)
			}
			continue
		}
		if part.Cmp(total) > 0 {
			return claimPlan{}, fmt.Errorf("%w: user weight %s exceeds total %s in window %d", ErrInvariant, part, total, w)
		}
		plan.amount.Add(plan.amount, rewards.Share(r, part, total))
	}
	if set && plan.cursor < cursor {
		return claimPlan{}, fmt.Errorf("%w: claim cursor moving back from %d to %d", ErrInvariant, cursor, plan.cursor)
	}
	return plan, nil
}

// claimViews advances both histories to now without committing anything.
func (e *Engine) claimViews(user common.Address) (checkpoint.Batch, checkpoint.Batch, *checkpoint.History, *checkpoint.History, error) {
	var none checkpoint.Batch
	g, err := e.advanceGlobal(checkpoint.Delta{})
	if err != nil {
		return none, none, nil, nil, err
	}
	global, err := e.global.With(g)
	if err != nil {
		return none, none, nil, nil, err
	}
	acct, ok := e.accounts[user]
	if !ok {
		return g, none, global, nil, nil
	}
	u, err := e.userCheckpointer().Advance(acct.history, noSlopeChanges, e.host.Now(), e.host.Block(), checkpoint.Delta{})
	if err != nil {
		e.fail("user checkpoint", err)
		return none, none, nil, nil, err
	}
	personal, err := acct.history.With(u)
	if err != nil {
		return none, none, nil, nil, err
	}
	return g, u, global, personal, nil
}

// ClaimRewards pays the user's share of token rewards over every closed window
// since the last claim and moves the claim cursor to the last settled window.
//
// Returns:
//   - *big.Int: amount paid, zero when nothing new is claimable
//   - error: ErrEmergency, ErrCheckpointBacklog, ErrInvariant or a custody error
func (e *Engine) ClaimRewards(user, token common.Address) (*big.Int, error) {
	if e.emergency {
		return nil, ErrEmergency
	}
	g, u, global, personal, err := e.claimViews(user)
	if err != nil {
		return nil, err
	}
	if personal == nil {
		mustApply(e.global, g)
		return new(big.Int), nil
	}
	plan, err := e.planClaim(user, token, personal, global)
	if err != nil {
		e.fail("claim", err)
		return nil, err
	}
	if plan.amount.Sign() > 0 {
		if err := e.custody.TransferOut(token, user, plan.amount); err != nil {
			return nil, err
		}
	}

	mustApply(e.global, g)
	mustApply(e.accounts[user].history, u)
	if plan.moved {
		e.setCursor(user, token, plan.cursor)
	}
	e.rewards.RecordClaim(token, plan.amount)

	e.log.WithFields(logrus.Fields{
		"user":    user.Hex(),
		"token":   token.Hex(),
		"amount":  plan.amount,
		"window":  plan.cursor,
		"windows": plan.windows,
	}).Info("UserRewardsClaimed")
	return new(big.Int).Set(plan.amount), nil
}

// ClaimableRewards previews ClaimRewards: the amount a claim would pay now and
// the claim cursor it would leave behind.
func (e *Engine) ClaimableRewards(user, token common.Address) (*big.Int, inter.Timestamp, error) {
	_, _, global, personal, err := e.claimViews(user)
	if err != nil {
		return nil, 0, err
	}
	if personal == nil {
		return new(big.Int), e.ClaimedWindow(user, token), nil
	}
	plan, err := e.planClaim(user, token, personal, global)
	if err != nil {
		return nil, 0, err
	}
	return plan.amount, plan.cursor, nil
}

// closedWindow checks window is aligned and already over.
func (e *Engine) closedWindow(window inter.Timestamp) error {
	length := e.rules.Windows.Length
	if !window.Aligned(length) {
		return ErrInvalidWindow
	}
	if e.host.Now() < window+length {
		return ErrWindowNotClosed
	}
	return nil
}

// AverageUserBalanceOverWindow returns the user's time-averaged weight over a
// closed window.
func (e *Engine) AverageUserBalanceOverWindow(user common.Address, window inter.Timestamp) (*big.Int, error) {
	if err := e.closedWindow(window); err != nil {
		return nil, err
	}
	a, ok := e.accounts[user]
	if !ok {
		return new(big.Int), nil
	}
	return rewards.Average(a.history, window, e.rules.Windows.Length), nil
}

// AverageTotalSupplyOverWindow returns the time-averaged total weight over a
// closed window.
func (e *Engine) AverageTotalSupplyOverWindow(window inter.Timestamp) (*big.Int, error) {
	if err := e.closedWindow(window); err != nil {
		return nil, err
	}
	g, err := e.advanceGlobal(checkpoint.Delta{})
	if err != nil {
		return nil, err
	}
	view, err := e.global.With(g)
	if err != nil {
		return nil, err
	}
	return rewards.Average(view, window, e.rules.Windows.Length), nil
}

// RedistributeStuckRewards moves the stuck bucket of token into the current
// window so that current lock holders can claim it.
//
// Returns:
//   - *big.Int: the amount moved
//   - error: ErrNotOwner, ErrEmergency, ErrNoSupply, ErrCheckpointBacklog
func (e *Engine) RedistributeStuckRewards(caller, token common.Address) (*big.Int, error) {
	if err := e.requireOwner(caller); err != nil {
		return nil, err
	}
	if e.emergency {
		return nil, ErrEmergency
	}
	g, err := e.advanceGlobal(checkpoint.Delta{})
	if err != nil {
		return nil, err
	}
	view, err := e.global.With(g)
	if err != nil {
		return nil, err
	}
	now := e.host.Now()
	if view.ValueAt(now).Sign() == 0 {
		return nil, ErrNoSupply
	}
	mustApply(e.global, g)
	window := e.rules.WindowOf(now)
	moved := e.rewards.MoveStuck(token, window)
	if moved.Sign() > 0 {
		e.log.WithFields(logrus.Fields{
			"token":  token.Hex(),
			"amount": moved,
			"window": window,
		}).Info("Stuck rewards redistributed")
	}
	return moved, nil
}

// RecoverStuckRewards refunds the stuck bucket of token to the given address.
func (e *Engine) RecoverStuckRewards(caller, token, to common.Address) (*big.Int, error) {
	if err := e.requireOwner(caller); err != nil {
		return nil, err
	}
	amount := e.rewards.Stuck(token)
	if amount.Sign() == 0 {
		return amount, nil
	}
	if err := e.custody.TransferOut(token, to, amount); err != nil {
		return nil, err
	}
	e.rewards.RecoverStuck(token)
	e.log.WithFields(logrus.Fields{
		"token":  token.Hex(),
		"to":     to.Hex(),
		"amount": amount,
	}).Info("Stuck rewards recovered")
	return amount, nil
}
