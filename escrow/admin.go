package escrow

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-opera-escrow/inter"
)

// EnableEmergency switches the ledger into emergency mode: locks may be
// withdrawn before expiry, while new locks, top-ups, reward deposits and
// claims are refused. There is no way back.
func (e *Engine) EnableEmergency(caller common.Address) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if !e.emergency {
		e.emergency = true
		e.log.WithField("ts", e.host.Now()).Warn("Emergency mode enabled")
	}
	return nil
}

// EmergencyWithdraw releases amount of any token held in custody to the given
// address. Only available in emergency mode.
func (e *Engine) EmergencyWithdraw(caller, token common.Address, amount *big.Int, to common.Address) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if !e.emergency {
		return ErrNotEmergency
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if err := e.custody.TransferOut(token, to, amount); err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{
		"token":  token.Hex(),
		"to":     to.Hex(),
		"amount": amount,
	}).Warn("Emergency withdraw")
	return nil
}

// SetMinManualCheckpointDelay sets the minimum spacing between two Checkpoint calls.
func (e *Engine) SetMinManualCheckpointDelay(caller common.Address, delay inter.Timestamp) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	e.minManualDelay = delay
	return nil
}

// SetOperationDisabled switches a single user operation off or back on.
func (e *Engine) SetOperationDisabled(caller common.Address, op Operation, disabled bool) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if disabled {
		e.disabled[op] = true
	} else {
		delete(e.disabled, op)
	}
	e.log.WithFields(logrus.Fields{
		"op":       op.String(),
		"disabled": disabled,
	}).Info("Operation switched")
	return nil
}

// TransferOwnership hands the admin role over to next.
func (e *Engine) TransferOwnership(caller, next common.Address) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{
		"from": e.owner.Hex(),
		"to":   next.Hex(),
	}).Info("Ownership transferred")
	e.owner = next
	return nil
}

// Checkpoint brings the global history up to date without any lock change.
// Anyone may call it, at most once per MinManualCheckpointDelay unless whole
// windows are still pending. A single call replays at most
// Rules.Checkpoints.MaxBoundaries boundaries; long idle gaps are closed by
// calling it repeatedly.
//
// Returns:
//   - bool: true when the history reached the current time
//   - error: ErrCheckpointTooSoon, ErrInvalidTime or ErrInvariant
func (e *Engine) Checkpoint() (bool, error) {
	now, blk := e.host.Now(), e.host.Block()
	cp := e.globalCheckpointer()
	lagging := cp.Pending(e.global, now) > 0
	if !lagging && e.lastManual != 0 && now < e.lastManual+e.minManualDelay {
		return false, ErrCheckpointTooSoon
	}
	from := e.global.Last().Ts
	b, err := cp.CatchUp(e.global, e.schedule, now, blk)
	if err != nil {
		e.fail("checkpoint", err)
		return false, err
	}
	mustApply(e.global, b)
	e.lastManual = now

	to := from
	if last, ok := b.Last(); ok {
		to = last.Ts
	}
	e.log.WithFields(logrus.Fields{
		"from":     from,
		"to":       to,
		"points":   len(b.Points),
		"complete": b.Complete,
	}).Debug("Checkpoint")
	return b.Complete, nil
}
