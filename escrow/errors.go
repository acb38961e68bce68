package escrow

import (
	"errors"

	"github.com/rony4d/go-opera-escrow/escrow/checkpoint"
)

// Input validation errors.
var (
	ErrZeroAmount     = errors.New("need non-zero value")
	ErrBelowMinimum   = errors.New("amount below minimum lock amount")
	ErrExpiryTooSoon  = errors.New("can only lock until time in the future")
	ErrExpiryTooFar   = errors.New("lock can not exceed max lock time")
	ErrExpiryNotLater = errors.New("can only increase lock duration")
	ErrInvalidWindow  = errors.New("window is not aligned to the window length")
	// ErrInvalidTime is returned when the host clock or block counter moved backwards.
	ErrInvalidTime = checkpoint.ErrInvalidTime
)

// State precondition errors.
var (
	ErrAlreadyLocked      = errors.New("withdraw old tokens first")
	ErrNoLock             = errors.New("nothing is locked")
	ErrLockExpired        = errors.New("lock expired, withdraw first")
	ErrNotExpired         = errors.New("the lock didn't expire")
	ErrWindowNotClosed    = errors.New("incorrect window")
	ErrPoolFull           = errors.New("max pool members reached")
	ErrEmergency          = errors.New("disabled in emergency mode")
	ErrNotEmergency       = errors.New("emergency mode is not enabled")
	ErrOperationDisabled  = errors.New("operation disabled")
	ErrNotOwner           = errors.New("caller is not the owner")
	ErrCheckpointTooSoon  = errors.New("manual checkpoint too soon")
	ErrNoSupply           = errors.New("nothing is locked ledger-wide")
	ErrCheckpointBacklog  = checkpoint.ErrBacklog
)

// ErrInvariant signals a defect in ledger arithmetic. Operations failing with
// it leave the state untouched.
var ErrInvariant = checkpoint.ErrInvariant

var codes = []struct {
	err  error
	code string
}{
	{ErrZeroAmount, "ZeroAmount"},
	{ErrBelowMinimum, "BelowMinimum"},
	{ErrExpiryTooSoon, "ExpiryTooSoon"},
	{ErrExpiryTooFar, "ExpiryTooFar"},
	{ErrExpiryNotLater, "ExpiryNotLater"},
	{ErrInvalidWindow, "InvalidWindow"},
	{ErrInvalidTime, "InvalidTime"},
	{ErrAlreadyLocked, "AlreadyLocked"},
	{ErrNoLock, "NoLock"},
	{ErrLockExpired, "LockExpired"},
	{ErrNotExpired, "NotExpired"},
	{ErrWindowNotClosed, "WindowNotClosed"},
	{ErrPoolFull, "PoolFull"},
	{ErrEmergency, "Emergency"},
	{ErrNotEmergency, "NotEmergency"},
	{ErrOperationDisabled, "OperationDisabled"},
	{ErrNotOwner, "NotOwner"},
	{ErrCheckpointTooSoon, "CheckpointTooSoon"},
	{ErrNoSupply, "NoSupply"},
	{ErrCheckpointBacklog, "CheckpointBacklog"},
	{ErrInvariant, "InvariantViolation"},
}

// Code returns the stable name of the condition behind err, for tooling that
// must react to specific failures. Unknown errors map to "Internal".
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "Internal"
}

// IsInputError reports whether err was caused by invalid caller input.
func IsInputError(err error) bool {
	switch Code(err) {
	case "ZeroAmount", "BelowMinimum", "ExpiryTooSoon", "ExpiryTooFar", "ExpiryNotLater", "InvalidWindow", "InvalidTime":
		return true
	}
	return false
}
