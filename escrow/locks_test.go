package escrow

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-opera-escrow/custody"
	"github.com/rony4d/go-opera-escrow/inter"
)

func TestCreateLock_Decay(t *testing.T) {
	require := require.New(t)

	f := newFixture(t, smallRules(), 150)
	f.lock(alice, 10000, 650)

	// slope 10000/1000 = 10, expiry rounded to 600
	require.Equal(int64(4500), f.engine.BalanceOfAt(alice, 150).Int64())
	require.Equal(int64(2000), f.engine.BalanceOfAt(alice, 400).Int64())
	require.Equal(int64(10), f.engine.BalanceOfAt(alice, 599).Int64())
	require.Equal(int64(0), f.engine.BalanceOfAt(alice, 600).Int64())
	require.Equal(int64(0), f.engine.BalanceOfAt(alice, 5000).Int64())
	require.Equal(int64(0), f.engine.BalanceOfAt(alice, 149).Int64())

	// linear between
	for ts := inter.Timestamp(150); ts <= 600; ts += 50 {
		want := int64(10 * (600 - ts))
		require.Equal(want, f.engine.BalanceOfAt(alice, ts).Int64(), "at %d", ts)
		require.Equal(want, f.engine.TotalSupplyAt(ts).Int64(), "total at %d", ts)
	}

	p, ok := f.engine.PointAt(1)
	require.True(ok)
	require.Equal(int64(4500), p.Bias.Int64())
	require.Equal(int64(10), p.Slope.Int64())
	require.Equal(inter.Timestamp(150), p.Ts)

	require.Equal(int64(1e18-10000), f.bank.BalanceOf(lockToken, alice).Int64())
	require.Equal(int64(10000), f.bank.Holdings(lockToken).Int64())

	entry := f.hook.LastEntry()
	require.Equal("Deposit", entry.Message)
	require.Equal(depositCreate, entry.Data["type"])
}

func TestCreateLock_TwoLocksSameInstant(t *testing.T) {
	require := require.New(t)

	f := newFixture(t, smallRules(), 150)
	f.lock(alice, 10000, 650)
	f.lock(bob, 5000, 450)

	// both points share ts 150, the later one governs
	require.Equal(uint64(2), f.engine.Epoch())
	// expiries round down to 600 and 400
	require.Equal(int64(4500+1250), f.engine.TotalSupplyAt(150).Int64())
	require.Equal(int64(3000+500), f.engine.TotalSupplyAt(300).Int64())
	// bob's slope leaves at 400
	require.Equal(int64(1000), f.engine.TotalSupplyAt(500).Int64())
	require.Equal(int64(0), f.engine.TotalSupplyAt(600).Int64())

	f.at(500)
	require.Equal(int64(1000), f.engine.TotalSupply().Int64())
	require.Equal(int64(0), f.engine.BalanceOf(bob).Int64())
}

func TestIncreaseAmountAndUnlockTime(t *testing.T) {
	require := require.New(t)

	f := newFixture(t, smallRules(), 100)
	f.lock(alice, 1000, 600)

	f.at(200)
	require.NoError(f.engine.IncreaseAmount(alice, big.NewInt(1000)))
	require.Equal(int64(800), f.engine.BalanceOf(alice).Int64())
	require.Equal(int64(-2), f.engine.SlopeChange(600).Int64())
	require.Equal(int64(2000), f.engine.Locked(alice).Amount.Int64())

	f.at(300)
	require.NoError(f.engine.IncreaseUnlockTime(alice, 850))
	require.Equal(inter.Timestamp(800), f.engine.Locked(alice).End)
	require.Equal(int64(1000), f.engine.BalanceOf(alice).Int64())
	require.Equal(int64(0), f.engine.SlopeChange(600).Int64())
	require.Equal(int64(-2), f.engine.SlopeChange(800).Int64())

	require.Equal(int64(1000), f.engine.TotalSupplyAt(300).Int64())
	require.Equal(int64(200), f.engine.TotalSupplyAt(700).Int64())
	require.Equal(int64(0), f.engine.TotalSupplyAt(800).Int64())
	require.Equal(int64(200), f.engine.BalanceOfAt(alice, 700).Int64())

	// history is preserved
	require.Equal(int64(450), f.engine.BalanceOfAt(alice, 150).Int64())
	require.Equal(int64(450), f.engine.TotalSupplyAt(150).Int64())
	require.Equal(int64(2000), f.engine.Supply().Int64())
}

func TestWithdraw_NoDoubleWithdraw(t *testing.T) {
	require := require.New(t)

	f := newFixture(t, smallRules(), 150)
	f.lock(alice, 10000, 650)

	f.at(599)
	_, err := f.engine.Withdraw(alice)
	require.Equal(ErrNotExpired, err)

	f.at(600)
	amount, err := f.engine.Withdraw(alice)
	require.NoError(err)
	require.Equal(int64(10000), amount.Int64())
	require.Equal(int64(1e18), f.bank.BalanceOf(lockToken, alice).Int64())
	require.False(f.engine.Locked(alice).Exists())
	require.Equal(uint64(0), f.engine.Members())
	require.Equal(int64(0), f.engine.Supply().Int64())

	f.at(700)
	_, err = f.engine.Withdraw(alice)
	require.Equal(ErrNoLock, err)
	require.Equal(int64(1e18), f.bank.BalanceOf(lockToken, alice).Int64())
	require.Equal(int64(0), f.bank.Holdings(lockToken).Int64())

	// a fresh lock is allowed again
	f.lock(alice, 1000, 1200)
	require.Equal(int64(500), f.engine.BalanceOf(alice).Int64())
}

func TestLockErrors(t *testing.T) {
	rules := smallRules()
	rules.Locks.MinAmount = big.NewInt(100)
	rules.Locks.MaxPoolMembers = 1

	f := newFixture(t, rules, 150)
	require := require.New(t)

	require.Equal(ErrZeroAmount, f.engine.CreateLock(alice, big.NewInt(0), 600))
	require.Equal(ErrZeroAmount, f.engine.CreateLock(alice, nil, 600))
	require.Equal(ErrBelowMinimum, f.engine.CreateLock(alice, big.NewInt(99), 600))
	require.Equal(ErrExpiryTooSoon, f.engine.CreateLock(alice, big.NewInt(1000), 199))
	require.Equal(ErrExpiryTooFar, f.engine.CreateLock(alice, big.NewInt(1000), 1200))
	require.NoError(f.engine.CreateLock(alice, big.NewInt(1000), 1150))
	require.Equal(ErrAlreadyLocked, f.engine.CreateLock(alice, big.NewInt(1000), 600))
	require.Equal(ErrPoolFull, f.engine.CreateLock(bob, big.NewInt(1000), 600))

	require.Equal(ErrNoLock, f.engine.IncreaseAmount(bob, big.NewInt(1)))
	require.Equal(ErrZeroAmount, f.engine.IncreaseAmount(alice, big.NewInt(0)))
	require.Equal(ErrNoLock, f.engine.IncreaseUnlockTime(bob, 600))
	require.Equal(ErrExpiryNotLater, f.engine.IncreaseUnlockTime(alice, 1150))
	require.Equal(ErrExpiryNotLater, f.engine.IncreaseUnlockTime(alice, 1000))

	f.at(300)
	require.Equal(ErrExpiryTooFar, f.engine.IncreaseUnlockTime(alice, 1400))
	require.NoError(f.engine.IncreaseUnlockTime(alice, 1300))

	f.at(1300)
	require.Equal(ErrLockExpired, f.engine.IncreaseAmount(alice, big.NewInt(1)))
	require.Equal(ErrLockExpired, f.engine.IncreaseUnlockTime(alice, 2000))

	for _, err := range []error{ErrZeroAmount, ErrExpiryTooFar} {
		require.True(IsInputError(err))
	}
	require.False(IsInputError(ErrNoLock))
	require.Equal("AlreadyLocked", Code(ErrAlreadyLocked))
	require.Equal("Internal", Code(errors.New("boom")))
}

func TestLock_FailuresLeaveNoTrace(t *testing.T) {
	require := require.New(t)

	f := newFixture(t, smallRules(), 150)
	f.lock(alice, 1000, 650)
	before := f.engine.StateHash()

	// custody refuses
	poor := custody.NewBank(escrowAddr)
	f.engine.custody = poor
	err := f.engine.CreateLock(bob, big.NewInt(1000), 650)
	require.True(errors.Is(err, custody.ErrInsufficientFunds))
	require.Equal(before, f.engine.StateHash())
	f.engine.custody = f.bank

	// clock moved backwards
	f.host.Set(140, f.host.Blk+1)
	err = f.engine.CreateLock(bob, big.NewInt(1000), 650)
	require.True(errors.Is(err, ErrInvalidTime))
	require.Equal(before, f.engine.StateHash())
	require.Equal(int64(1e18), f.bank.BalanceOf(lockToken, bob).Int64())
}

func TestOperationDisabled(t *testing.T) {
	require := require.New(t)

	f := newFixture(t, smallRules(), 150)
	require.Equal(ErrNotOwner, f.engine.SetOperationDisabled(alice, OpCreateLock, true))
	require.NoError(f.engine.SetOperationDisabled(owner, OpCreateLock, true))
	require.True(f.engine.Disabled(OpCreateLock))
	require.Equal(ErrOperationDisabled, f.engine.CreateLock(alice, big.NewInt(1000), 650))

	require.NoError(f.engine.SetOperationDisabled(owner, OpCreateLock, false))
	f.lock(alice, 1000, 650)

	require.NoError(f.engine.SetOperationDisabled(owner, OpWithdraw, true))
	f.at(700)
	_, err := f.engine.Withdraw(alice)
	require.Equal(ErrOperationDisabled, err)
}
