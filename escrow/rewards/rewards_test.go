package rewards

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-opera-escrow/escrow/checkpoint"
	"github.com/rony4d/go-opera-escrow/inter"
)

var (
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func TestLedger_DepositsAndTotals(t *testing.T) {
	require := require.New(t)

	l := NewLedger()
	l.Deposit(tokenA, 100, big.NewInt(10))
	l.Deposit(tokenA, 100, big.NewInt(5))
	l.Deposit(tokenA, 200, big.NewInt(1))
	l.DepositStuck(tokenB, big.NewInt(7))

	require.Equal(int64(15), l.Amount(tokenA, 100).Int64())
	require.Equal(int64(0), l.Amount(tokenA, 300).Int64())
	require.Equal([]inter.Timestamp{100, 200}, l.Windows(tokenA))
	require.Equal([]common.Address{tokenA, tokenB}, l.Tokens())
	require.Equal(int64(16), l.Totals(tokenA).Deposited.Int64())
	require.Equal(int64(7), l.Stuck(tokenB).Int64())

	l.RecordClaim(tokenA, big.NewInt(4))
	require.Equal(int64(4), l.Totals(tokenA).Claimed.Int64())

	// totals are copies
	l.Totals(tokenA).Deposited.SetInt64(0)
	require.Equal(int64(16), l.Totals(tokenA).Deposited.Int64())
}

func TestLedger_StuckBucket(t *testing.T) {
	require := require.New(t)

	l := NewLedger()
	l.DepositStuck(tokenA, big.NewInt(9))
	moved := l.MoveStuck(tokenA, 300)
	require.Equal(int64(9), moved.Int64())
	require.Equal(int64(9), l.Amount(tokenA, 300).Int64())
	require.Equal(int64(0), l.Stuck(tokenA).Int64())
	require.Equal(int64(0), l.MoveStuck(tokenA, 400).Int64())

	l.DepositStuck(tokenA, big.NewInt(3))
	require.Equal(int64(3), l.RecoverStuck(tokenA).Int64())

	tot := l.Totals(tokenA)
	require.Equal(int64(12), tot.Deposited.Int64())
	require.Equal(int64(3), tot.Recovered.Int64())
	require.Equal(int64(0), tot.Stuck.Int64())
}

func TestLedger_ExportImport(t *testing.T) {
	require := require.New(t)

	l := NewLedger()
	l.Deposit(tokenB, 100, big.NewInt(10))
	l.Deposit(tokenA, 200, big.NewInt(20))
	l.DepositStuck(tokenA, big.NewInt(3))
	l.RecordClaim(tokenA, big.NewInt(2))

	windows, totals := l.Export()
	require.Len(windows, 2)
	require.Equal(tokenA, windows[0].Token)
	require.Len(totals, 2)

	restored := Import(windows, totals)
	require.Equal(l.Amount(tokenA, 200).String(), restored.Amount(tokenA, 200).String())
	for _, token := range []common.Address{tokenA, tokenB} {
		want, got := l.Totals(token), restored.Totals(token)
		require.Equal(want.Deposited.String(), got.Deposited.String())
		require.Equal(want.Claimed.String(), got.Claimed.String())
		require.Equal(want.Stuck.String(), got.Stuck.String())
		require.Equal(want.Recovered.String(), got.Recovered.String())
	}

	cp := l.Copy()
	cp.Deposit(tokenA, 200, big.NewInt(1))
	require.Equal(int64(20), l.Amount(tokenA, 200).Int64())
}

func TestIntegral_Trapezoids(t *testing.T) {
	require := require.New(t)

	// 0 until 100, then 1000 decaying by 2/s, topped up at 200
	h, err := checkpoint.FromPoints([]inter.Point{
		{Bias: big.NewInt(0), Slope: big.NewInt(0), Ts: 0},
		{Bias: big.NewInt(1000), Slope: big.NewInt(2), Ts: 100},
		{Bias: big.NewInt(1300), Slope: big.NewInt(3), Ts: 200},
	})
	require.NoError(err)

	// [100,200): (1000+800)*100 ; [200,300): (1300+1000)*100
	require.Equal(int64(180000+230000), Integral(h, 100, 300).Int64())
	// window starting before any weight
	require.Equal(int64(180000), Integral(h, 0, 200).Int64())
	require.Equal(int64(0), Integral(h, 0, 100).Int64())
	require.Equal(int64(180000/200), Average(h, 100, 100).Int64())
	require.Equal(int64(0), Average(h, 100, 0).Int64())
}

func TestIntegral_StopsAtZero(t *testing.T) {
	require := require.New(t)

	// reaches zero at 150 and stays there
	h, err := checkpoint.FromPoints([]inter.Point{
		{Bias: big.NewInt(0), Slope: big.NewInt(0), Ts: 0},
		{Bias: big.NewInt(100), Slope: big.NewInt(2), Ts: 100},
	})
	require.NoError(err)

	require.Equal(int64(100*50), Integral(h, 100, 300).Int64())
}

func TestShare(t *testing.T) {
	require := require.New(t)

	require.Equal(int64(5), Share(big.NewInt(10), big.NewInt(1), big.NewInt(2)).Int64())
	require.Equal(int64(3), Share(big.NewInt(10), big.NewInt(1), big.NewInt(3)).Int64())
	require.Equal(int64(0), Share(big.NewInt(10), big.NewInt(1), big.NewInt(0)).Int64())
	require.Equal(int64(10), Share(big.NewInt(10), big.NewInt(7), big.NewInt(7)).Int64())
}
