package custody

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	escrowAddr = common.HexToAddress("0xe5c0000000000000000000000000000000000001")
	alice      = common.HexToAddress("0xa11ce00000000000000000000000000000000000")
	bob        = common.HexToAddress("0xb0b0000000000000000000000000000000000000")
	token      = common.HexToAddress("0x7000000000000000000000000000000000000000")
)

func TestBank_TransferInOut(t *testing.T) {
	require := require.New(t)

	b := NewBank(escrowAddr)
	b.Mint(token, alice, big.NewInt(100))

	require.NoError(b.TransferIn(token, alice, big.NewInt(60)))
	require.Equal(int64(40), b.BalanceOf(token, alice).Int64())
	require.Equal(int64(60), b.Holdings(token).Int64())

	err := b.TransferIn(token, alice, big.NewInt(41))
	require.True(errors.Is(err, ErrInsufficientFunds))
	require.Equal(int64(40), b.BalanceOf(token, alice).Int64(), "failed transfer must not move funds")

	require.NoError(b.TransferOut(token, bob, big.NewInt(25)))
	require.Equal(int64(25), b.BalanceOf(token, bob).Int64())
	require.Equal(int64(35), b.Holdings(token).Int64())

	require.True(errors.Is(b.TransferOut(token, bob, big.NewInt(36)), ErrInsufficientFunds))
	require.NoError(b.TransferOut(token, bob, big.NewInt(0)))
	require.Error(b.TransferOut(token, bob, big.NewInt(-1)))
}

func TestBank_Open(t *testing.T) {
	require := require.New(t)

	b := NewOpenBank(escrowAddr)
	require.True(b.Open())
	require.NoError(b.TransferIn(token, alice, big.NewInt(10)))
	require.Equal(int64(10), b.Holdings(token).Int64())
	require.Equal(int64(0), b.BalanceOf(token, alice).Int64())
}

func TestBank_ExportImport(t *testing.T) {
	require := require.New(t)

	b := NewBank(escrowAddr)
	b.Mint(token, bob, big.NewInt(3))
	b.Mint(token, alice, big.NewInt(5))
	b.Mint(common.Address{}, alice, big.NewInt(7))

	entries := b.Export()
	require.Len(entries, 3)
	require.Equal(common.Address{}, entries[0].Token)

	restored := NewBank(escrowAddr)
	restored.Import(entries)
	require.Equal(int64(5), restored.BalanceOf(token, alice).Int64())
	require.Equal(int64(3), restored.BalanceOf(token, bob).Int64())
	require.Equal(int64(7), restored.BalanceOf(common.Address{}, alice).Int64())
}
