// Package custody implements token custody for the escrow ledger: an in-memory
// balance sheet per token and account.
//
// The ledger never moves funds itself. It asks its custody collaborator to pull
// a payer's funds in or push funds out to a recipient, and treats any error as
// a reason to abort the whole operation. The Bank defined here is the custody
// used by the command line tools, the HTTP service and the tests.
//
// Balances are kept the way an account-based chain keeps them: a mapping from
// account to balance, one mapping per token, with the zero address standing
// for the native coin.
package custody

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInsufficientFunds is returned when a debit exceeds the account balance.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Balance is the persisted form of one balance entry.
type Balance struct {
	Token   common.Address
	Account common.Address
	Amount  *big.Int
}

// Bank is an in-memory multi-token balance sheet.
type Bank struct {
	// Self is the account holding funds on behalf of the ledger.
	Self common.Address

	// open banks do not track payers: funds entering custody are not debited
	// from anyone, only the holdings of Self are accounted.
	open bool

	balances map[common.Address]map[common.Address]*big.Int
}

// NewBank returns a bank where every transfer in is debited from the payer.
func NewBank(self common.Address) *Bank {
	return &Bank{
		Self:     self,
		balances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// NewOpenBank returns a bank that only accounts for the holdings of self.
// Used when payers live outside the process, e.g. behind the HTTP service.
func NewOpenBank(self common.Address) *Bank {
	b := NewBank(self)
	b.open = true
	return b
}

// Open reports whether payers are tracked.
func (b *Bank) Open() bool {
	return b.open
}

// Mint credits amount to account out of thin air.
func (b *Bank) Mint(token, account common.Address, amount *big.Int) {
	b.credit(token, account, amount)
}

// BalanceOf returns the balance of account in token.
func (b *Bank) BalanceOf(token, account common.Address) *big.Int {
	if v, ok := b.balances[token][account]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Holdings returns what the ledger holds in token.
func (b *Bank) Holdings(token common.Address) *big.Int {
	return b.BalanceOf(token, b.Self)
}

// TransferIn moves amount of token from a payer into custody.
func (b *Bank) TransferIn(token, from common.Address, amount *big.Int) error {
	if b.open {
		b.credit(token, b.Self, amount)
		return nil
	}
	return b.Transfer(token, from, b.Self, amount)
}

// TransferOut releases amount of token from custody to a recipient.
func (b *Bank) TransferOut(token, to common.Address, amount *big.Int) error {
	return b.Transfer(token, b.Self, to, amount)
}

// Transfer moves amount of token between two accounts.
//
// Parameters:
//   - token: token address, zero for the native coin
//   - from: debited account, must hold at least amount
//   - to: credited account
//   - amount: non-negative quantity
//
// Returns:
//   - error: ErrInsufficientFunds when from cannot cover the transfer
func (b *Bank) Transfer(token, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("custody: invalid amount %v", amount)
	}
	if amount.Sign() == 0 {
		return nil
	}
	have := b.BalanceOf(token, from)
	if have.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s", ErrInsufficientFunds, from.Hex(), have, token.Hex(), amount)
	}
	b.balances[token][from].Sub(b.balances[token][from], amount)
	b.credit(token, to, amount)
	return nil
}

// Export returns all non-zero balances in deterministic order.
func (b *Bank) Export() []Balance {
	var out []Balance
	for token, accounts := range b.balances {
		for account, v := range accounts {
			if v.Sign() == 0 {
				continue
			}
			out = append(out, Balance{Token: token, Account: account, Amount: new(big.Int).Set(v)})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].Token[:], out[j].Token[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(out[i].Account[:], out[j].Account[:]) < 0
	})
	return out
}

// Import replaces all balances with the given entries.
func (b *Bank) Import(entries []Balance) {
	b.balances = make(map[common.Address]map[common.Address]*big.Int)
	for _, e := range entries {
		if e.Amount != nil {
			b.credit(e.Token, e.Account, e.Amount)
		}
	}
}

func (b *Bank) credit(token, account common.Address, amount *big.Int) {
	accounts, ok := b.balances[token]
	if !ok {
		accounts = make(map[common.Address]*big.Int)
		b.balances[token] = accounts
	}
	cur, ok := accounts[account]
	if !ok {
		cur = new(big.Int)
		accounts[account] = cur
	}
	cur.Add(cur, amount)
}
