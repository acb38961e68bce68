// Package rewards accounts for reward deposits per token and per window and
// integrates decaying weight trajectories over a window.
package rewards

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-opera-escrow/inter"
)

// Totals is the running account of one reward token. At any time
//
//	Deposited == sum(window amounts) + Stuck + Recovered
//
// and Claimed never exceeds the sum of window amounts.
type Totals struct {
	Deposited *big.Int
	Claimed   *big.Int
	// Stuck holds deposits that arrived while no weight was locked.
	Stuck *big.Int
	// Recovered counts stuck deposits refunded by the owner.
	Recovered *big.Int
}

func newTotals() *Totals {
	return &Totals{
		Deposited: new(big.Int),
		Claimed:   new(big.Int),
		Stuck:     new(big.Int),
		Recovered: new(big.Int),
	}
}

// Copy returns a deep copy.
func (t Totals) Copy() Totals {
	return Totals{
		Deposited: cloneBig(t.Deposited),
		Claimed:   cloneBig(t.Claimed),
		Stuck:     cloneBig(t.Stuck),
		Recovered: cloneBig(t.Recovered),
	}
}

// Ledger is the reward window ledger: accumulated deposits per token per window.
// Entries are only ever incremented and never removed.
type Ledger struct {
	windows map[common.Address]map[inter.Timestamp]*big.Int
	totals  map[common.Address]*Totals
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		windows: make(map[common.Address]map[inter.Timestamp]*big.Int),
		totals:  make(map[common.Address]*Totals),
	}
}

// Deposit credits amount to the token's bucket for window.
func (l *Ledger) Deposit(token common.Address, window inter.Timestamp, amount *big.Int) {
	l.credit(token, window, amount)
	l.account(token).Deposited.Add(l.account(token).Deposited, amount)
}

// DepositStuck records a deposit no window can be attributed to.
func (l *Ledger) DepositStuck(token common.Address, amount *big.Int) {
	acc := l.account(token)
	acc.Deposited.Add(acc.Deposited, amount)
	acc.Stuck.Add(acc.Stuck, amount)
}

// MoveStuck transfers the token's whole stuck bucket into window and returns
// the amount moved.
func (l *Ledger) MoveStuck(token common.Address, window inter.Timestamp) *big.Int {
	acc := l.account(token)
	moved := new(big.Int).Set(acc.Stuck)
	if moved.Sign() == 0 {
		return moved
	}
	acc.Stuck.SetUint64(0)
	l.credit(token, window, moved)
	return moved
}

// RecoverStuck empties the token's stuck bucket for a refund and returns the amount.
func (l *Ledger) RecoverStuck(token common.Address) *big.Int {
	acc := l.account(token)
	out := new(big.Int).Set(acc.Stuck)
	acc.Recovered.Add(acc.Recovered, out)
	acc.Stuck.SetUint64(0)
	return out
}

// RecordClaim books a payout.
func (l *Ledger) RecordClaim(token common.Address, amount *big.Int) {
	acc := l.account(token)
	acc.Claimed.Add(acc.Claimed, amount)
}

// Amount returns the accumulated deposits of token in window.
func (l *Ledger) Amount(token common.Address, window inter.Timestamp) *big.Int {
	if v, ok := l.windows[token][window]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Stuck returns the token's stuck bucket.
func (l *Ledger) Stuck(token common.Address) *big.Int {
	if acc, ok := l.totals[token]; ok {
		return new(big.Int).Set(acc.Stuck)
	}
	return new(big.Int)
}

// Totals returns a copy of the token's running account.
func (l *Ledger) Totals(token common.Address) Totals {
	if acc, ok := l.totals[token]; ok {
		return acc.Copy()
	}
	return newTotals().Copy()
}

// Tokens returns every token ever deposited, in byte order.
func (l *Ledger) Tokens() []common.Address {
	out := make([]common.Address, 0, len(l.totals))
	for token := range l.totals {
		out = append(out, token)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// Windows returns the windows holding deposits of token, ascending.
func (l *Ledger) Windows(token common.Address) []inter.Timestamp {
	out := make([]inter.Timestamp, 0, len(l.windows[token]))
	for w := range l.windows[token] {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Copy returns a deep copy of the ledger.
func (l *Ledger) Copy() *Ledger {
	cp := NewLedger()
	for token, windows := range l.windows {
		m := make(map[inter.Timestamp]*big.Int, len(windows))
		for w, v := range windows {
			m[w] = new(big.Int).Set(v)
		}
		cp.windows[token] = m
	}
	for token, acc := range l.totals {
		t := acc.Copy()
		cp.totals[token] = &t
	}
	return cp
}

func (l *Ledger) credit(token common.Address, window inter.Timestamp, amount *big.Int) {
	m, ok := l.windows[token]
	if !ok {
		m = make(map[inter.Timestamp]*big.Int)
		l.windows[token] = m
	}
	cur, ok := m[window]
	if !ok {
		cur = new(big.Int)
		m[window] = cur
	}
	cur.Add(cur, amount)
}

func (l *Ledger) account(token common.Address) *Totals {
	acc, ok := l.totals[token]
	if !ok {
		acc = newTotals()
		l.totals[token] = acc
	}
	return acc
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
