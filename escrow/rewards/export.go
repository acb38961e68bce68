package rewards

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-opera-escrow/inter"
)

// WindowRecord is the persisted form of one window bucket.
type WindowRecord struct {
	Token  common.Address
	Window inter.Timestamp
	Amount *big.Int
}

// TotalsRecord is the persisted form of one token's running account.
type TotalsRecord struct {
	Token     common.Address
	Deposited *big.Int
	Claimed   *big.Int
	Stuck     *big.Int
	Recovered *big.Int
}

// Export flattens the ledger in deterministic order.
func (l *Ledger) Export() ([]WindowRecord, []TotalsRecord) {
	var windows []WindowRecord
	var totals []TotalsRecord
	for _, token := range l.Tokens() {
		for _, w := range l.Windows(token) {
			windows = append(windows, WindowRecord{Token: token, Window: w, Amount: l.Amount(token, w)})
		}
		t := l.Totals(token)
		totals = append(totals, TotalsRecord{
			Token:     token,
			Deposited: t.Deposited,
			Claimed:   t.Claimed,
			Stuck:     t.Stuck,
			Recovered: t.Recovered,
		})
	}
	return windows, totals
}

// Import rebuilds a ledger from exported records.
func Import(windows []WindowRecord, totals []TotalsRecord) *Ledger {
	l := NewLedger()
	for _, r := range windows {
		l.credit(r.Token, r.Window, cloneBig(r.Amount))
	}
	for _, r := range totals {
		l.totals[r.Token] = &Totals{
			Deposited: cloneBig(r.Deposited),
			Claimed:   cloneBig(r.Claimed),
			Stuck:     cloneBig(r.Stuck),
			Recovered: cloneBig(r.Recovered),
		}
	}
	return l
}
