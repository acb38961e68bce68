package escrow

import (
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-opera-escrow/inter"
)

// Host is the execution environment the ledger runs in. It supplies the
// current time and the block counter every recorded point is stamped with.
// Both must be non-decreasing across calls.
type Host interface {
	Now() inter.Timestamp
	Block() idx.Block
}

// Custody moves funds on behalf of the ledger. Any error aborts the calling
// operation before ledger state changes.
type Custody interface {
	// TransferIn pulls amount of token from a payer into custody.
	TransferIn(token, from common.Address, amount *big.Int) error
	// TransferOut releases amount of token from custody to a recipient.
	TransferOut(token, to common.Address, amount *big.Int) error
}

// ManualHost is a Host driven explicitly by its owner. Tools replaying
// operations and tests use it to control time.
type ManualHost struct {
	Ts  inter.Timestamp
	Blk idx.Block
}

// Now implements Host.
func (h *ManualHost) Now() inter.Timestamp {
	return h.Ts
}

// Block implements Host.
func (h *ManualHost) Block() idx.Block {
	return h.Blk
}

// Advance moves the clock forward by dt seconds and produces one block.
func (h *ManualHost) Advance(dt inter.Timestamp) {
	h.Ts += dt
	h.Blk++
}

// Set jumps to the given time and block.
func (h *ManualHost) Set(ts inter.Timestamp, blk idx.Block) {
	h.Ts, h.Blk = ts, blk
}
