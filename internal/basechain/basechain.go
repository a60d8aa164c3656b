// Package basechain is the wallet core's narrow view of the embedded
// base-chain wallet: sync, list unspents/transactions, build a funded PSBT
// with given inputs/outputs/fee, sign, broadcast, reveal next address.
// Everything hides behind the Wallet interface so internal/send,
// internal/allocator and internal/consistency can be tested against a fake.
package basechain

import (
	"context"

	"github.com/btcsuite/btcd/btcutil/psbt"
)

// Unspent is one UTXO as reported by the embedded wallet's own view of the chain.
type Unspent struct {
	Txid   string
	Vout   uint32
	Amount uint64 // sats
}

// TxOutput is one requested output of a PSBT build.
type TxOutput struct {
	Address string
	Amount  uint64 // sats; the drain change output is appended by Build, not listed here
	OpReturn []byte // when non-nil, Address/Amount are ignored and this becomes an OP_RETURN output
}

// BuildParams describes a funded-PSBT request.
type BuildParams struct {
	// ManuallySelectedInputs pins these outpoints as inputs; Build itself adds
	// more of the wallet's unspents only if these can't cover outputs plus fee.
	ManuallySelectedInputs []Unspent
	Outputs                []TxOutput
	FeeRate                float64 // sat/vB
	DrainRemainder         bool    // true: add a fresh change output for the remainder
}

// BuiltPSBT is the result of a funded PSBT build, not yet signed.
type BuiltPSBT struct {
	Packet       *psbt.Packet
	ChangeVout   *int // index of the drain-to-wallet output, if any
	TotalInputs  uint64
	TotalOutputs uint64
	FeeSats      uint64
	EstVsize     int
}

// Wallet is the narrow surface the core consumes from the embedded base-chain
// wallet component.
type Wallet interface {
	// Sync refreshes the wallet's view of the chain (confirmations, new unspents).
	Sync(ctx context.Context) error

	// ListUnspents returns every UTXO the embedded wallet currently tracks as spendable.
	ListUnspents(ctx context.Context) ([]Unspent, error)

	// ListTransactions returns txids the embedded wallet has broadcast or observed.
	ListTransactions(ctx context.Context) ([]string, error)

	// Build constructs a funded, unsigned PSBT satisfying the given inputs/outputs/fee.
	Build(ctx context.Context, params BuildParams) (*BuiltPSBT, error)

	// Sign finalizes every input of the PSBT the embedded wallet can sign for.
	Sign(ctx context.Context, p *psbt.Packet) error

	// Broadcast submits a fully-signed transaction and returns its txid.
	Broadcast(ctx context.Context, p *psbt.Packet) (string, error)

	// NextAddress reveals the next unused address on the wallet's colored keychain.
	NextAddress(ctx context.Context) (string, error)
}
