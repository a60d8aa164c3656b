// Package indexer is the wallet's narrow view of the chain indexer:
// genesis-block hash and per-tx confirmation status. Two provider variants
// are modeled (esplora-style and mempool.space-style), sharing the
// circuit-breaker/rate-limiter resilience of internal/httpx, with a
// round-robin failover pool on top.
package indexer

import (
	"context"
	"errors"
)

// ErrTxNotFound is returned when the indexer has no record of a txid.
var ErrTxNotFound = errors.New("indexer: transaction not found")

// TxStatus is the indexer's view of one transaction.
type TxStatus struct {
	Exists        bool
	Confirmations uint32
	CoinbaseOnly  bool // a coinbase tx has special maturity rules the core treats distinctly
}

// Indexer is the narrow surface the core consumes from a chain indexer.
type Indexer interface {
	// Name identifies the indexer variant for logging/health display.
	Name() string

	// BlockZeroHash returns the genesis block hash, used to detect a base-chain
	// network mismatch between the wallet and the indexer it's pointed at.
	BlockZeroHash(ctx context.Context) (string, error)

	// TxStatus reports confirmations/existence for a txid. A txid the indexer
	// has never seen returns ErrTxNotFound rather than a zero TxStatus, so
	// refresh can distinguish "not yet broadcast/propagated" from "0 conf".
	TxStatus(ctx context.Context, txid string) (TxStatus, error)
}
