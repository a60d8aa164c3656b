// Package allocator implements the UTXO Allocator: picking a
// free-slot UTXO for a new incoming allocation or for change, and creating
// fresh UTXOs on demand when none qualify. Slot selection is pure
// in-memory logic over a ledger.Ledger, the same derive-don't-persist shape
// as internal/ledger and internal/balance; Create-UTXOs is the one
// operation here that talks to the embedded base-chain wallet.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/rgbwallet/rgbwallet/internal/basechain"
	"github.com/rgbwallet/rgbwallet/internal/config"
	"github.com/rgbwallet/rgbwallet/internal/db"
	"github.com/rgbwallet/rgbwallet/internal/ledger"
	"github.com/rgbwallet/rgbwallet/internal/models"
	"github.com/rgbwallet/rgbwallet/internal/walleterr"
)

// Candidate is a UTXO eligible for a new allocation, along with the
// occupancy it was chosen at.
type Candidate struct {
	TxoIdx    int64
	Occupancy int
}

// PickParams configures a single slot pick.
type PickParams struct {
	// Exclude skips these Txos outright (already selected as spend inputs, etc).
	Exclude map[int64]bool

	// PendingBlinded adds reserved slots not yet reflected in the ledger,
	// keyed by Txo, for multiple picks made within a single caller-side loop
	// (e.g. one UTXO per issuance amount) before any of them are persisted.
	PendingBlinded map[int64]int

	// PendingOperation selects the tie-break direction: issuance/change (false)
	// prefer untouched UTXOs; sending (true) prefers UTXOs already carrying a
	// future allocation, to concentrate risk rather than spread it.
	PendingOperation bool

	// MaxAllocationsPerUtxo overrides config.DefaultMaxAllocationsPerUtxo when > 0.
	MaxAllocationsPerUtxo int
}

// Pick selects the best free-slot UTXO for a new allocation. Candidates are
// sorted ascending by occupancy; ties are broken by the PendingOperation flag.
func Pick(snap *db.Snapshot, l *ledger.Ledger, params PickParams) (Candidate, error) {
	capacity := params.MaxAllocationsPerUtxo
	if capacity <= 0 {
		capacity = config.DefaultMaxAllocationsPerUtxo
	}

	blindReserved := ledger.BlindReservations(snap)

	var candidates []Candidate
	var unconfinedSats uint64
	for _, t := range snap.Txos {
		if !t.Exists || t.Spent || t.PendingWitness {
			continue
		}
		occ := l.Occupancy(t.Idx) + blindReserved[t.Idx] + params.PendingBlinded[t.Idx]
		if occ == 0 {
			unconfinedSats += parseSats(t.BtcAmount)
		}
		if params.Exclude[t.Idx] {
			continue
		}
		if l.HasWaitingCounterpartyOutgoing(t.Idx) {
			continue
		}
		if occ > capacity-1 {
			continue
		}
		candidates = append(candidates, Candidate{TxoIdx: t.Idx, Occupancy: occ})
	}

	if len(candidates) == 0 {
		if unconfinedSats < config.MinBTCRequired {
			return Candidate{}, walleterr.InsufficientBitcoins(config.MinBTCRequired, unconfinedSats)
		}
		return Candidate{}, walleterr.ErrInsufficientAllocationSlots
	}

	hasFuture := func(txoIdx int64) bool {
		for _, a := range l.ForTxo(txoIdx) {
			if a.Future() {
				return true
			}
		}
		return false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Occupancy != candidates[j].Occupancy {
			return candidates[i].Occupancy < candidates[j].Occupancy
		}
		fi, fj := hasFuture(candidates[i].TxoIdx), hasFuture(candidates[j].TxoIdx)
		if fi == fj {
			return false
		}
		if params.PendingOperation {
			return fi
		}
		return fj
	})

	return candidates[0], nil
}

func parseSats(s string) uint64 {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// CreateUtxosParams configures a Create-UTXOs call.
type CreateUtxosParams struct {
	Num     int     // default config.DefaultCreateUtxosNum
	Size    uint64  // sats per output, default config.DefaultCreateUtxosSize
	FeeRate float64 // sat/vB, bounded [config.MinFeeRate, config.MaxFeeRate]
}

// CreateUtxosResult reports the outcome of a successful Create-UTXOs call.
type CreateUtxosResult struct {
	Txid string
	Num  int // actual number of UTXOs created, may be less than requested
}

// CreateUtxos builds, signs and broadcasts a transaction paying Num outputs
// of Size sats back to the wallet's own keychain, retrying with a shrinking
// output count while the wallet reports insufficient funds.
func CreateUtxos(ctx context.Context, store *db.DB, wallet basechain.Wallet, params CreateUtxosParams) (*CreateUtxosResult, error) {
	num := params.Num
	if num <= 0 {
		num = config.DefaultCreateUtxosNum
	}
	size := params.Size
	if size == 0 {
		size = config.DefaultCreateUtxosSize
	}
	feeRate := params.FeeRate
	if feeRate < config.MinFeeRate {
		feeRate = config.MinFeeRate
	}
	if feeRate > config.MaxFeeRate {
		feeRate = config.MaxFeeRate
	}

	for n := num; n >= 0; n-- {
		if n == 0 {
			return nil, walleterr.ErrInsufficientBitcoins
		}

		addr, err := wallet.NextAddress(ctx)
		if err != nil {
			return nil, fmt.Errorf("create utxos: next address: %w", err)
		}
		outputs := make([]basechain.TxOutput, n)
		for i := range outputs {
			outputs[i] = basechain.TxOutput{Address: addr, Amount: size}
		}

		built, err := wallet.Build(ctx, basechain.BuildParams{
			Outputs: outputs,
			FeeRate: feeRate,
		})
		if errors.Is(err, walleterr.ErrInsufficientBitcoins) {
			slog.Debug("create utxos: insufficient funds, retrying with fewer outputs", "requested", n)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create utxos: build: %w", err)
		}
		if err := wallet.Sign(ctx, built.Packet); err != nil {
			return nil, fmt.Errorf("create utxos: sign: %w", err)
		}
		txid, err := wallet.Broadcast(ctx, built.Packet)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", walleterr.ErrFailedBroadcast, err)
		}

		if _, err := store.InsertWalletTransaction(models.WalletTransaction{Txid: txid, Label: models.WalletTxCreateUtxos}); err != nil {
			return nil, fmt.Errorf("create utxos: record wallet transaction: %w", err)
		}
		slog.Info("create utxos broadcast", "txid", txid, "num", n, "size", size)
		return &CreateUtxosResult{Txid: txid, Num: n}, nil
	}
	return nil, walleterr.ErrInsufficientBitcoins
}
