// Package balance computes settled/future/spendable balance per asset
// from an internal/ledger.Ledger plus the raw transfer rows needed for the
// witness-receive pending heuristic.
package balance

import (
	"github.com/rgbwallet/rgbwallet/internal/db"
	"github.com/rgbwallet/rgbwallet/internal/ledger"
	"github.com/rgbwallet/rgbwallet/internal/models"
)

// Balance is the tri-value result for one asset.
type Balance struct {
	Settled   uint64
	Future    uint64
	Spendable uint64
}

// Compute derives a Balance for assetID from a snapshot. The snapshot must
// contain every Transfer/Coloring touching the asset; callers pass the full
// db.Snapshot rather than querying per asset.
func Compute(snap *db.Snapshot, assetID string) Balance {
	l := ledger.Build(snap, false)
	allocs := l.ForAsset(assetID)

	var settled, pendingIn, pendingOut uint64
	for _, a := range allocs {
		amt := a.Assignment.OwnedAmount()
		if a.Settled() {
			settled += amt
			continue
		}
		if a.Status.Pending() {
			if a.Incoming {
				pendingIn += amt
			} else {
				pendingOut += amt
			}
		}
	}

	// Witness-receive pending: the Coloring is written only after confirmation,
	// so an incoming witness transfer sitting in WaitingConfirmations contributes
	// via its Transfer.Amount field directly instead of via a Coloring.
	assetTransferAssetByIdx := make(map[int64]*string, len(snap.AssetTransfers))
	batchByAssetTransfer := make(map[int64]models.BatchTransfer, len(snap.AssetTransfers))
	batches := make(map[int64]models.BatchTransfer, len(snap.BatchTransfers))
	for _, bt := range snap.BatchTransfers {
		batches[bt.Idx] = bt
	}
	for _, at := range snap.AssetTransfers {
		assetTransferAssetByIdx[at.Idx] = at.AssetID
		batchByAssetTransfer[at.Idx] = batches[at.BatchTransferIdx]
	}
	for _, tr := range snap.Transfers {
		if !tr.Incoming || tr.RecipientType == nil || *tr.RecipientType != models.RecipientTypeWitness {
			continue
		}
		aid := assetTransferAssetByIdx[tr.AssetTransferIdx]
		if aid == nil || *aid != assetID {
			continue
		}
		bt := batchByAssetTransfer[tr.AssetTransferIdx]
		if bt.Status != models.BatchTransferStatusWaitingConfirmations {
			continue
		}
		// Only count it if no Receive coloring has landed yet for this leg,
		// otherwise it would double count once the Coloring is written.
		hasReceiveColoring := false
		for _, a := range allocs {
			if a.AssetTransferIdx == tr.AssetTransferIdx && a.ColoringType == models.ColoringReceive {
				hasReceiveColoring = true
				break
			}
		}
		if hasReceiveColoring {
			continue
		}
		var amt uint64
		parseDecimal(tr.Amount, &amt)
		pendingIn += amt
	}

	future := settled + pendingIn
	if pendingOut > future {
		// The input selector should make this unreachable. Clamp instead of
		// wrapping so a latent invariant violation surfaces as zero rather
		// than a huge uint64.
		future = 0
	} else {
		future -= pendingOut
	}

	unspendable := computeUnspendable(l, allocs, assetID)
	spendable := settled
	if unspendable > spendable {
		spendable = 0
	} else {
		spendable -= unspendable
	}

	return Balance{Settled: settled, Future: future, Spendable: spendable}
}

// computeUnspendable sums settled allocation amounts sitting on a Txo that is
// otherwise blocked: carries any non-Failed outgoing allocation, any pending
// incoming allocation, or (if spent) an outgoing allocation still awaiting
// confirmation.
func computeUnspendable(l *ledger.Ledger, allocs []ledger.LocalRgbAllocation, assetID string) uint64 {
	var unspendable uint64
	seen := make(map[int64]bool)
	for _, a := range allocs {
		if !a.Settled() || seen[a.TxoIdx] {
			continue
		}
		if l.HasAnyNonFailedOutgoing(a.TxoIdx) || l.HasAnyPendingIncoming(a.TxoIdx) || (a.TxoSpent && l.HasWaitingConfirmationsOutgoing(a.TxoIdx)) {
			// sum every settled allocation for this asset on this (now blocked) txo
			for _, a2 := range allocs {
				if a2.TxoIdx == a.TxoIdx && a2.Settled() {
					unspendable += a2.Assignment.OwnedAmount()
				}
			}
			seen[a.TxoIdx] = true
		}
	}
	return unspendable
}

func parseDecimal(s string, out *uint64) {
	var v uint64
	for _, c := range s {
		if c < '0' || c > '9' {
			return
		}
		v = v*10 + uint64(c-'0')
	}
	*out = v
}
