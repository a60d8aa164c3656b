// Package ledger derives, per UTXO, the set of asset allocations carried by
// a wallet's stored colorings. It never queries the database itself;
// callers hand it a db.Snapshot (or the subset they already loaded) and it
// joins Coloring x AssetTransfer x BatchTransfer in memory, fresh on every
// call.
package ledger

import (
	"github.com/rgbwallet/rgbwallet/internal/db"
	"github.com/rgbwallet/rgbwallet/internal/models"
)

// LocalRgbAllocation is one allocation entry on a Txo, as seen by the ledger.
type LocalRgbAllocation struct {
	AssetID          *string
	Assignment       models.Assignment
	Status           models.BatchTransferStatus
	Incoming         bool
	TxoSpent         bool
	TxoIdx           int64
	AssetTransferIdx int64
	ColoringType     models.ColoringType
}

// Settled reports whether an allocation contributes to settled balance:
// incoming once its batch is Settled, outgoing as soon as the spending tx
// has been broadcast even if not yet confirmed.
func (a LocalRgbAllocation) Settled() bool {
	if a.Status == models.BatchTransferStatusFailed {
		return false
	}
	if !a.TxoSpent && a.Incoming && a.Status == models.BatchTransferStatusSettled {
		return true
	}
	if a.TxoSpent && !a.Incoming && a.Status == models.BatchTransferStatusWaitingConfirmations {
		return true
	}
	return false
}

// Future reports expected inbound value that hasn't settled yet.
func (a LocalRgbAllocation) Future() bool {
	if a.TxoSpent || !a.Incoming || a.Status == models.BatchTransferStatusFailed {
		return false
	}
	return !a.Settled()
}

// Ledger is a derived view over a Snapshot, indexed for repeated lookups.
type Ledger struct {
	byTxo map[int64][]LocalRgbAllocation
}

// Build joins colorings/asset-transfers/batch-transfers/txos into a per-Txo
// allocation ledger. includeFailed controls whether Failed-status
// allocations are retained in the output; they never contribute to balances
// or slot accounting.
func Build(snap *db.Snapshot, includeFailed bool) *Ledger {
	batchByAssetTransfer := make(map[int64]models.BatchTransfer, len(snap.AssetTransfers))
	batches := make(map[int64]models.BatchTransfer, len(snap.BatchTransfers))
	for _, bt := range snap.BatchTransfers {
		batches[bt.Idx] = bt
	}
	assetTransfers := make(map[int64]models.AssetTransfer, len(snap.AssetTransfers))
	for _, at := range snap.AssetTransfers {
		assetTransfers[at.Idx] = at
		batchByAssetTransfer[at.Idx] = batches[at.BatchTransferIdx]
	}
	txoSpent := make(map[int64]bool, len(snap.Txos))
	for _, t := range snap.Txos {
		txoSpent[t.Idx] = t.Spent
	}

	l := &Ledger{byTxo: make(map[int64][]LocalRgbAllocation)}
	for _, c := range snap.Colorings {
		bt := batchByAssetTransfer[c.AssetTransferIdx]
		if bt.Status == models.BatchTransferStatusFailed && !includeFailed {
			continue
		}
		at := assetTransfers[c.AssetTransferIdx]
		alloc := LocalRgbAllocation{
			AssetID:          at.AssetID,
			Assignment:       c.Assignment,
			Status:           bt.Status,
			Incoming:         c.Type.Incoming(),
			TxoSpent:         txoSpent[c.TxoIdx],
			TxoIdx:           c.TxoIdx,
			AssetTransferIdx: c.AssetTransferIdx,
			ColoringType:     c.Type,
		}
		l.byTxo[c.TxoIdx] = append(l.byTxo[c.TxoIdx], alloc)
	}
	return l
}

// ForTxo returns the allocations recorded on a Txo, in insertion order.
func (l *Ledger) ForTxo(txoIdx int64) []LocalRgbAllocation {
	return l.byTxo[txoIdx]
}

// All returns every allocation in the ledger, flattened.
func (l *Ledger) All() []LocalRgbAllocation {
	var out []LocalRgbAllocation
	for _, allocs := range l.byTxo {
		out = append(out, allocs...)
	}
	return out
}

// ForAsset returns every allocation belonging to a given asset id, across all Txos.
func (l *Ledger) ForAsset(assetID string) []LocalRgbAllocation {
	var out []LocalRgbAllocation
	for _, allocs := range l.byTxo {
		for _, a := range allocs {
			if a.AssetID != nil && *a.AssetID == assetID {
				out = append(out, a)
			}
		}
	}
	return out
}

// Occupancy returns the number of non-Failed allocations recorded on a Txo,
// the basis for the allocator's slot-cap check.
func (l *Ledger) Occupancy(txoIdx int64) int {
	return len(l.byTxo[txoIdx])
}

// BlindReservations counts, per Txo, the blind-receive transfers still in
// WaitingCounterparty whose beneficiary is that Txo. These reserve an
// allocation slot before any Coloring exists.
func BlindReservations(snap *db.Snapshot) map[int64]int {
	batches := make(map[int64]models.BatchTransfer, len(snap.BatchTransfers))
	for _, bt := range snap.BatchTransfers {
		batches[bt.Idx] = bt
	}
	batchByAssetTransfer := make(map[int64]models.BatchTransfer, len(snap.AssetTransfers))
	for _, at := range snap.AssetTransfers {
		batchByAssetTransfer[at.Idx] = batches[at.BatchTransferIdx]
	}

	out := make(map[int64]int)
	for _, tr := range snap.Transfers {
		if !tr.Incoming || tr.BeneficiaryTxoIdx == nil {
			continue
		}
		if tr.RecipientType == nil || *tr.RecipientType != models.RecipientTypeBlind {
			continue
		}
		if batchByAssetTransfer[tr.AssetTransferIdx].Status != models.BatchTransferStatusWaitingCounterparty {
			continue
		}
		out[*tr.BeneficiaryTxoIdx]++
	}
	return out
}

// HasWaitingCounterpartyOutgoing reports whether a Txo carries any outgoing
// allocation whose batch is still WaitingCounterparty; such a Txo is locked
// from both spending and further allocation.
func (l *Ledger) HasWaitingCounterpartyOutgoing(txoIdx int64) bool {
	for _, a := range l.byTxo[txoIdx] {
		if !a.Incoming && a.Status == models.BatchTransferStatusWaitingCounterparty {
			return true
		}
	}
	return false
}

// HasAnyNonFailedOutgoing reports whether a Txo carries any non-Failed
// outgoing allocation, used by the Balance Engine's "unspendable" computation.
func (l *Ledger) HasAnyNonFailedOutgoing(txoIdx int64) bool {
	for _, a := range l.byTxo[txoIdx] {
		if !a.Incoming && a.Status != models.BatchTransferStatusFailed {
			return true
		}
	}
	return false
}

// HasAnyPendingIncoming reports whether a Txo carries an incoming allocation
// that is neither Settled nor Failed.
func (l *Ledger) HasAnyPendingIncoming(txoIdx int64) bool {
	for _, a := range l.byTxo[txoIdx] {
		if a.Incoming && a.Status.Pending() {
			return true
		}
	}
	return false
}

// HasWaitingConfirmationsOutgoing reports whether a spent Txo still has an
// outgoing allocation awaiting confirmation (part of "unspendable" too).
func (l *Ledger) HasWaitingConfirmationsOutgoing(txoIdx int64) bool {
	for _, a := range l.byTxo[txoIdx] {
		if !a.Incoming && a.Status == models.BatchTransferStatusWaitingConfirmations {
			return true
		}
	}
	return false
}
