// Package selector picks the input UTXOs for an outgoing transfer: given a
// target asset and amount, accumulate smallest-first over the UTXOs holding
// settled allocations of that asset, rejecting inputs locked by pending
// operations.
package selector

import (
	"sort"

	"github.com/rgbwallet/rgbwallet/internal/balance"
	"github.com/rgbwallet/rgbwallet/internal/db"
	"github.com/rgbwallet/rgbwallet/internal/ledger"
	"github.com/rgbwallet/rgbwallet/internal/walleterr"
)

// ChosenInput is one UTXO selected to cover part of the requested amount.
type ChosenInput struct {
	TxoIdx int64
	Amount uint64 // this UTXO's settled contribution towards the target asset
}

// AssetSpend is the result of one input selection.
type AssetSpend struct {
	Inputs []ChosenInput
	Change uint64
}

// TotalInput sums every chosen input's contribution.
func (s AssetSpend) TotalInput() uint64 {
	var total uint64
	for _, in := range s.Inputs {
		total += in.Amount
	}
	return total
}

// Select picks UTXOs to cover `amount` of `assetID`, excluding any Txo idx in
// exclude. Candidates are restricted to LocalUnspent Txos: exist on chain,
// not pending-witness, not excluded, and free of a waiting-counterparty
// outgoing allocation.
func Select(snap *db.Snapshot, assetID string, amount uint64, exclude map[int64]bool) (*AssetSpend, error) {
	l := ledger.Build(snap, false)

	existsByIdx := make(map[int64]bool, len(snap.Txos))
	pendingWitnessByIdx := make(map[int64]bool, len(snap.Txos))
	for _, t := range snap.Txos {
		existsByIdx[t.Idx] = t.Exists
		pendingWitnessByIdx[t.Idx] = t.PendingWitness
	}

	type candidate struct {
		txoIdx  int64
		total   uint64 // total (all types) allocation amount on this utxo, for the sort
		settled uint64 // settled amount for the target asset specifically
	}

	byTxo := make(map[int64][]uint64) // settled amounts per txo across all assets, for the sort key
	for _, a := range l.All() {
		if a.Settled() {
			byTxo[a.TxoIdx] = append(byTxo[a.TxoIdx], a.Assignment.OwnedAmount())
		}
	}

	var candidates []candidate
	seen := make(map[int64]bool)
	for _, a := range l.ForAsset(assetID) {
		if seen[a.TxoIdx] || exclude[a.TxoIdx] {
			continue
		}
		if !existsByIdx[a.TxoIdx] || pendingWitnessByIdx[a.TxoIdx] {
			continue
		}
		if l.HasWaitingCounterpartyOutgoing(a.TxoIdx) {
			continue
		}
		seen[a.TxoIdx] = true
		var total uint64
		for _, v := range byTxo[a.TxoIdx] {
			total += v
		}
		var settled uint64
		for _, a2 := range l.ForTxo(a.TxoIdx) {
			if a2.AssetID != nil && *a2.AssetID == assetID && a2.Settled() {
				settled += a2.Assignment.OwnedAmount()
			}
		}
		candidates = append(candidates, candidate{txoIdx: a.TxoIdx, total: total, settled: settled})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].total < candidates[j].total })

	var chosen []ChosenInput
	var accumulated uint64
	for _, c := range candidates {
		if accumulated >= amount {
			break
		}
		if c.settled == 0 {
			continue
		}
		chosen = append(chosen, ChosenInput{TxoIdx: c.txoIdx, Amount: c.settled})
		accumulated += c.settled
	}

	if accumulated < amount {
		bal := balance.Compute(snap, assetID)
		if bal.Future >= amount {
			return nil, walleterr.ErrInsufficientSpendableAssets
		}
		return nil, walleterr.ErrInsufficientTotalAssets
	}

	return &AssetSpend{Inputs: chosen, Change: accumulated - amount}, nil
}
