package selector

import (
	"errors"
	"testing"

	"github.com/rgbwallet/rgbwallet/internal/db"
	"github.com/rgbwallet/rgbwallet/internal/models"
	"github.com/rgbwallet/rgbwallet/internal/walleterr"
)

func id(s string) *string { return &s }

func settledAssetSnapshot(amounts ...uint64) *db.Snapshot {
	snap := &db.Snapshot{
		BatchTransfers: []models.BatchTransfer{{Idx: 1, Status: models.BatchTransferStatusSettled}},
	}
	for i, amt := range amounts {
		atIdx := int64(i + 1)
		txoIdx := int64(100 + i)
		snap.AssetTransfers = append(snap.AssetTransfers, models.AssetTransfer{Idx: atIdx, BatchTransferIdx: 1, AssetID: id("asset1")})
		snap.Colorings = append(snap.Colorings, models.Coloring{
			Idx: atIdx, TxoIdx: txoIdx, AssetTransferIdx: atIdx, Type: models.ColoringIssue,
			Assignment: models.Assignment{Kind: models.AssignmentFungible, Amount: amt},
		})
		snap.Txos = append(snap.Txos, models.Txo{Idx: txoIdx, Exists: true})
	}
	return snap
}

func TestSelect_SmallestFirst(t *testing.T) {
	snap := settledAssetSnapshot(300, 100, 500)

	spend, err := Select(snap, "asset1", 150, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(spend.Inputs) != 2 {
		t.Fatalf("expected 2 inputs (100+300 to cover 150), got %d: %+v", len(spend.Inputs), spend.Inputs)
	}
	if spend.Inputs[0].TxoIdx != 101 {
		t.Fatalf("expected smallest utxo (101, amount 100) picked first, got %d", spend.Inputs[0].TxoIdx)
	}
	if spend.Change != spend.TotalInput()-150 {
		t.Fatalf("change mismatch")
	}
}

func TestSelect_InsufficientTotal(t *testing.T) {
	snap := settledAssetSnapshot(100)
	_, err := Select(snap, "asset1", 1000, nil)
	if !errors.Is(err, walleterr.ErrInsufficientTotalAssets) {
		t.Fatalf("expected ErrInsufficientTotalAssets, got %v", err)
	}
}

func TestSelect_ExcludesLockedTxo(t *testing.T) {
	snap := &db.Snapshot{
		BatchTransfers: []models.BatchTransfer{
			{Idx: 1, Status: models.BatchTransferStatusSettled},
			{Idx: 2, Status: models.BatchTransferStatusWaitingCounterparty},
		},
		AssetTransfers: []models.AssetTransfer{
			{Idx: 1, BatchTransferIdx: 1, AssetID: id("asset1")},
			{Idx: 2, BatchTransferIdx: 2, AssetID: id("asset1")},
		},
		Colorings: []models.Coloring{
			{Idx: 1, TxoIdx: 10, AssetTransferIdx: 1, Type: models.ColoringIssue, Assignment: models.Assignment{Kind: models.AssignmentFungible, Amount: 500}},
			{Idx: 2, TxoIdx: 10, AssetTransferIdx: 2, Type: models.ColoringInput, Assignment: models.Assignment{Kind: models.AssignmentFungible, Amount: 500}},
		},
		Txos: []models.Txo{{Idx: 10, Exists: true}},
	}

	_, err := Select(snap, "asset1", 1, nil)
	if err == nil {
		t.Fatalf("expected error since the only utxo is locked by a pending outgoing allocation")
	}
}
