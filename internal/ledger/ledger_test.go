package ledger

import (
	"testing"

	"github.com/rgbwallet/rgbwallet/internal/db"
	"github.com/rgbwallet/rgbwallet/internal/models"
)

func assetID(id string) *string { return &id }

func TestBuild_SettledIncoming(t *testing.T) {
	snap := &db.Snapshot{
		BatchTransfers: []models.BatchTransfer{{Idx: 1, Status: models.BatchTransferStatusSettled}},
		AssetTransfers: []models.AssetTransfer{{Idx: 1, BatchTransferIdx: 1, AssetID: assetID("asset1")}},
		Colorings: []models.Coloring{
			{Idx: 1, TxoIdx: 10, AssetTransferIdx: 1, Type: models.ColoringIssue, Assignment: models.Assignment{Kind: models.AssignmentFungible, Amount: 600}},
		},
		Txos: []models.Txo{{Idx: 10, Spent: false}},
	}

	l := Build(snap, false)
	allocs := l.ForTxo(10)
	if len(allocs) != 1 {
		t.Fatalf("expected 1 allocation, got %d", len(allocs))
	}
	if !allocs[0].Settled() {
		t.Fatalf("expected settled incoming allocation on a settled batch")
	}
	if allocs[0].Future() {
		t.Fatalf("settled allocation should not also be future")
	}
}

func TestBuild_OutgoingWaitingConfirmationsIsSettled(t *testing.T) {
	snap := &db.Snapshot{
		BatchTransfers: []models.BatchTransfer{{Idx: 1, Status: models.BatchTransferStatusWaitingConfirmations}},
		AssetTransfers: []models.AssetTransfer{{Idx: 1, BatchTransferIdx: 1, AssetID: assetID("asset1")}},
		Colorings: []models.Coloring{
			{Idx: 1, TxoIdx: 10, AssetTransferIdx: 1, Type: models.ColoringInput, Assignment: models.Assignment{Kind: models.AssignmentFungible, Amount: 100}},
		},
		Txos: []models.Txo{{Idx: 10, Spent: true}},
	}

	l := Build(snap, false)
	allocs := l.ForTxo(10)
	if !allocs[0].Settled() {
		t.Fatalf("spent outgoing allocation awaiting confirmation should count as settled")
	}
}

func TestBuild_FutureIncoming(t *testing.T) {
	snap := &db.Snapshot{
		BatchTransfers: []models.BatchTransfer{{Idx: 1, Status: models.BatchTransferStatusWaitingConfirmations}},
		AssetTransfers: []models.AssetTransfer{{Idx: 1, BatchTransferIdx: 1, AssetID: assetID("asset1")}},
		Colorings: []models.Coloring{
			{Idx: 1, TxoIdx: 10, AssetTransferIdx: 1, Type: models.ColoringReceive, Assignment: models.Assignment{Kind: models.AssignmentFungible, Amount: 66}},
		},
		Txos: []models.Txo{{Idx: 10, Spent: false}},
	}

	l := Build(snap, false)
	allocs := l.ForTxo(10)
	if allocs[0].Settled() {
		t.Fatalf("unsettled incoming allocation must not be settled")
	}
	if !allocs[0].Future() {
		t.Fatalf("expected incoming pending allocation to be future")
	}
}

func TestBuild_ExcludesFailedByDefault(t *testing.T) {
	snap := &db.Snapshot{
		BatchTransfers: []models.BatchTransfer{{Idx: 1, Status: models.BatchTransferStatusFailed}},
		AssetTransfers: []models.AssetTransfer{{Idx: 1, BatchTransferIdx: 1, AssetID: assetID("asset1")}},
		Colorings: []models.Coloring{
			{Idx: 1, TxoIdx: 10, AssetTransferIdx: 1, Type: models.ColoringInput, Assignment: models.Assignment{Kind: models.AssignmentFungible, Amount: 50}},
		},
		Txos: []models.Txo{{Idx: 10, Spent: true}},
	}

	l := Build(snap, false)
	if len(l.ForTxo(10)) != 0 {
		t.Fatalf("Failed-status allocations must be excluded when includeFailed=false")
	}

	l2 := Build(snap, true)
	if len(l2.ForTxo(10)) != 1 {
		t.Fatalf("Failed-status allocations must be retained when includeFailed=true")
	}
}

func TestOccupancyAndLocks(t *testing.T) {
	snap := &db.Snapshot{
		BatchTransfers: []models.BatchTransfer{
			{Idx: 1, Status: models.BatchTransferStatusWaitingCounterparty},
		},
		AssetTransfers: []models.AssetTransfer{{Idx: 1, BatchTransferIdx: 1, AssetID: assetID("asset1")}},
		Colorings: []models.Coloring{
			{Idx: 1, TxoIdx: 10, AssetTransferIdx: 1, Type: models.ColoringInput, Assignment: models.Assignment{Kind: models.AssignmentFungible, Amount: 50}},
		},
		Txos: []models.Txo{{Idx: 10, Spent: false}},
	}

	l := Build(snap, false)
	if l.Occupancy(10) != 1 {
		t.Fatalf("expected occupancy 1")
	}
	if !l.HasWaitingCounterpartyOutgoing(10) {
		t.Fatalf("expected waiting-counterparty outgoing lock")
	}
}
