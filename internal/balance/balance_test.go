package balance

import (
	"testing"

	"github.com/rgbwallet/rgbwallet/internal/db"
	"github.com/rgbwallet/rgbwallet/internal/models"
)

func id(s string) *string { return &s }

func TestCompute_IssueSettled(t *testing.T) {
	snap := &db.Snapshot{
		BatchTransfers: []models.BatchTransfer{{Idx: 1, Status: models.BatchTransferStatusSettled}},
		AssetTransfers: []models.AssetTransfer{{Idx: 1, BatchTransferIdx: 1, AssetID: id("asset1"), UserDriven: true}},
		Colorings: []models.Coloring{
			{Idx: 1, TxoIdx: 10, AssetTransferIdx: 1, Type: models.ColoringIssue, Assignment: models.Assignment{Kind: models.AssignmentFungible, Amount: 600}},
		},
		Txos: []models.Txo{{Idx: 10, Exists: true}},
	}

	b := Compute(snap, "asset1")
	if b.Settled != 600 || b.Future != 600 || b.Spendable != 600 {
		t.Fatalf("expected {600,600,600}, got %+v", b)
	}
}

func TestCompute_UnspendableWhenTxoHasPendingOutgoing(t *testing.T) {
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
			{Idx: 1, TxoIdx: 10, AssetTransferIdx: 1, Type: models.ColoringIssue, Assignment: models.Assignment{Kind: models.AssignmentFungible, Amount: 600}},
			{Idx: 2, TxoIdx: 10, AssetTransferIdx: 2, Type: models.ColoringInput, Assignment: models.Assignment{Kind: models.AssignmentFungible, Amount: 600}},
		},
		Txos: []models.Txo{{Idx: 10, Exists: true, Spent: false}},
	}

	b := Compute(snap, "asset1")
	if b.Settled != 600 {
		t.Fatalf("expected settled 600, got %d", b.Settled)
	}
	if b.Spendable != 0 {
		t.Fatalf("expected spendable 0 once the utxo carries a pending outgoing, got %d", b.Spendable)
	}
}

func TestCompute_WitnessReceivePendingCountsTowardsFuture(t *testing.T) {
	witness := models.RecipientTypeWitness
	snap := &db.Snapshot{
		BatchTransfers: []models.BatchTransfer{{Idx: 1, Status: models.BatchTransferStatusWaitingConfirmations}},
		AssetTransfers: []models.AssetTransfer{{Idx: 1, BatchTransferIdx: 1, AssetID: id("asset1")}},
		Transfers: []models.Transfer{
			{Idx: 1, AssetTransferIdx: 1, Incoming: true, RecipientType: &witness, Amount: "66"},
		},
	}

	b := Compute(snap, "asset1")
	if b.Future != 66 {
		t.Fatalf("expected future=66 from pending witness-receive transfer amount, got %d", b.Future)
	}
	if b.Settled != 0 {
		t.Fatalf("expected settled=0 before the Receive coloring lands, got %d", b.Settled)
	}
}
