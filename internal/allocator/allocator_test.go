package allocator

import (
	"context"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcutil/psbt"

	"github.com/rgbwallet/rgbwallet/internal/basechain"
	"github.com/rgbwallet/rgbwallet/internal/config"
	"github.com/rgbwallet/rgbwallet/internal/db"
	"github.com/rgbwallet/rgbwallet/internal/ledger"
	"github.com/rgbwallet/rgbwallet/internal/models"
	"github.com/rgbwallet/rgbwallet/internal/walleterr"
)

func emptySnapshot(txos ...models.Txo) *db.Snapshot {
	return &db.Snapshot{Txos: txos}
}

func txo(idx int64, sats string) models.Txo {
	return models.Txo{Idx: idx, Txid: "t", Vout: uint32(idx), BtcAmount: sats, Exists: true}
}

func TestPick_PrefersLowestOccupancy(t *testing.T) {
	snap := emptySnapshot(txo(1, "10000"), txo(2, "10000"))
	assetID := "asset1"
	snap.Colorings = []models.Coloring{
		{AssetTransferIdx: 1, TxoIdx: 1, Type: models.ColoringReceive, Assignment: models.Assignment{Amount: 1}},
	}
	snap.AssetTransfers = []models.AssetTransfer{{Idx: 1, BatchTransferIdx: 1, AssetID: &assetID}}
	snap.BatchTransfers = []models.BatchTransfer{{Idx: 1, Status: models.BatchTransferStatusSettled}}

	l := ledger.Build(snap, false)
	c, err := Pick(snap, l, PickParams{})
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if c.TxoIdx != 2 {
		t.Fatalf("expected txo 2 (occupancy 0) to win over txo 1 (occupancy 1), got %d", c.TxoIdx)
	}
}

func TestPick_InsufficientBitcoinsWhenBTCTooLow(t *testing.T) {
	snap := emptySnapshot(txo(1, "500"))
	assetID := "a"
	snap.Colorings = []models.Coloring{
		{AssetTransferIdx: 1, TxoIdx: 1, Type: models.ColoringReceive},
		{AssetTransferIdx: 1, TxoIdx: 1, Type: models.ColoringReceive},
		{AssetTransferIdx: 1, TxoIdx: 1, Type: models.ColoringReceive},
		{AssetTransferIdx: 1, TxoIdx: 1, Type: models.ColoringReceive},
	}
	snap.AssetTransfers = []models.AssetTransfer{{Idx: 1, BatchTransferIdx: 1, AssetID: &assetID}}
	snap.BatchTransfers = []models.BatchTransfer{{Idx: 1, Status: models.BatchTransferStatusSettled}}
	l := ledger.Build(snap, false)

	// cap=1 leaves no spare slot on a Txo already carrying 4 allocations, and
	// its 500 sats fall below MinBTCRequired, so a Create-UTXOs fallback could
	// not be funded either.
	_, err := Pick(snap, l, PickParams{MaxAllocationsPerUtxo: 1})
	if !errors.Is(err, walleterr.ErrInsufficientBitcoins) {
		t.Fatalf("expected ErrInsufficientBitcoins, got %v", err)
	}
}

func TestPick_InsufficientSlotsWhenEnoughFreeBTC(t *testing.T) {
	snap := emptySnapshot(txo(1, "500"))
	assetID := "a"
	snap.Colorings = []models.Coloring{
		{AssetTransferIdx: 1, TxoIdx: 1, Type: models.ColoringReceive},
		{AssetTransferIdx: 1, TxoIdx: 1, Type: models.ColoringReceive},
		{AssetTransferIdx: 1, TxoIdx: 1, Type: models.ColoringReceive},
		{AssetTransferIdx: 1, TxoIdx: 1, Type: models.ColoringReceive},
	}
	snap.AssetTransfers = []models.AssetTransfer{{Idx: 1, BatchTransferIdx: 1, AssetID: &assetID}}
	snap.BatchTransfers = []models.BatchTransfer{{Idx: 1, Status: models.BatchTransferStatusSettled}}
	// A second, fully free UTXO with plenty of BTC, but excluded as an already-selected spend input.
	snap.Txos = append(snap.Txos, txo(2, "5000"))
	l := ledger.Build(snap, false)

	_, err := Pick(snap, l, PickParams{MaxAllocationsPerUtxo: 1, Exclude: map[int64]bool{2: true}})
	if !errors.Is(err, walleterr.ErrInsufficientAllocationSlots) {
		t.Fatalf("expected ErrInsufficientAllocationSlots since the excluded Txo still counts toward unconfined BTC, got %v", err)
	}
}

func TestPick_ExcludesPendingWitnessAndSpent(t *testing.T) {
	spent := txo(1, "1000")
	spent.Spent = true
	pendingWitness := txo(2, "1000")
	pendingWitness.PendingWitness = true
	free := txo(3, "1000")

	snap := emptySnapshot(spent, pendingWitness, free)
	l := ledger.Build(snap, false)

	c, err := Pick(snap, l, PickParams{})
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if c.TxoIdx != 3 {
		t.Fatalf("expected only the free txo to be a candidate, got %d", c.TxoIdx)
	}
}

type fakeWallet struct {
	minOutputs int
	addrCalls  int
	signed     bool
	broadcast  string
}

func (f *fakeWallet) Sync(ctx context.Context) error                 { return nil }
func (f *fakeWallet) ListUnspents(ctx context.Context) ([]basechain.Unspent, error) { return nil, nil }
func (f *fakeWallet) ListTransactions(ctx context.Context) ([]string, error)        { return nil, nil }

func (f *fakeWallet) Build(ctx context.Context, params basechain.BuildParams) (*basechain.BuiltPSBT, error) {
	if len(params.Outputs) < f.minOutputs {
		return nil, walleterr.ErrInsufficientBitcoins
	}
	return &basechain.BuiltPSBT{Packet: &psbt.Packet{}}, nil
}

func (f *fakeWallet) Sign(ctx context.Context, p *psbt.Packet) error {
	f.signed = true
	return nil
}

func (f *fakeWallet) Broadcast(ctx context.Context, p *psbt.Packet) (string, error) {
	f.broadcast = "deadbeef"
	return f.broadcast, nil
}

func (f *fakeWallet) NextAddress(ctx context.Context) (string, error) {
	f.addrCalls++
	return "bcrt1qaddr", nil
}

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.New(t.TempDir() + "/wallet.sqlite")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := d.RunMigrations(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return d
}

func TestCreateUtxos_RetriesWithFewerOutputs(t *testing.T) {
	store := openTestDB(t)
	wallet := &fakeWallet{minOutputs: 3}

	result, err := CreateUtxos(context.Background(), store, wallet, CreateUtxosParams{Num: 5})
	if err != nil {
		t.Fatalf("CreateUtxos: %v", err)
	}
	if result.Num != 3 {
		t.Fatalf("expected retry to settle at 3 outputs, got %d", result.Num)
	}
	if !wallet.signed || wallet.broadcast == "" {
		t.Fatalf("expected wallet to sign and broadcast")
	}

	wt, err := store.GetWalletTransaction(result.Txid)
	if err != nil {
		t.Fatalf("GetWalletTransaction: %v", err)
	}
	if wt == nil || wt.Label != models.WalletTxCreateUtxos {
		t.Fatalf("expected wallet transaction labeled CreateUtxos, got %+v", wt)
	}
}

func TestCreateUtxos_InsufficientBitcoinsWhenUnfundable(t *testing.T) {
	store := openTestDB(t)
	wallet := &fakeWallet{minOutputs: 100}

	_, err := CreateUtxos(context.Background(), store, wallet, CreateUtxosParams{Num: 5})
	if !errors.Is(err, walleterr.ErrInsufficientBitcoins) {
		t.Fatalf("expected ErrInsufficientBitcoins, got %v", err)
	}
}

func TestCreateUtxos_FeeRateClampedToBounds(t *testing.T) {
	store := openTestDB(t)
	wallet := &fakeWallet{minOutputs: 1}

	_, err := CreateUtxos(context.Background(), store, wallet, CreateUtxosParams{Num: 1, FeeRate: config.MaxFeeRate * 10})
	if err != nil {
		t.Fatalf("CreateUtxos with out-of-bounds fee rate: %v", err)
	}
}
