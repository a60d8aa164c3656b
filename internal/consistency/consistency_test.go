package consistency

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/rgbwallet/rgbwallet/internal/basechain"
	"github.com/rgbwallet/rgbwallet/internal/contractlib"
	"github.com/rgbwallet/rgbwallet/internal/db"
	"github.com/rgbwallet/rgbwallet/internal/media"
	"github.com/rgbwallet/rgbwallet/internal/models"
	"github.com/rgbwallet/rgbwallet/internal/walleterr"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon art"

func setup(t *testing.T) (*db.DB, *basechain.BTCWallet, *contractlib.StandIn, *media.Store) {
	t.Helper()
	store, err := db.New(filepath.Join(t.TempDir(), "wallet.sqlite"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.RunMigrations(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	wallet, err := basechain.NewFromMnemonic(testMnemonic, &chaincfg.TestNet3Params)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	mediaStore, err := media.NewStore(filepath.Join(t.TempDir(), "media_files"))
	if err != nil {
		t.Fatalf("media: %v", err)
	}
	return store, wallet, contractlib.NewStandIn(), mediaStore
}

func TestCheck_Passes(t *testing.T) {
	store, wallet, lib, mediaStore := setup(t)
	ctx := context.Background()

	wallet.SeedUnspent(basechain.Unspent{Txid: "aa00", Vout: 0, Amount: 1000})
	if _, err := store.InsertTxo(models.Txo{Txid: "aa00", Vout: 0, BtcAmount: "1000", Exists: true}); err != nil {
		t.Fatalf("insert txo: %v", err)
	}

	contractID, _ := lib.RegisterContract(ctx, contractlib.RegisterParams{Schema: models.SchemaNIA, Name: "x", Ticker: "X", IssuedSupply: 1})
	if _, err := store.InsertAsset(models.Asset{ID: contractID, Schema: models.SchemaNIA, Name: "x", Ticker: "X", IssuedSupply: "1"}); err != nil {
		t.Fatalf("insert asset: %v", err)
	}

	path := filepath.Join(t.TempDir(), "file.bin")
	os.WriteFile(path, []byte("media bytes"), 0o644)
	pinned, err := mediaStore.Pin(path)
	if err != nil {
		t.Fatalf("pin: %v", err)
	}
	if _, err := store.InsertMedia(models.Media{Digest: pinned.Digest, Mime: pinned.Mime}); err != nil {
		t.Fatalf("insert media: %v", err)
	}

	if err := Check(ctx, store, wallet, lib, mediaStore); err != nil {
		t.Fatalf("expected check to pass: %v", err)
	}
}

func TestCheck_DetectsForeignSpend(t *testing.T) {
	store, wallet, lib, mediaStore := setup(t)

	// Stored as unspent, but the wallet no longer sees it on chain.
	if _, err := store.InsertTxo(models.Txo{Txid: "bb00", Vout: 0, BtcAmount: "1000", Exists: true}); err != nil {
		t.Fatalf("insert txo: %v", err)
	}

	err := Check(context.Background(), store, wallet, lib, mediaStore)
	if !errors.Is(err, walleterr.ErrInconsistency) {
		t.Fatalf("expected ErrInconsistency, got %v", err)
	}
}

func TestCheck_DetectsUnknownAsset(t *testing.T) {
	store, wallet, lib, mediaStore := setup(t)

	if _, err := store.InsertAsset(models.Asset{ID: "rgb:ghost", Schema: models.SchemaNIA, Name: "g", Ticker: "G", IssuedSupply: "1"}); err != nil {
		t.Fatalf("insert asset: %v", err)
	}

	err := Check(context.Background(), store, wallet, lib, mediaStore)
	if !errors.Is(err, walleterr.ErrInconsistency) {
		t.Fatalf("expected ErrInconsistency, got %v", err)
	}
}

func TestCheck_DetectsMissingMedia(t *testing.T) {
	store, wallet, lib, mediaStore := setup(t)

	if _, err := store.InsertMedia(models.Media{Digest: "deadbeef", Mime: "application/octet-stream"}); err != nil {
		t.Fatalf("insert media: %v", err)
	}

	err := Check(context.Background(), store, wallet, lib, mediaStore)
	if !errors.Is(err, walleterr.ErrInconsistency) {
		t.Fatalf("expected ErrInconsistency, got %v", err)
	}
}
