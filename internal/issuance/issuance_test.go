package issuance

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rgbwallet/rgbwallet/internal/balance"
	"github.com/rgbwallet/rgbwallet/internal/contractlib"
	"github.com/rgbwallet/rgbwallet/internal/db"
	"github.com/rgbwallet/rgbwallet/internal/media"
	"github.com/rgbwallet/rgbwallet/internal/models"
	"github.com/rgbwallet/rgbwallet/internal/walleterr"
)

func newTestEngine(t *testing.T) (*Engine, *db.DB) {
	t.Helper()
	store, err := db.New(filepath.Join(t.TempDir(), "wallet.sqlite"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.RunMigrations(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	mediaStore, err := media.NewStore(filepath.Join(t.TempDir(), "media_files"))
	if err != nil {
		t.Fatalf("media store: %v", err)
	}
	return &Engine{
		Store:     store,
		Contracts: contractlib.NewStandIn(),
		Media:     mediaStore,
	}, store
}

func seedTxos(t *testing.T, store *db.DB, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := store.InsertTxo(models.Txo{
			Txid:      "aa00000000000000000000000000000000000000000000000000000000000000",
			Vout:      uint32(i),
			BtcAmount: "1000",
			Exists:    true,
		})
		if err != nil {
			t.Fatalf("seed txo: %v", err)
		}
	}
}

func TestIssueNIA(t *testing.T) {
	e, store := newTestEngine(t)
	seedTxos(t, store, 1)

	asset, err := e.IssueNIA(context.Background(), NIAParams{
		Ticker: "USDT", Name: "Tether", Precision: 0, Amounts: []uint64{600},
	})
	if err != nil {
		t.Fatalf("issue NIA: %v", err)
	}
	if asset.Schema != models.SchemaNIA || asset.IssuedSupply != "600" {
		t.Fatalf("unexpected asset: %+v", asset)
	}

	snap, err := store.GetDBData()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.BatchTransfers) != 1 || snap.BatchTransfers[0].Status != models.BatchTransferStatusSettled {
		t.Fatalf("expected one settled batch transfer, got %+v", snap.BatchTransfers)
	}
	if len(snap.Colorings) != 1 || snap.Colorings[0].Type != models.ColoringIssue {
		t.Fatalf("expected one Issue coloring, got %+v", snap.Colorings)
	}
	if got := snap.Colorings[0].Assignment; got.Kind != models.AssignmentFungible || got.Amount != 600 {
		t.Fatalf("expected Fungible(600), got %+v", got)
	}

	bal := balance.Compute(snap, asset.ID)
	if bal.Settled != 600 || bal.Future != 600 || bal.Spendable != 600 {
		t.Fatalf("expected balance 600/600/600, got %+v", bal)
	}
}

func TestIssueNIA_OneUtxoPerAmount(t *testing.T) {
	e, store := newTestEngine(t)
	seedTxos(t, store, 3)

	asset, err := e.IssueNIA(context.Background(), NIAParams{
		Ticker: "TKN", Name: "Token", Precision: 2, Amounts: []uint64{10, 20, 30},
	})
	if err != nil {
		t.Fatalf("issue NIA: %v", err)
	}
	if asset.IssuedSupply != "60" {
		t.Fatalf("expected supply 60, got %s", asset.IssuedSupply)
	}

	snap, _ := store.GetDBData()
	seen := make(map[int64]bool)
	for _, c := range snap.Colorings {
		if seen[c.TxoIdx] {
			t.Fatalf("amounts must land on distinct UTXOs, %d reused", c.TxoIdx)
		}
		seen[c.TxoIdx] = true
	}
}

func TestIssueNIA_Validation(t *testing.T) {
	e, store := newTestEngine(t)
	seedTxos(t, store, 1)
	ctx := context.Background()

	cases := []struct {
		name   string
		params NIAParams
		want   error
	}{
		{"lowercase ticker", NIAParams{Ticker: "usdt", Name: "Tether", Amounts: []uint64{1}}, walleterr.ErrInvalidTicker},
		{"long ticker", NIAParams{Ticker: "ABCDEFGHI", Name: "Tether", Amounts: []uint64{1}}, walleterr.ErrInvalidTicker},
		{"empty name", NIAParams{Ticker: "TKN", Amounts: []uint64{1}}, walleterr.ErrInvalidName},
		{"precision too high", NIAParams{Ticker: "TKN", Name: "x", Precision: 19, Amounts: []uint64{1}}, walleterr.ErrInvalidPrecision},
		{"amount overflow", NIAParams{Ticker: "TKN", Name: "x", Amounts: []uint64{^uint64(0), 1}}, walleterr.ErrTooHighIssuanceAmounts},
		{"no amounts", NIAParams{Ticker: "TKN", Name: "x"}, walleterr.ErrFailedIssuance},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.IssueNIA(ctx, tc.params); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	snap, _ := store.GetDBData()
	if len(snap.BatchTransfers) != 0 {
		t.Fatalf("validation failures must not write batch transfers")
	}
}

func TestIssueIFA_RejectedOnMainnet(t *testing.T) {
	e, store := newTestEngine(t)
	seedTxos(t, store, 1)
	e.Mainnet = true

	_, err := e.IssueIFA(context.Background(), IFAParams{
		Ticker: "IFA", Name: "Inflatable", Amounts: []uint64{100},
	})
	if !errors.Is(err, walleterr.ErrCannotUseIfaOnMainnet) {
		t.Fatalf("expected ErrCannotUseIfaOnMainnet, got %v", err)
	}
	snap, _ := store.GetDBData()
	if len(snap.BatchTransfers) != 0 || len(snap.Colorings) != 0 {
		t.Fatalf("rejected issuance must not mutate the DB")
	}
}

func TestIssueIFA_InflationAndReplaceRights(t *testing.T) {
	e, store := newTestEngine(t)
	seedTxos(t, store, 5)

	asset, err := e.IssueIFA(context.Background(), IFAParams{
		Ticker: "IFA", Name: "Inflatable",
		Amounts:          []uint64{100, 200},
		InflationAmounts: []uint64{50},
		ReplaceRightsNum: 2,
	})
	if err != nil {
		t.Fatalf("issue IFA: %v", err)
	}
	if asset.IssuedSupply != "300" {
		t.Fatalf("expected supply 300, got %s", asset.IssuedSupply)
	}

	snap, _ := store.GetDBData()
	var fungible, inflation, replace int
	for _, c := range snap.Colorings {
		switch c.Assignment.Kind {
		case models.AssignmentFungible:
			fungible++
		case models.AssignmentInflationRight:
			inflation++
			if c.Assignment.Amount != 50 {
				t.Fatalf("expected InflationRight(50), got %+v", c.Assignment)
			}
		case models.AssignmentReplaceRight:
			replace++
		}
	}
	if fungible != 2 || inflation != 1 || replace != 2 {
		t.Fatalf("expected 2 fungible + 1 inflation + 2 replace colorings, got %d/%d/%d", fungible, inflation, replace)
	}

	bal := balance.Compute(snap, asset.ID)
	if bal.Settled != 300 {
		t.Fatalf("expected settled 300 (rights excluded from balance), got %d", bal.Settled)
	}
}

func TestIssueIFA_TooHighInflation(t *testing.T) {
	e, store := newTestEngine(t)
	seedTxos(t, store, 3)

	_, err := e.IssueIFA(context.Background(), IFAParams{
		Ticker: "IFA", Name: "Inflatable",
		Amounts:          []uint64{100},
		InflationAmounts: []uint64{^uint64(0) - 50},
	})
	if !errors.Is(err, walleterr.ErrTooHighInflationAmounts) {
		t.Fatalf("expected ErrTooHighInflationAmounts, got %v", err)
	}
}

func writeTempFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestIssueUDA_WithAttachments(t *testing.T) {
	e, store := newTestEngine(t)
	seedTxos(t, store, 1)

	mediaPath := writeTempFile(t, "primary.png", []byte("\x89PNG\r\n\x1a\nprimary"))
	att0 := writeTempFile(t, "att0.txt", []byte("attachment zero"))
	att1 := writeTempFile(t, "att1.txt", []byte("attachment one"))

	asset, err := e.IssueUDA(context.Background(), UDAParams{
		Ticker: "UDA", Name: "Unique", MediaFilePath: mediaPath,
		AttachmentFilePaths: []string{att0, att1},
	})
	if err != nil {
		t.Fatalf("issue UDA: %v", err)
	}
	if asset.IssuedSupply != "1" {
		t.Fatalf("expected supply 1, got %s", asset.IssuedSupply)
	}

	token, err := store.GetTokenByAssetIdx(asset.Idx)
	if err != nil || token == nil {
		t.Fatalf("expected token row, got %v / %v", token, err)
	}
	if token.Index != 0 {
		t.Fatalf("expected fixed token index 0, got %d", token.Index)
	}
	tms, err := store.ListTokenMedia(token.Idx)
	if err != nil {
		t.Fatalf("list token media: %v", err)
	}
	var primary, numbered int
	ids := make(map[uint8]bool)
	for _, tm := range tms {
		if tm.AttachmentID == nil {
			primary++
		} else {
			numbered++
			ids[*tm.AttachmentID] = true
		}
	}
	if primary != 1 || numbered != 2 || !ids[0] || !ids[1] {
		t.Fatalf("expected 1 primary + attachments {0,1}, got %+v", tms)
	}

	snap, _ := store.GetDBData()
	bal := balance.Compute(snap, asset.ID)
	if bal.Settled != 1 || bal.Future != 1 || bal.Spendable != 1 {
		t.Fatalf("expected balance 1/1/1, got %+v", bal)
	}
}

func TestIssueUDA_TooManyAttachments(t *testing.T) {
	e, store := newTestEngine(t)
	seedTxos(t, store, 1)

	paths := make([]string, 21)
	for i := range paths {
		paths[i] = "unused.bin"
	}
	_, err := e.IssueUDA(context.Background(), UDAParams{
		Ticker: "UDA", Name: "Unique", AttachmentFilePaths: paths,
	})
	if !errors.Is(err, walleterr.ErrInvalidAttachments) {
		t.Fatalf("expected ErrInvalidAttachments, got %v", err)
	}
	snap, _ := store.GetDBData()
	if len(snap.BatchTransfers) != 0 {
		t.Fatalf("rejected issuance must not mutate the DB")
	}
}

func TestIssue_NoAllocatableUtxo(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.IssueNIA(context.Background(), NIAParams{
		Ticker: "TKN", Name: "Token", Amounts: []uint64{1},
	})
	if !errors.Is(err, walleterr.ErrInsufficientBitcoins) {
		t.Fatalf("expected ErrInsufficientBitcoins, got %v", err)
	}
}
