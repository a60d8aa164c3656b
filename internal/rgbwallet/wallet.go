// Package rgbwallet is the public facade wiring every core component into
// one Wallet object: construct, optionally go online, run user operations,
// drop. It owns the wallet directory
// layout and the online/offline gate; all domain logic lives in the
// engine packages it delegates to.
package rgbwallet

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/rgbwallet/rgbwallet/internal/allocator"
	"github.com/rgbwallet/rgbwallet/internal/backup"
	"github.com/rgbwallet/rgbwallet/internal/balance"
	"github.com/rgbwallet/rgbwallet/internal/basechain"
	"github.com/rgbwallet/rgbwallet/internal/config"
	"github.com/rgbwallet/rgbwallet/internal/consistency"
	"github.com/rgbwallet/rgbwallet/internal/contractlib"
	"github.com/rgbwallet/rgbwallet/internal/db"
	"github.com/rgbwallet/rgbwallet/internal/indexer"
	"github.com/rgbwallet/rgbwallet/internal/issuance"
	"github.com/rgbwallet/rgbwallet/internal/ledger"
	"github.com/rgbwallet/rgbwallet/internal/media"
	"github.com/rgbwallet/rgbwallet/internal/models"
	"github.com/rgbwallet/rgbwallet/internal/receive"
	"github.com/rgbwallet/rgbwallet/internal/relay"
	"github.com/rgbwallet/rgbwallet/internal/send"
	"github.com/rgbwallet/rgbwallet/internal/transfer"
	"github.com/rgbwallet/rgbwallet/internal/walleterr"
)

// Params configures a Wallet instance.
type Params struct {
	// DataDir must exist; the wallet directory is created under it, keyed by
	// the mnemonic's fingerprint.
	DataDir  string
	Mnemonic string
	Network  string // "mainnet" or "testnet"

	// MaxAllocationsPerUtxo overrides the default slot cap when > 0.
	MaxAllocationsPerUtxo int

	// Contracts substitutes the contract library; nil uses the built-in stand-in.
	Contracts contractlib.Library

	// HTTPClient is shared by the relay clients; nil uses a default.
	HTTPClient *http.Client
}

// Wallet is one wallet instance over one wallet directory. Methods are not
// safe for concurrent use; the concurrency contract is one caller at a time
// per wallet instance.
type Wallet struct {
	walletDir string
	mainnet   bool
	online    bool

	store      *db.DB
	base       basechain.Wallet
	contracts  contractlib.Library
	relays     *relay.Pool
	mediaStore *media.Store
	httpClient *http.Client

	issuer   *issuance.Engine
	receiver *receive.Engine
	sender   *send.Engine
	machine  *transfer.StateMachine
}

// New opens (creating on first use) the wallet directory for the mnemonic's
// fingerprint under dataDir and wires every component.
func New(params Params) (*Wallet, error) {
	if params.DataDir == "" {
		return nil, fmt.Errorf("%w: empty data dir", walleterr.ErrInexistentDataDir)
	}
	if info, err := os.Stat(params.DataDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", walleterr.ErrInexistentDataDir, params.DataDir)
	}
	var net *chaincfg.Params
	switch params.Network {
	case "mainnet":
		net = &chaincfg.MainNetParams
	case "testnet", "":
		net = &chaincfg.TestNet3Params
	default:
		return nil, fmt.Errorf("%w: %q", walleterr.ErrInvalidBitcoinNetwork, params.Network)
	}

	base, err := basechain.NewFromMnemonic(params.Mnemonic, net)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256([]byte(params.Mnemonic + "/" + params.Network))
	fingerprint := hex.EncodeToString(sum[:4])
	walletDir := filepath.Join(params.DataDir, fingerprint)
	if err := os.MkdirAll(walletDir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create wallet dir: %s", walleterr.ErrIO, err)
	}

	store, err := db.New(filepath.Join(walletDir, "rgb_lib_db", "rgb.sqlite"))
	if err != nil {
		return nil, err
	}
	if err := store.RunMigrations(); err != nil {
		store.Close()
		return nil, err
	}
	mediaStore, err := media.NewStore(filepath.Join(walletDir, "media_files"))
	if err != nil {
		store.Close()
		return nil, err
	}

	contracts := params.Contracts
	if contracts == nil {
		contracts = contractlib.NewStandIn()
	}
	relays := relay.NewPool()
	transfersDir := filepath.Join(walletDir, "transfers")
	mainnet := params.Network == "mainnet"

	w := &Wallet{
		walletDir:  walletDir,
		mainnet:    mainnet,
		store:      store,
		base:       base,
		contracts:  contracts,
		relays:     relays,
		mediaStore: mediaStore,
		httpClient: params.HTTPClient,
	}
	w.issuer = &issuance.Engine{
		Store: store, Contracts: contracts, Media: mediaStore,
		Mainnet: mainnet, MaxAllocationsPerUtxo: params.MaxAllocationsPerUtxo,
	}
	w.receiver = &receive.Engine{
		Store: store, Wallet: base, MaxAllocationsPerUtxo: params.MaxAllocationsPerUtxo,
	}
	w.sender = &send.Engine{
		Store: store, Wallet: base, Contracts: contracts, Relays: relays,
		HTTPClient: params.HTTPClient, TransfersDir: transfersDir,
		MediaDir: filepath.Join(walletDir, "media_files"),
		MaxAllocationsPerUtxo: params.MaxAllocationsPerUtxo,
	}
	w.machine = &transfer.StateMachine{
		Store: store, Wallet: base, Contracts: contracts, Relays: relays,
		Media: mediaStore, HTTPClient: params.HTTPClient, TransfersDir: transfersDir,
	}
	slog.Info("wallet opened", "dir", walletDir, "network", params.Network)
	return w, nil
}

// Close releases the wallet's database handle.
func (w *Wallet) Close() error {
	return w.store.Close()
}

// WalletDir exposes the wallet's on-disk root (backup zips it).
func (w *Wallet) WalletDir() string {
	return w.walletDir
}

// GoOnline connects the wallet to a chain indexer, reconciles local state
// against it and runs the startup consistency check. With no indexerURL the
// wallet uses both public indexer variants behind a failover pool.
func (w *Wallet) GoOnline(ctx context.Context, indexerURL string) error {
	if w.online {
		return walleterr.ErrCannotChangeOnline
	}
	var idx indexer.Indexer
	if indexerURL == "" {
		esplora := indexer.NewEsploraIndexer(nil, blockstreamURL(w.mainnet))
		mempool := indexer.NewMempoolSpaceIndexer(nil, mempoolURL(w.mainnet))
		w.machine.Indexer = indexer.NewPool(esplora, mempool)
	} else {
		idx = indexer.NewEsploraIndexer(nil, indexerURL)
		w.machine.Indexer = indexer.NewPool(idx)
	}

	if err := w.base.Sync(ctx); err != nil {
		return fmt.Errorf("%w: %s", walleterr.ErrFailedBdkSync, err)
	}
	if err := w.syncUtxos(ctx); err != nil {
		return err
	}

	// One reconciliation pass over pending transfers before steady state.
	if _, err := w.machine.Refresh(ctx, "", nil); err != nil {
		return err
	}

	if err := consistency.Check(ctx, w.store, w.base, w.contracts, w.mediaStore); err != nil {
		return err
	}
	w.online = true
	slog.Info("wallet online", "indexer_url", indexerURL)
	return nil
}

func blockstreamURL(mainnet bool) string {
	if mainnet {
		return config.BlockstreamMainnetURL
	}
	return config.BlockstreamTestnetURL
}

func mempoolURL(mainnet bool) string {
	if mainnet {
		return config.MempoolMainnetURL
	}
	return config.MempoolTestnetURL
}

func (w *Wallet) requireOnline() error {
	if !w.online {
		return walleterr.ErrOnlineNeeded
	}
	return nil
}

// syncUtxos folds the base-chain wallet's unspent view into the Txo table:
// unknown outpoints are inserted, known ones confirmed as existing.
func (w *Wallet) syncUtxos(ctx context.Context) error {
	unspents, err := w.base.ListUnspents(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s", walleterr.ErrFailedBdkSync, err)
	}
	for _, u := range unspents {
		idx, err := w.store.GetTxoIdxByOutpoint(u.Txid, u.Vout)
		if err != nil {
			if _, err := w.store.InsertTxo(models.Txo{
				Txid:      u.Txid,
				Vout:      u.Vout,
				BtcAmount: strconv.FormatUint(u.Amount, 10),
				Exists:    true,
			}); err != nil {
				return err
			}
			continue
		}
		if err := w.store.SetTxoExists(idx, true); err != nil {
			return err
		}
	}
	return nil
}

// IssueAssetNIA mints a Non-Inflatable Asset.
func (w *Wallet) IssueAssetNIA(ctx context.Context, p issuance.NIAParams) (*models.Asset, error) {
	return w.issuer.IssueNIA(ctx, p)
}

// IssueAssetCFA mints a Collectible Fungible Asset.
func (w *Wallet) IssueAssetCFA(ctx context.Context, p issuance.CFAParams) (*models.Asset, error) {
	return w.issuer.IssueCFA(ctx, p)
}

// IssueAssetUDA mints a Unique Digital Asset.
func (w *Wallet) IssueAssetUDA(ctx context.Context, p issuance.UDAParams) (*models.Asset, error) {
	return w.issuer.IssueUDA(ctx, p)
}

// IssueAssetIFA mints an Inflatable Fungible Asset.
func (w *Wallet) IssueAssetIFA(ctx context.Context, p issuance.IFAParams) (*models.Asset, error) {
	return w.issuer.IssueIFA(ctx, p)
}

// BlindReceive produces a blinded-seal invoice.
func (w *Wallet) BlindReceive(ctx context.Context, p receive.Params) (*receive.ReceiveData, error) {
	return w.receiver.BlindReceive(ctx, p)
}

// WitnessReceive produces a witness-address invoice.
func (w *Wallet) WitnessReceive(ctx context.Context, p receive.Params) (*receive.ReceiveData, error) {
	return w.receiver.WitnessReceive(ctx, p)
}

// Send starts an outgoing batch transfer.
func (w *Wallet) Send(ctx context.Context, recipientMap map[string][]send.Recipient, donation bool, feeRate float64, minConfirmations uint32) (*send.Result, error) {
	if err := w.requireOnline(); err != nil {
		return nil, err
	}
	return w.sender.Send(ctx, recipientMap, donation, feeRate, minConfirmations)
}

// Refresh advances pending transfers.
func (w *Wallet) Refresh(ctx context.Context, assetID string, filters []transfer.RefreshFilter) (map[int64]transfer.RefreshedTransfer, error) {
	if err := w.requireOnline(); err != nil {
		return nil, err
	}
	return w.machine.Refresh(ctx, assetID, filters)
}

// FailTransfers flips stuck batches to Failed.
func (w *Wallet) FailTransfers(ctx context.Context, batchTransferIdx *int64, noAssetOnly bool) ([]int64, error) {
	if err := w.requireOnline(); err != nil {
		return nil, err
	}
	return w.machine.FailTransfers(ctx, batchTransferIdx, noAssetOnly)
}

// DeleteTransfers removes Failed batches.
func (w *Wallet) DeleteTransfers(batchTransferIdx *int64, noAssetOnly bool) ([]int64, error) {
	return w.machine.DeleteTransfers(batchTransferIdx, noAssetOnly)
}

// GetAssetBalance computes the asset's tri-value balance from one snapshot.
func (w *Wallet) GetAssetBalance(assetID string) (balance.Balance, error) {
	asset, err := w.store.GetAssetByID(assetID)
	if err != nil {
		return balance.Balance{}, err
	}
	if asset == nil {
		return balance.Balance{}, fmt.Errorf("%w: %s", walleterr.ErrAssetNotFound, assetID)
	}
	snap, err := w.store.GetDBData()
	if err != nil {
		return balance.Balance{}, err
	}
	return balance.Compute(snap, assetID), nil
}

// ListAssets returns the known assets, optionally restricted to one schema.
func (w *Wallet) ListAssets(schema models.Schema) ([]models.Asset, error) {
	return w.store.ListAssets(schema)
}

// Unspent pairs a Txo with its derived allocations for display.
type Unspent struct {
	Txo         models.Txo
	Allocations []ledger.LocalRgbAllocation
}

// ListUnspents returns the wallet's UTXOs with their allocations.
func (w *Wallet) ListUnspents(settledOnly bool) ([]Unspent, error) {
	snap, err := w.store.GetDBData()
	if err != nil {
		return nil, err
	}
	l := ledger.Build(snap, false)
	out := make([]Unspent, 0, len(snap.Txos))
	for _, t := range snap.Txos {
		if t.Spent {
			continue
		}
		allocs := l.ForTxo(t.Idx)
		if settledOnly {
			var settled []ledger.LocalRgbAllocation
			for _, a := range allocs {
				if a.Settled() {
					settled = append(settled, a)
				}
			}
			allocs = settled
		}
		out = append(out, Unspent{Txo: t, Allocations: allocs})
	}
	return out, nil
}

// TransferListEntry is one user-driven transfer leg for display.
type TransferListEntry struct {
	BatchTransferIdx int64
	AssetID          string
	Status           models.BatchTransferStatus
	Incoming         bool
	Amount           string
	RecipientID      *string
	Txid             *string
	CreatedAt        int64
	UpdatedAt        int64
	Expiration       *int64
}

// ListTransfers returns the user-driven transfers of one asset; blanks never
// appear.
func (w *Wallet) ListTransfers(assetID string) ([]TransferListEntry, error) {
	asset, err := w.store.GetAssetByID(assetID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, fmt.Errorf("%w: %s", walleterr.ErrAssetNotFound, assetID)
	}
	snap, err := w.store.GetDBData()
	if err != nil {
		return nil, err
	}
	batches := make(map[int64]models.BatchTransfer, len(snap.BatchTransfers))
	for _, bt := range snap.BatchTransfers {
		batches[bt.Idx] = bt
	}
	var out []TransferListEntry
	for _, at := range snap.AssetTransfers {
		if !at.UserDriven || at.AssetID == nil || *at.AssetID != assetID {
			continue
		}
		bt := batches[at.BatchTransferIdx]
		for _, tr := range snap.Transfers {
			if tr.AssetTransferIdx != at.Idx {
				continue
			}
			out = append(out, TransferListEntry{
				BatchTransferIdx: bt.Idx,
				AssetID:          assetID,
				Status:           bt.Status,
				Incoming:         tr.Incoming,
				Amount:           tr.Amount,
				RecipientID:      tr.RecipientID,
				Txid:             bt.Txid,
				CreatedAt:        bt.CreatedAt,
				UpdatedAt:        bt.UpdatedAt,
				Expiration:       bt.Expiration,
			})
		}
	}
	return out, nil
}

// CreateUtxos tops up the wallet's pool of colorable UTXOs.
func (w *Wallet) CreateUtxos(ctx context.Context, p allocator.CreateUtxosParams) (*allocator.CreateUtxosResult, error) {
	if err := w.requireOnline(); err != nil {
		return nil, err
	}
	res, err := allocator.CreateUtxos(ctx, w.store, w.base, p)
	if err != nil {
		return nil, err
	}
	if err := w.syncUtxos(ctx); err != nil {
		return nil, err
	}
	if err := w.store.TouchOperationTimestamp(strconv.FormatInt(time.Now().UnixNano(), 10)); err != nil {
		return nil, err
	}
	return res, nil
}

// BackupDue reports whether state changed since the last backup.
func (w *Wallet) BackupDue() (bool, error) {
	info, err := w.store.GetBackupInfo()
	if err != nil {
		return false, err
	}
	return backup.IsDue(info.LastOperationTimestamp, info.LastBackupTimestamp), nil
}

// Backup seals a zip of the wallet directory with the given password and
// writes it to path, then stamps the backup timestamp.
func (w *Wallet) Backup(path, password string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", walleterr.ErrFileAlreadyExists, path)
	}
	plain, err := backup.Zip(w.walletDir)
	if err != nil {
		return err
	}
	sealed, err := backup.Seal(password, plain)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, sealed, 0o600); err != nil {
		return fmt.Errorf("%w: write backup: %s", walleterr.ErrIO, err)
	}
	return w.store.TouchBackupTimestamp(strconv.FormatInt(time.Now().UnixNano(), 10))
}
