// Package issuance implements the Issuance Engine: per-schema supply
// validation, distribution of initial allocations across UTXOs picked by the
// UTXO Allocator, and persistence of the issuance as a settled batch transfer.
package issuance

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/rgbwallet/rgbwallet/internal/allocator"
	"github.com/rgbwallet/rgbwallet/internal/config"
	"github.com/rgbwallet/rgbwallet/internal/contractlib"
	"github.com/rgbwallet/rgbwallet/internal/db"
	"github.com/rgbwallet/rgbwallet/internal/ledger"
	"github.com/rgbwallet/rgbwallet/internal/media"
	"github.com/rgbwallet/rgbwallet/internal/models"
	"github.com/rgbwallet/rgbwallet/internal/walleterr"
)

// Engine issues new assets against the wallet's stored UTXO set.
type Engine struct {
	Store     *db.DB
	Contracts contractlib.Library
	Media     *media.Store
	Mainnet   bool

	// MaxAllocationsPerUtxo overrides the default slot cap when > 0.
	MaxAllocationsPerUtxo int

	// Now is the clock, swappable in tests.
	Now func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// NIAParams describes a Non-Inflatable Asset issuance.
type NIAParams struct {
	Ticker    string
	Name      string
	Details   string
	Precision uint8
	Amounts   []uint64
}

// CFAParams describes a Collectible Fungible Asset issuance. CFA assets carry
// no ticker and may reference a media file.
type CFAParams struct {
	Name      string
	Details   string
	Precision uint8
	Amounts   []uint64
	FilePath  string
}

// UDAParams describes a Unique Digital Asset issuance: a single 1-unit token
// with optional primary media and up to MaxAttachments extra attachments.
type UDAParams struct {
	Ticker              string
	Name                string
	Details             string
	Precision           uint8
	MediaFilePath       string
	AttachmentFilePaths []string
}

// IFAParams describes an Inflatable Fungible Asset issuance: initial amounts
// plus optional inflation allowances and replace rights.
type IFAParams struct {
	Ticker           string
	Name             string
	Details          string
	Precision        uint8
	Amounts          []uint64
	InflationAmounts []uint64
	ReplaceRightsNum int
}

// IssueNIA mints a new NIA asset, one fungible allocation per amount, each on
// its own UTXO.
func (e *Engine) IssueNIA(ctx context.Context, p NIAParams) (*models.Asset, error) {
	slog.Info("issuing NIA asset", "ticker", p.Ticker, "name", p.Name, "amounts", p.Amounts)
	if err := validateTicker(p.Ticker); err != nil {
		return nil, err
	}
	if err := validateCommon(p.Name, p.Details, p.Precision); err != nil {
		return nil, err
	}
	supply, err := sumAmounts(p.Amounts)
	if err != nil {
		return nil, err
	}

	assignments := fungibleAssignments(p.Amounts)
	return e.issue(ctx, contractlib.RegisterParams{
		Schema:       models.SchemaNIA,
		Name:         p.Name,
		Ticker:       p.Ticker,
		Details:      p.Details,
		Precision:    p.Precision,
		IssuedSupply: supply,
	}, assignments, nil)
}

// IssueCFA mints a new CFA asset. The optional file path is pinned into the
// media store and becomes the asset's media reference.
func (e *Engine) IssueCFA(ctx context.Context, p CFAParams) (*models.Asset, error) {
	slog.Info("issuing CFA asset", "name", p.Name, "amounts", p.Amounts)
	if err := validateCommon(p.Name, p.Details, p.Precision); err != nil {
		return nil, err
	}
	supply, err := sumAmounts(p.Amounts)
	if err != nil {
		return nil, err
	}

	var mediaIdx *int64
	var mediaDigest string
	if p.FilePath != "" {
		pinned, err := e.Media.Pin(p.FilePath)
		if err != nil {
			return nil, err
		}
		idx, err := e.Store.InsertMedia(models.Media{Digest: pinned.Digest, Mime: pinned.Mime})
		if err != nil {
			return nil, err
		}
		mediaIdx = &idx
		mediaDigest = pinned.Digest
	}

	assignments := fungibleAssignments(p.Amounts)
	asset, err := e.issue(ctx, contractlib.RegisterParams{
		Schema:       models.SchemaCFA,
		Name:         p.Name,
		Details:      p.Details,
		Precision:    p.Precision,
		IssuedSupply: supply,
		MediaDigest:  mediaDigest,
	}, assignments, mediaIdx)
	if err != nil {
		return nil, err
	}
	return asset, nil
}

// IssueUDA mints a new UDA asset carrying a single non-fungible token.
func (e *Engine) IssueUDA(ctx context.Context, p UDAParams) (*models.Asset, error) {
	slog.Info("issuing UDA asset", "ticker", p.Ticker, "name", p.Name)
	if err := validateTicker(p.Ticker); err != nil {
		return nil, err
	}
	if err := validateCommon(p.Name, p.Details, p.Precision); err != nil {
		return nil, err
	}
	if len(p.AttachmentFilePaths) > config.MaxAttachments {
		return nil, fmt.Errorf("%w: no more than %d attachments are supported",
			walleterr.ErrInvalidAttachments, config.MaxAttachments)
	}

	// Pin media before any DB write so a bad path fails the whole issuance
	// without leaving rows behind.
	type pinned struct {
		digest string
		mime   string
	}
	var primary *pinned
	if p.MediaFilePath != "" {
		pin, err := e.Media.Pin(p.MediaFilePath)
		if err != nil {
			return nil, err
		}
		primary = &pinned{digest: pin.Digest, mime: pin.Mime}
	}
	attachments := make([]pinned, 0, len(p.AttachmentFilePaths))
	for _, path := range p.AttachmentFilePaths {
		pin, err := e.Media.Pin(path)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, pinned{digest: pin.Digest, mime: pin.Mime})
	}

	var mediaDigest string
	if primary != nil {
		mediaDigest = primary.digest
	}
	asset, err := e.issue(ctx, contractlib.RegisterParams{
		Schema:       models.SchemaUDA,
		Name:         p.Name,
		Ticker:       p.Ticker,
		Details:      p.Details,
		Precision:    p.Precision,
		IssuedSupply: 1,
		MediaDigest:  mediaDigest,
	}, []models.Assignment{{Kind: models.AssignmentNonFungible}}, nil)
	if err != nil {
		return nil, err
	}

	tokenIdx, err := e.Store.InsertToken(models.Token{
		AssetIdx: asset.Idx,
		Index:    config.UDAFixedIndex,
		Ticker:   p.Ticker,
		Name:     p.Name,
		Details:  p.Details,
	})
	if err != nil {
		return nil, fmt.Errorf("insert UDA token: %w", err)
	}
	if primary != nil {
		mIdx, err := e.Store.InsertMedia(models.Media{Digest: primary.digest, Mime: primary.mime})
		if err != nil {
			return nil, err
		}
		if _, err := e.Store.InsertTokenMedia(models.TokenMedia{TokenIdx: tokenIdx, MediaIdx: mIdx}); err != nil {
			return nil, err
		}
	}
	for i, att := range attachments {
		mIdx, err := e.Store.InsertMedia(models.Media{Digest: att.digest, Mime: att.mime})
		if err != nil {
			return nil, err
		}
		attachmentID := uint8(i)
		if _, err := e.Store.InsertTokenMedia(models.TokenMedia{TokenIdx: tokenIdx, MediaIdx: mIdx, AttachmentID: &attachmentID}); err != nil {
			return nil, err
		}
	}
	return asset, nil
}

// IssueIFA mints a new IFA asset, with inflation allowances and replace
// rights as extra assignments each on their own UTXO. IFA is refused on
// Mainnet.
func (e *Engine) IssueIFA(ctx context.Context, p IFAParams) (*models.Asset, error) {
	slog.Info("issuing IFA asset", "ticker", p.Ticker, "name", p.Name,
		"amounts", p.Amounts, "inflation_amounts", p.InflationAmounts, "replace_rights", p.ReplaceRightsNum)
	if e.Mainnet {
		return nil, walleterr.ErrCannotUseIfaOnMainnet
	}
	if err := validateTicker(p.Ticker); err != nil {
		return nil, err
	}
	if err := validateCommon(p.Name, p.Details, p.Precision); err != nil {
		return nil, err
	}
	supply, err := sumAmounts(p.Amounts)
	if err != nil {
		return nil, err
	}
	var inflation uint64
	for _, amt := range p.InflationAmounts {
		next := inflation + amt
		if next < inflation {
			return nil, walleterr.ErrTooHighInflationAmounts
		}
		inflation = next
	}
	if inflation > ^uint64(0)-supply {
		return nil, walleterr.ErrTooHighInflationAmounts
	}

	assignments := fungibleAssignments(p.Amounts)
	for _, amt := range p.InflationAmounts {
		assignments = append(assignments, models.Assignment{Kind: models.AssignmentInflationRight, Amount: amt})
	}
	for i := 0; i < p.ReplaceRightsNum; i++ {
		assignments = append(assignments, models.Assignment{Kind: models.AssignmentReplaceRight})
	}

	return e.issue(ctx, contractlib.RegisterParams{
		Schema:       models.SchemaIFA,
		Name:         p.Name,
		Ticker:       p.Ticker,
		Details:      p.Details,
		Precision:    p.Precision,
		IssuedSupply: supply,
	}, assignments, nil)
}

// issue runs the schema-independent tail of every issuance: distribute the
// assignments across allocator-picked UTXOs, register the contract, persist
// the Asset row and a settled batch transfer carrying Issue colorings.
func (e *Engine) issue(ctx context.Context, reg contractlib.RegisterParams, assignments []models.Assignment, mediaIdx *int64) (*models.Asset, error) {
	snap, err := e.Store.GetDBData()
	if err != nil {
		return nil, err
	}
	l := ledger.Build(snap, false)

	// One UTXO per assignment, each pick excluding the previous picks.
	exclude := make(map[int64]bool)
	pendingBlinded := make(map[int64]int)
	txoIdxs := make([]int64, 0, len(assignments))
	for range assignments {
		cand, err := allocator.Pick(snap, l, allocator.PickParams{
			Exclude:               exclude,
			PendingBlinded:        pendingBlinded,
			PendingOperation:      false,
			MaxAllocationsPerUtxo: e.MaxAllocationsPerUtxo,
		})
		if err != nil {
			return nil, err
		}
		exclude[cand.TxoIdx] = true
		pendingBlinded[cand.TxoIdx]++
		txoIdxs = append(txoIdxs, cand.TxoIdx)
	}

	now := e.now().Unix()
	reg.Timestamp = now
	contractID, err := e.Contracts.RegisterContract(ctx, reg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", walleterr.ErrFailedIssuance, err)
	}

	asset := models.Asset{
		ID:           contractID,
		Schema:       reg.Schema,
		Name:         reg.Name,
		Ticker:       reg.Ticker,
		Details:      reg.Details,
		MediaIdx:     mediaIdx,
		Precision:    reg.Precision,
		IssuedSupply: strconv.FormatUint(reg.IssuedSupply, 10),
		Timestamp:    now,
		AddedAt:      now,
	}
	assetIdx, err := e.Store.InsertAsset(asset)
	if err != nil {
		return nil, err
	}
	asset.Idx = assetIdx

	batchIdx, err := e.Store.InsertBatchTransfer(models.BatchTransfer{
		Status:    models.BatchTransferStatusSettled,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, err
	}
	atIdx, err := e.Store.InsertAssetTransfer(models.AssetTransfer{
		BatchTransferIdx: batchIdx,
		AssetID:          &contractID,
		UserDriven:       true,
	})
	if err != nil {
		return nil, err
	}
	if _, err := e.Store.InsertTransfer(models.Transfer{
		AssetTransferIdx: atIdx,
		Incoming:         true,
		Amount:           asset.IssuedSupply,
	}); err != nil {
		return nil, err
	}
	for i, a := range assignments {
		if _, err := e.Store.InsertColoring(models.Coloring{
			TxoIdx:           txoIdxs[i],
			AssetTransferIdx: atIdx,
			Type:             models.ColoringIssue,
			Assignment:       a,
		}); err != nil {
			return nil, err
		}
	}

	if err := e.Store.TouchOperationTimestamp(strconv.FormatInt(e.now().UnixNano(), 10)); err != nil {
		return nil, err
	}
	slog.Info("issuance completed", "asset_id", contractID, "schema", reg.Schema, "supply", reg.IssuedSupply)
	return &asset, nil
}

func fungibleAssignments(amounts []uint64) []models.Assignment {
	out := make([]models.Assignment, len(amounts))
	for i, amt := range amounts {
		out[i] = models.Assignment{Kind: models.AssignmentFungible, Amount: amt}
	}
	return out
}

// sumAmounts validates the issuance amount vector: at least one element, sum
// fitting in u64.
func sumAmounts(amounts []uint64) (uint64, error) {
	if len(amounts) == 0 {
		return 0, fmt.Errorf("%w: at least one issuance amount required", walleterr.ErrFailedIssuance)
	}
	var sum uint64
	for _, amt := range amounts {
		next := sum + amt
		if next < sum {
			return 0, walleterr.ErrTooHighIssuanceAmounts
		}
		sum = next
	}
	return sum, nil
}

func validateTicker(ticker string) error {
	if ticker == "" || len(ticker) > 8 {
		return fmt.Errorf("%w: must be 1-8 characters", walleterr.ErrInvalidTicker)
	}
	for _, c := range ticker {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return fmt.Errorf("%w: only uppercase ASCII letters and digits allowed", walleterr.ErrInvalidTicker)
		}
	}
	return nil
}

func validateCommon(name, details string, precision uint8) error {
	if name == "" || len(name) > 256 {
		return fmt.Errorf("%w: must be 1-256 characters", walleterr.ErrInvalidName)
	}
	for _, c := range name {
		if c < 0x20 || c > 0x7e {
			return fmt.Errorf("%w: only printable ASCII allowed", walleterr.ErrInvalidName)
		}
	}
	if precision > config.MaxPrecision {
		return fmt.Errorf("%w: max %d", walleterr.ErrInvalidPrecision, config.MaxPrecision)
	}
	if details != "" {
		for _, c := range details {
			if c > 0x7e {
				return fmt.Errorf("%w: only ASCII allowed", walleterr.ErrInvalidDetails)
			}
		}
	}
	return nil
}
