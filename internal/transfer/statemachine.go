// Package transfer implements the Transfer State Machine: the single
// refresh entry point that polls the relay and the indexer to drive pending
// batch transfers to Settled or Failed, plus the user-driven fail/delete
// operations. Each pass loads one snapshot, walks every pending batch,
// isolates per-batch failures and keeps going.
package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcutil/psbt"

	"github.com/rgbwallet/rgbwallet/internal/basechain"
	"github.com/rgbwallet/rgbwallet/internal/contractlib"
	"github.com/rgbwallet/rgbwallet/internal/db"
	"github.com/rgbwallet/rgbwallet/internal/indexer"
	"github.com/rgbwallet/rgbwallet/internal/invoice"
	"github.com/rgbwallet/rgbwallet/internal/media"
	"github.com/rgbwallet/rgbwallet/internal/models"
	"github.com/rgbwallet/rgbwallet/internal/relay"
	"github.com/rgbwallet/rgbwallet/internal/walleterr"
)

// RcvConsignmentFile is the receiver-side consignment scratch file.
const RcvConsignmentFile = "rcv_compose.rgbc"

// signedPsbtFile mirrors send.SignedPsbtFile without importing it (the send
// engine depends on this package for expiry).
const signedPsbtFile = "signed.psbt"

// TxIndexer is the slice of the indexer surface refresh needs.
type TxIndexer interface {
	TxStatus(ctx context.Context, txid string) (indexer.TxStatus, error)
}

// RefreshFilter selects a subset of pending batches by status and direction.
type RefreshFilter struct {
	Status   models.BatchTransferStatus
	Incoming bool
}

// RefreshedTransfer is the per-batch outcome of one refresh pass.
type RefreshedTransfer struct {
	UpdatedStatus *models.BatchTransferStatus
	Failure       error
}

// StateMachine advances pending batch transfers.
type StateMachine struct {
	Store      *db.DB
	Wallet     basechain.Wallet
	Contracts  contractlib.Library
	Indexer    TxIndexer
	Relays     *relay.Pool
	Media      *media.Store
	HTTPClient *http.Client

	// TransfersDir is the per-wallet scratch area.
	TransfersDir string

	// Now is the clock, swappable in tests.
	Now func() time.Time
}

func (m *StateMachine) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// ExpireOutdated fails every WaitingCounterparty batch whose expiration has
// passed, re-stamping the expiration. Returns the failed batch indexes. It
// runs on every refresh and on send entry.
func ExpireOutdated(store *db.DB, now int64) ([]int64, error) {
	pending, err := store.ListPendingBatchTransfers()
	if err != nil {
		return nil, err
	}
	var expired []int64
	for _, bt := range pending {
		if bt.Status != models.BatchTransferStatusWaitingCounterparty {
			continue
		}
		if bt.Expiration == nil || *bt.Expiration >= now {
			continue
		}
		if err := store.UpdateBatchTransferStatus(bt.Idx, models.BatchTransferStatusFailed, now); err != nil {
			return nil, err
		}
		if err := store.SetBatchTransferExpiration(bt.Idx, now, now); err != nil {
			return nil, err
		}
		slog.Info("batch transfer expired", "batch_transfer_idx", bt.Idx)
		expired = append(expired, bt.Idx)
	}
	return expired, nil
}

// batchView bundles a pending batch with its subordinate rows from one snapshot.
type batchView struct {
	batch          models.BatchTransfer
	assetTransfers []models.AssetTransfer
	transfers      []models.Transfer
}

func (v *batchView) incoming() bool {
	if len(v.transfers) == 0 {
		return false
	}
	for _, t := range v.transfers {
		if !t.Incoming {
			return false
		}
	}
	return true
}

// Refresh walks every pending batch (optionally restricted to one asset and a
// status/direction filter) and applies the step for its state. One
// batch's failure never stops the pass; it lands in the result map instead.
func (m *StateMachine) Refresh(ctx context.Context, assetID string, filters []RefreshFilter) (map[int64]RefreshedTransfer, error) {
	if _, err := ExpireOutdated(m.Store, m.now().Unix()); err != nil {
		return nil, err
	}
	snap, err := m.Store.GetDBData()
	if err != nil {
		return nil, err
	}

	views := m.collectViews(snap)
	results := make(map[int64]RefreshedTransfer)
	for _, v := range views {
		if !v.batch.Status.Pending() {
			continue
		}
		if assetID != "" && !v.touchesAsset(assetID) {
			continue
		}
		if len(filters) > 0 && !matchesFilter(v, filters) {
			continue
		}

		updated, err := m.advance(ctx, v)
		if err != nil {
			slog.Error("refresh step failed", "batch_transfer_idx", v.batch.Idx, "error", err)
			results[v.batch.Idx] = RefreshedTransfer{Failure: err}
			continue
		}
		results[v.batch.Idx] = RefreshedTransfer{UpdatedStatus: updated}
	}
	return results, nil
}

func (v *batchView) touchesAsset(assetID string) bool {
	for _, at := range v.assetTransfers {
		if at.AssetID != nil && *at.AssetID == assetID {
			return true
		}
	}
	return false
}

func matchesFilter(v *batchView, filters []RefreshFilter) bool {
	for _, f := range filters {
		if v.batch.Status == f.Status && v.incoming() == f.Incoming {
			return true
		}
	}
	return false
}

func (m *StateMachine) collectViews(snap *db.Snapshot) []*batchView {
	atByBatch := make(map[int64][]models.AssetTransfer)
	trByAT := make(map[int64][]models.Transfer)
	for _, at := range snap.AssetTransfers {
		atByBatch[at.BatchTransferIdx] = append(atByBatch[at.BatchTransferIdx], at)
	}
	for _, tr := range snap.Transfers {
		trByAT[tr.AssetTransferIdx] = append(trByAT[tr.AssetTransferIdx], tr)
	}
	views := make([]*batchView, 0, len(snap.BatchTransfers))
	for _, bt := range snap.BatchTransfers {
		v := &batchView{batch: bt, assetTransfers: atByBatch[bt.Idx]}
		for _, at := range v.assetTransfers {
			v.transfers = append(v.transfers, trByAT[at.Idx]...)
		}
		views = append(views, v)
	}
	return views
}

func (m *StateMachine) advance(ctx context.Context, v *batchView) (*models.BatchTransferStatus, error) {
	switch {
	case v.batch.Status == models.BatchTransferStatusWaitingCounterparty && v.incoming():
		return m.waitConsignment(ctx, v)
	case v.batch.Status == models.BatchTransferStatusWaitingCounterparty:
		return m.waitAck(ctx, v)
	default:
		return m.waitConfirmations(ctx, v)
	}
}

// relayClientFor registers an rpc:// endpoint with the pool and returns its client.
func (m *StateMachine) relayClientFor(endpoint string) (*relay.Client, error) {
	httpURL, err := invoice.EndpointHTTPURL(endpoint)
	if err != nil {
		return nil, err
	}
	if err := m.Relays.Add(m.HTTPClient, models.TransportEndpoint{TransportType: models.TransportJSONRPC, Endpoint: httpURL}); err != nil {
		return nil, err
	}
	return m.Relays.Client(httpURL), nil
}

// waitConsignment advances an incoming WaitingCounterparty batch.
func (m *StateMachine) waitConsignment(ctx context.Context, v *batchView) (*models.BatchTransferStatus, error) {
	if len(v.transfers) != 1 || len(v.assetTransfers) != 1 {
		return nil, fmt.Errorf("%w: incoming batch %d with %d transfers", walleterr.ErrInternal, v.batch.Idx, len(v.transfers))
	}
	tr := v.transfers[0]
	at := v.assetTransfers[0]
	if tr.RecipientID == nil || tr.RecipientType == nil {
		return nil, fmt.Errorf("%w: incoming transfer %d without recipient", walleterr.ErrInternal, tr.Idx)
	}
	recipientID := *tr.RecipientID

	ttes, err := m.Store.ListTransferTransportEndpoints(tr.Idx)
	if err != nil {
		return nil, err
	}
	var payload *relay.ConsignmentPayload
	var client *relay.Client
	for _, tte := range ttes {
		if tte.Used {
			continue
		}
		ep, err := m.Store.GetTransportEndpoint(tte.TransportEndpointIdx)
		if err != nil {
			return nil, err
		}
		c, err := m.relayClientFor(ep.Endpoint)
		if err != nil {
			return nil, err
		}
		got, err := c.GetConsignment(ctx, recipientID)
		if errors.Is(err, walleterr.ErrNoConsignment) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := m.Store.MarkTransferTransportEndpointUsed(tte.Idx); err != nil {
			return nil, err
		}
		payload, client = got, c
		break
	}
	if payload == nil {
		return nil, nil
	}

	nack := func(reason string) (*models.BatchTransferStatus, error) {
		slog.Warn("nacking incoming transfer", "recipient_id", recipientID, "reason", reason)
		now := m.now().Unix()
		if err := m.Store.UpdateBatchTransferStatus(v.batch.Idx, models.BatchTransferStatusFailed, now); err != nil {
			return nil, err
		}
		if err := client.PostNack(ctx, recipientID); err != nil {
			slog.Error("nack post failed", "recipient_id", recipientID, "error", err)
		}
		failed := models.BatchTransferStatusFailed
		return &failed, nil
	}

	// Consignment file hits disk before any DB row references it.
	consignmentPath := filepath.Join(m.TransfersDir, recipientID, RcvConsignmentFile)
	if err := m.Contracts.SaveConsignment(consignmentPath, payload.Consignment); err != nil {
		return nil, err
	}
	parsed, err := m.Contracts.ValidateConsignment(ctx, payload.Consignment)
	if err != nil {
		return nack(fmt.Sprintf("invalid consignment: %v", err))
	}
	if !parsed.Validity.Acceptable() {
		return nack(fmt.Sprintf("validity %s", parsed.Validity))
	}
	if parsed.CloseMethod != contractlib.CloseOpretFirst {
		return nack(fmt.Sprintf("unsupported close method %s", parsed.CloseMethod))
	}

	if at.AssetID == nil {
		if err := m.adoptContract(ctx, parsed, client); err != nil {
			return nack(fmt.Sprintf("adopt contract: %v", err))
		}
		if err := m.Store.UpdateAssetTransferAssetID(at.Idx, parsed.ContractID); err != nil {
			return nil, err
		}
	} else if *at.AssetID != parsed.ContractID {
		return nack(fmt.Sprintf("asset mismatch: expected %s, consignment carries %s", *at.AssetID, parsed.ContractID))
	}

	sealKey := recipientID
	if *tr.RecipientType == models.RecipientTypeWitness {
		if payload.Vout == nil {
			return nack("witness transfer without vout")
		}
		sealKey = fmt.Sprintf("%s:%d", payload.Txid, *payload.Vout)
	}
	assignment, ok := parsed.ReceivedAt[sealKey]
	amount := assignment.Amount0()
	if !ok || amount == 0 {
		return nack("amount == 0")
	}

	now := m.now().Unix()
	if err := m.Store.SetBatchTransferTxid(v.batch.Idx, payload.Txid, now); err != nil {
		return nil, err
	}
	if err := m.Store.UpdateTransferAmount(tr.Idx, strconv.FormatUint(amount, 10)); err != nil {
		return nil, err
	}
	switch *tr.RecipientType {
	case models.RecipientTypeBlind:
		if tr.BeneficiaryTxoIdx == nil {
			return nil, fmt.Errorf("%w: blind transfer %d without beneficiary txo", walleterr.ErrInternal, tr.Idx)
		}
		if _, err := m.Store.InsertColoring(models.Coloring{
			TxoIdx:           *tr.BeneficiaryTxoIdx,
			AssetTransferIdx: at.Idx,
			Type:             models.ColoringReceive,
			Assignment:       assignment,
		}); err != nil {
			return nil, err
		}
	case models.RecipientTypeWitness:
		// The Receive coloring waits for the tx to confirm and the UTXO to be
		// observed; only the revealed vout is recorded now.
		if err := m.Store.UpdateTransferWitnessVout(tr.Idx, *payload.Vout); err != nil {
			return nil, err
		}
	}
	if err := m.Store.UpdateBatchTransferStatus(v.batch.Idx, models.BatchTransferStatusWaitingConfirmations, now); err != nil {
		return nil, err
	}

	if err := client.PostAck(ctx, recipientID); err != nil {
		return nil, fmt.Errorf("ack post after accept: %w", err)
	}
	slog.Info("consignment accepted", "recipient_id", recipientID, "txid", payload.Txid, "amount", amount)
	updated := models.BatchTransferStatusWaitingConfirmations
	return &updated, nil
}

// adoptContract imports an asset this wallet never issued, together with the
// media bytes its consignment references, digest-verified.
func (m *StateMachine) adoptContract(ctx context.Context, parsed *contractlib.ParsedConsignment, client *relay.Client) error {
	existing, err := m.Store.GetAssetByID(parsed.ContractID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	params, err := m.Contracts.ImportContract(ctx, parsed.ContractID)
	if err != nil {
		return err
	}

	var mediaIdx *int64
	for _, digest := range parsed.AttachmentDigests {
		if !m.Media.Exists(digest) {
			data, err := client.GetMedia(ctx, digest)
			if err != nil {
				return fmt.Errorf("fetch media %s: %w", digest, err)
			}
			if err := m.Media.Write(digest, data); err != nil {
				return err
			}
		}
		data, err := m.Media.Read(digest)
		if err != nil {
			return err
		}
		idx, err := m.Store.InsertMedia(models.Media{Digest: digest, Mime: http.DetectContentType(data)})
		if err != nil {
			return err
		}
		if digest == params.MediaDigest {
			mediaIdx = &idx
		}
	}

	now := m.now().Unix()
	if _, err := m.Store.InsertAsset(models.Asset{
		ID:           parsed.ContractID,
		Schema:       params.Schema,
		Name:         params.Name,
		Ticker:       params.Ticker,
		Details:      params.Details,
		MediaIdx:     mediaIdx,
		Precision:    params.Precision,
		IssuedSupply: strconv.FormatUint(params.IssuedSupply, 10),
		Timestamp:    params.Timestamp,
		AddedAt:      now,
	}); err != nil {
		return err
	}
	slog.Info("imported contract from consignment", "asset_id", parsed.ContractID, "schema", params.Schema)
	return nil
}

// waitAck advances an outgoing WaitingCounterparty batch.
func (m *StateMachine) waitAck(ctx context.Context, v *batchView) (*models.BatchTransferStatus, error) {
	now := m.now().Unix()
	anyNack := false
	allAcked := true
	for _, tr := range v.transfers {
		if tr.Ack != nil {
			if !*tr.Ack {
				anyNack = true
			}
			continue
		}
		if tr.RecipientID == nil {
			continue
		}
		client, err := m.usedEndpointClient(tr.Idx)
		if err != nil {
			return nil, err
		}
		an, err := client.GetAckNack(ctx, *tr.RecipientID)
		if err != nil {
			return nil, err
		}
		switch {
		case an.Nack != nil && *an.Nack:
			if err := m.Store.UpdateTransferAck(tr.Idx, false); err != nil {
				return nil, err
			}
			anyNack = true
		case an.Ack != nil && *an.Ack:
			if err := m.Store.UpdateTransferAck(tr.Idx, true); err != nil {
				return nil, err
			}
		default:
			allAcked = false
		}
	}

	if anyNack {
		if err := m.Store.UpdateBatchTransferStatus(v.batch.Idx, models.BatchTransferStatusFailed, now); err != nil {
			return nil, err
		}
		slog.Info("batch nacked by counterparty", "batch_transfer_idx", v.batch.Idx)
		failed := models.BatchTransferStatusFailed
		return &failed, nil
	}
	if !allAcked {
		return nil, nil
	}

	// All acks in: the batch commits to WaitingConfirmations before the
	// broadcast side effect; a failed broadcast rolls it to Failed with the
	// inputs still unspent.
	if v.batch.Txid == nil {
		return nil, fmt.Errorf("%w: outgoing batch %d without txid", walleterr.ErrInternal, v.batch.Idx)
	}
	txid := *v.batch.Txid
	raw, err := os.ReadFile(filepath.Join(m.TransfersDir, txid, signedPsbtFile))
	if err != nil {
		return nil, fmt.Errorf("%w: read signed psbt: %s", walleterr.ErrIO, err)
	}
	pkt, err := psbt.NewFromRawBytes(bytes.NewReader(raw), false)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", walleterr.ErrInvalidPsbt, err)
	}
	if err := m.Store.UpdateBatchTransferStatus(v.batch.Idx, models.BatchTransferStatusWaitingConfirmations, now); err != nil {
		return nil, err
	}
	if _, err := m.Wallet.Broadcast(ctx, pkt); err != nil {
		if failErr := m.Store.UpdateBatchTransferStatus(v.batch.Idx, models.BatchTransferStatusFailed, now); failErr != nil {
			slog.Error("failing batch after broadcast error", "batch_transfer_idx", v.batch.Idx, "error", failErr)
		}
		return nil, fmt.Errorf("%w: %s", walleterr.ErrFailedBroadcast, err)
	}
	if err := m.markInputsSpent(v); err != nil {
		return nil, err
	}
	if _, err := m.Store.InsertWalletTransaction(models.WalletTransaction{Txid: txid, Label: models.WalletTxRgbSend}); err != nil {
		return nil, err
	}
	slog.Info("anchoring tx broadcast after all acks", "batch_transfer_idx", v.batch.Idx, "txid", txid)
	updated := models.BatchTransferStatusWaitingConfirmations
	return &updated, nil
}

func (m *StateMachine) usedEndpointClient(transferIdx int64) (*relay.Client, error) {
	ttes, err := m.Store.ListTransferTransportEndpoints(transferIdx)
	if err != nil {
		return nil, err
	}
	for _, tte := range ttes {
		if !tte.Used {
			continue
		}
		ep, err := m.Store.GetTransportEndpoint(tte.TransportEndpointIdx)
		if err != nil {
			return nil, err
		}
		return m.relayClientFor(ep.Endpoint)
	}
	return nil, fmt.Errorf("%w: transfer %d has no used endpoint", walleterr.ErrNoValidTransportEndpoint, transferIdx)
}

func (m *StateMachine) markInputsSpent(v *batchView) error {
	seen := make(map[int64]bool)
	for _, at := range v.assetTransfers {
		colorings, err := m.Store.ListColoringsByAssetTransfer(at.Idx)
		if err != nil {
			return err
		}
		for _, c := range colorings {
			if c.Type != models.ColoringInput || seen[c.TxoIdx] {
				continue
			}
			seen[c.TxoIdx] = true
			if err := m.Store.MarkTxoSpent(c.TxoIdx); err != nil {
				return err
			}
		}
	}
	return nil
}

// waitConfirmations settles a confirmed batch, in either direction.
func (m *StateMachine) waitConfirmations(ctx context.Context, v *batchView) (*models.BatchTransferStatus, error) {
	if v.batch.Txid == nil {
		return nil, fmt.Errorf("%w: batch %d waiting confirmations without txid", walleterr.ErrInternal, v.batch.Idx)
	}
	txid := *v.batch.Txid
	st, err := m.Indexer.TxStatus(ctx, txid)
	if errors.Is(err, indexer.ErrTxNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", walleterr.ErrIndexer, err)
	}
	if !st.Exists || st.Confirmations < v.batch.MinConfirmations {
		return nil, nil
	}

	now := m.now().Unix()
	if v.incoming() {
		tr := v.transfers[0]
		at := v.assetTransfers[0]
		if tr.RecipientType != nil && *tr.RecipientType == models.RecipientTypeWitness {
			if err := m.settleWitnessReceive(ctx, v, tr, at, txid); err != nil {
				return nil, err
			}
		}
		if at.AssetID == nil {
			return nil, fmt.Errorf("%w: settling incoming batch %d without asset id", walleterr.ErrInternal, v.batch.Idx)
		}
		if tr.RecipientID != nil {
			data, err := m.Contracts.LoadConsignment(filepath.Join(m.TransfersDir, *tr.RecipientID, RcvConsignmentFile))
			if err != nil {
				return nil, err
			}
			validity, err := m.Contracts.AcceptTransfer(ctx, *at.AssetID, data)
			if err != nil {
				return nil, err
			}
			if validity != contractlib.ValidityValid {
				return nil, fmt.Errorf("%w: accept_transfer returned %s", walleterr.ErrInternal, validity)
			}
		}
	} else {
		// The anchoring tx confirmed: the pre-allocated change UTXO is real now.
		snap, err := m.Store.GetDBData()
		if err != nil {
			return nil, err
		}
		for _, t := range snap.Txos {
			if t.Txid == txid && !t.Exists {
				if err := m.Store.SetTxoExists(t.Idx, true); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := m.Store.UpdateBatchTransferStatus(v.batch.Idx, models.BatchTransferStatusSettled, now); err != nil {
		return nil, err
	}
	slog.Info("batch settled", "batch_transfer_idx", v.batch.Idx, "txid", txid)
	settled := models.BatchTransferStatusSettled
	return &settled, nil
}

// settleWitnessReceive materializes the witness-receive UTXO once the
// anchoring tx confirmed: sync, insert the Txo, write the deferred Receive
// coloring and drop the pending witness script row.
func (m *StateMachine) settleWitnessReceive(ctx context.Context, v *batchView, tr models.Transfer, at models.AssetTransfer, txid string) error {
	if tr.WitnessVout == nil {
		return fmt.Errorf("%w: witness transfer %d without revealed vout", walleterr.ErrInternal, tr.Idx)
	}
	vout := *tr.WitnessVout
	if err := m.Wallet.Sync(ctx); err != nil {
		return fmt.Errorf("%w: %s", walleterr.ErrFailedBdkSync, err)
	}

	txoIdx, err := m.Store.GetTxoIdxByOutpoint(txid, vout)
	if err != nil {
		var sats uint64
		unspents, listErr := m.Wallet.ListUnspents(ctx)
		if listErr != nil {
			return listErr
		}
		for _, u := range unspents {
			if u.Txid == txid && u.Vout == vout {
				sats = u.Amount
				break
			}
		}
		txoIdx, err = m.Store.InsertTxo(models.Txo{
			Txid:      txid,
			Vout:      vout,
			BtcAmount: strconv.FormatUint(sats, 10),
			Exists:    true,
		})
		if err != nil {
			return err
		}
	} else {
		if err := m.Store.SetTxoExists(txoIdx, true); err != nil {
			return err
		}
		if err := m.Store.SetTxoPendingWitness(txoIdx, false); err != nil {
			return err
		}
	}

	var amount uint64
	fmt.Sscanf(tr.Amount, "%d", &amount)
	kind := models.AssignmentFungible
	if tr.RequestedAssignment != nil && tr.RequestedAssignment.Kind != models.AssignmentAny {
		kind = tr.RequestedAssignment.Kind
	}
	assignment := models.Assignment{Kind: kind, Amount: amount}
	if kind == models.AssignmentNonFungible || kind == models.AssignmentReplaceRight {
		assignment.Amount = 0
	}
	if _, err := m.Store.InsertColoring(models.Coloring{
		TxoIdx:           txoIdx,
		AssetTransferIdx: at.Idx,
		Type:             models.ColoringReceive,
		Assignment:       assignment,
	}); err != nil {
		return err
	}

	scripts, err := m.Store.ListPendingWitnessScripts()
	if err != nil {
		return err
	}
	for _, s := range scripts {
		if s.TransferIdx == tr.Idx {
			if err := m.Store.DeletePendingWitnessScript(s.Idx); err != nil {
				return err
			}
		}
	}
	return nil
}
