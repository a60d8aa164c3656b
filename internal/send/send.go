// Package send implements the Send Engine: building the anchoring
// base-chain PSBT over selector-chosen inputs, attaching contract transitions
// for the sent assets plus blank transitions for co-resident ones, committing
// them into the PSBT, shipping recipient consignments through the relay and
// persisting the pending batch transfer.
package send

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/rgbwallet/rgbwallet/internal/basechain"
	"github.com/rgbwallet/rgbwallet/internal/config"
	"github.com/rgbwallet/rgbwallet/internal/contractlib"
	"github.com/rgbwallet/rgbwallet/internal/db"
	"github.com/rgbwallet/rgbwallet/internal/invoice"
	"github.com/rgbwallet/rgbwallet/internal/ledger"
	"github.com/rgbwallet/rgbwallet/internal/models"
	"github.com/rgbwallet/rgbwallet/internal/relay"
	"github.com/rgbwallet/rgbwallet/internal/selector"
	"github.com/rgbwallet/rgbwallet/internal/transfer"
	"github.com/rgbwallet/rgbwallet/internal/walleterr"
)

// SignedPsbtFile is the scratch file holding the signed-but-unbroadcast PSBT
// until every recipient has acked.
const SignedPsbtFile = "signed.psbt"

// ConsignmentOutFile is the per-asset outgoing consignment scratch file.
const ConsignmentOutFile = "consignment_out"

// WitnessData carries the base-chain output parameters for a witness recipient.
type WitnessData struct {
	AmountSat uint64
}

// Recipient is one beneficiary of a send. A nil WitnessData marks a blinded
// recipient (the recipient id is a concealed seal); otherwise the recipient id
// is a script address paid by the anchoring tx itself.
type Recipient struct {
	RecipientID        string
	WitnessData        *WitnessData
	Assignment         models.Assignment
	TransportEndpoints []string
}

// Result reports a prepared (or, for donations, broadcast) send.
type Result struct {
	Txid             string
	BatchTransferIdx int64
}

// Engine drives outgoing transfers up to (but excluding, unless donating)
// broadcast.
type Engine struct {
	Store      *db.DB
	Wallet     basechain.Wallet
	Contracts  contractlib.Library
	Relays     *relay.Pool
	HTTPClient *http.Client

	// TransfersDir is the per-wallet scratch area for consignments and PSBTs.
	TransfersDir string

	// MediaDir is the wallet's content-addressed media directory, read when
	// uploading attachment bytes to the relay.
	MediaDir string

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

// assetPlan is the per-asset working state assembled before anything is
// persisted.
type assetPlan struct {
	assetID    string
	recipients []Recipient
	sentAmount uint64
	spend      *selector.AssetSpend
}

// Send processes a whole recipient map. With donation the anchoring tx
// broadcasts immediately; otherwise broadcast waits for every recipient's ack.
func (e *Engine) Send(ctx context.Context, recipientMap map[string][]Recipient, donation bool, feeRate float64, minConfirmations uint32) (*Result, error) {
	slog.Info("sending", "assets", len(recipientMap), "donation", donation, "fee_rate", feeRate)
	if feeRate < config.MinFeeRate || feeRate > config.MaxFeeRate {
		return nil, fmt.Errorf("%w: %v outside [%v, %v]", walleterr.ErrInvalidFeeRate, feeRate, config.MinFeeRate, config.MaxFeeRate)
	}
	if len(recipientMap) == 0 {
		return nil, fmt.Errorf("%w: empty recipient map", walleterr.ErrInvalidRecipientID)
	}
	if minConfirmations == 0 {
		minConfirmations = 1
	}

	// Deterministic asset order keeps output indexes and scratch layout stable.
	assetIDs := make([]string, 0, len(recipientMap))
	for assetID := range recipientMap {
		assetIDs = append(assetIDs, assetID)
	}
	sort.Strings(assetIDs)

	chosenEndpoint, err := e.validateRecipients(ctx, assetIDs, recipientMap)
	if err != nil {
		return nil, err
	}

	if _, err := transfer.ExpireOutdated(e.Store, e.now().Unix()); err != nil {
		return nil, err
	}

	snap, err := e.Store.GetDBData()
	if err != nil {
		return nil, err
	}
	for _, tr := range snap.Transfers {
		if tr.RecipientID == nil {
			continue
		}
		if batchStatusOf(snap, tr.AssetTransferIdx) == models.BatchTransferStatusFailed {
			continue
		}
		for _, assetID := range assetIDs {
			for _, r := range recipientMap[assetID] {
				if r.RecipientID == *tr.RecipientID {
					return nil, fmt.Errorf("%w: %s", walleterr.ErrRecipientIDAlreadyUsed, r.RecipientID)
				}
			}
		}
	}

	// Input selection per asset; the union of all chosen inputs anchors the
	// whole batch.
	plans := make([]*assetPlan, 0, len(assetIDs))
	unionInputs := make(map[int64]models.Txo)
	txoByIdx := make(map[int64]models.Txo, len(snap.Txos))
	for _, t := range snap.Txos {
		txoByIdx[t.Idx] = t
	}
	for _, assetID := range assetIDs {
		asset, err := e.Store.GetAssetByID(assetID)
		if err != nil {
			return nil, err
		}
		if asset == nil {
			return nil, fmt.Errorf("%w: %s", walleterr.ErrAssetNotFound, assetID)
		}
		var sent uint64
		for _, r := range recipientMap[assetID] {
			switch r.Assignment.Kind {
			case models.AssignmentFungible:
				if r.Assignment.Amount == 0 {
					return nil, fmt.Errorf("%w: zero amount for %s", walleterr.ErrInvalidAssignment, r.RecipientID)
				}
				sent += r.Assignment.Amount
			case models.AssignmentNonFungible:
				sent++
			default:
				return nil, fmt.Errorf("%w: cannot send %s", walleterr.ErrInvalidAssignment, r.Assignment.Kind)
			}
		}
		spend, err := selector.Select(snap, assetID, sent, nil)
		if err != nil {
			return nil, err
		}
		for _, in := range spend.Inputs {
			unionInputs[in.TxoIdx] = txoByIdx[in.TxoIdx]
		}
		plans = append(plans, &assetPlan{assetID: assetID, recipients: recipientMap[assetID], sentAmount: sent, spend: spend})
	}

	// Spending a UTXO spends every allocation on it: widen each plan's input
	// total to the union, and collect the co-resident assets that need blank
	// transitions.
	l := ledger.Build(snap, false)
	fungibleOnUnion := make(map[string]uint64)
	rightsOnUnion := make(map[string][]models.Assignment)
	perInputFungible := make(map[string]map[int64]uint64)
	perInputRights := make(map[string]map[int64][]models.Assignment)
	for txoIdx := range unionInputs {
		for _, a := range l.ForTxo(txoIdx) {
			if a.AssetID == nil || !a.Settled() {
				continue
			}
			assetID := *a.AssetID
			switch a.Assignment.Kind {
			case models.AssignmentFungible, models.AssignmentNonFungible:
				fungibleOnUnion[assetID] += a.Assignment.OwnedAmount()
				if perInputFungible[assetID] == nil {
					perInputFungible[assetID] = make(map[int64]uint64)
				}
				perInputFungible[assetID][txoIdx] += a.Assignment.OwnedAmount()
			case models.AssignmentInflationRight, models.AssignmentReplaceRight:
				rightsOnUnion[assetID] = append(rightsOnUnion[assetID], a.Assignment)
				if perInputRights[assetID] == nil {
					perInputRights[assetID] = make(map[int64][]models.Assignment)
				}
				perInputRights[assetID][txoIdx] = append(perInputRights[assetID][txoIdx], a.Assignment)
			}
		}
	}
	sentSet := make(map[string]bool, len(plans))
	for _, p := range plans {
		p.spend.Change = fungibleOnUnion[p.assetID] - p.sentAmount
		sentSet[p.assetID] = true
	}
	var blankAssets []string
	for assetID := range fungibleOnUnion {
		if !sentSet[assetID] {
			blankAssets = append(blankAssets, assetID)
		}
	}
	for assetID := range rightsOnUnion {
		if !sentSet[assetID] && fungibleOnUnion[assetID] == 0 {
			blankAssets = append(blankAssets, assetID)
		}
	}
	sort.Strings(blankAssets)

	// Base-chain PSBT: witness-recipient outputs first (their position is the
	// seal vout), then the commitment OP_RETURN, with the builder appending
	// the drain-to-wallet change output last.
	var outputs []basechain.TxOutput
	witnessVout := make(map[string]uint32)
	for _, p := range plans {
		for _, r := range p.recipients {
			if r.WitnessData == nil {
				continue
			}
			amount := r.WitnessData.AmountSat
			if amount == 0 {
				amount = config.DefaultCreateUtxosSize
			}
			witnessVout[r.RecipientID] = uint32(len(outputs))
			outputs = append(outputs, basechain.TxOutput{Address: r.RecipientID, Amount: amount})
		}
	}
	inputs := make([]basechain.Unspent, 0, len(unionInputs))
	for _, t := range unionInputs {
		sats, err := strconv.ParseUint(t.BtcAmount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: txo %d amount %q", walleterr.ErrInternal, t.Idx, t.BtcAmount)
		}
		inputs = append(inputs, basechain.Unspent{Txid: t.Txid, Vout: t.Vout, Amount: sats})
	}

	// Size the tx without the commitment output first, then re-prepare once
	// with the OP_RETURN added and the fee rate bumped to cover its vbytes.
	probe, err := e.Wallet.Build(ctx, basechain.BuildParams{
		ManuallySelectedInputs: inputs,
		Outputs:                outputs,
		FeeRate:                feeRate,
		DrainRemainder:         true,
	})
	if err != nil {
		return nil, err
	}
	adjustedFeeRate := feeRate * float64(probe.EstVsize+config.OpretVbytes) / float64(probe.EstVsize)
	if adjustedFeeRate > config.MaxFeeRate {
		adjustedFeeRate = config.MaxFeeRate
	}
	outputs = append(outputs, basechain.TxOutput{OpReturn: make([]byte, 32)})
	built, err := e.Wallet.Build(ctx, basechain.BuildParams{
		ManuallySelectedInputs: inputs,
		Outputs:                outputs,
		FeeRate:                adjustedFeeRate,
		DrainRemainder:         true,
	})
	if err != nil {
		return nil, err
	}
	if built.ChangeVout == nil {
		return nil, fmt.Errorf("%w: builder produced no change output", walleterr.ErrInternal)
	}
	changeVout := uint32(*built.ChangeVout)
	txid := built.Packet.UnsignedTx.TxHash().String()
	changeSats := uint64(built.Packet.UnsignedTx.TxOut[changeVout].Value)

	// Contract transitions: one per sent asset, one blank per co-resident
	// asset, all change/forwarded state sealed on the change vout.
	changeSeal := contractlib.Seal{Txid: txid, Vout: changeVout}
	transitionInputs := make([]contractlib.TransitionInput, 0, len(unionInputs))
	for _, t := range unionInputs {
		transitionInputs = append(transitionInputs, contractlib.TransitionInput{Txid: t.Txid, Vout: t.Vout})
	}

	var transitions [][]byte
	consignmentAssignments := make(map[string]map[string]models.Assignment, len(plans))
	for _, p := range plans {
		specs := make([]contractlib.AssignmentSpec, 0, len(p.recipients)+1)
		sealed := make(map[string]models.Assignment, len(p.recipients))
		for _, r := range p.recipients {
			seal := contractlib.Seal{Concealed: r.RecipientID, Blind: true}
			sealKey := r.RecipientID
			if r.WitnessData != nil {
				vout := witnessVout[r.RecipientID]
				seal = contractlib.Seal{Txid: txid, Vout: vout}
				sealKey = fmt.Sprintf("%s:%d", txid, vout)
			}
			specs = append(specs, contractlib.AssignmentSpec{Seal: seal, Assignment: r.Assignment})
			sealed[sealKey] = r.Assignment
		}
		if p.spend.Change > 0 {
			specs = append(specs, contractlib.AssignmentSpec{Seal: changeSeal, Assignment: models.Assignment{Kind: models.AssignmentFungible, Amount: p.spend.Change}})
		}
		for _, right := range rightsOnUnion[p.assetID] {
			specs = append(specs, contractlib.AssignmentSpec{Seal: changeSeal, Assignment: right})
		}
		raw, err := e.Contracts.BuildTransition(ctx, contractlib.Transition{
			AssetID:     p.assetID,
			Inputs:      transitionInputs,
			Assignments: specs,
		})
		if err != nil {
			return nil, err
		}
		transitions = append(transitions, raw)
		consignmentAssignments[p.assetID] = sealed
	}
	for _, assetID := range blankAssets {
		specs := []contractlib.AssignmentSpec{}
		if total := fungibleOnUnion[assetID]; total > 0 {
			specs = append(specs, contractlib.AssignmentSpec{Seal: changeSeal, Assignment: models.Assignment{Kind: models.AssignmentFungible, Amount: total}})
		}
		for _, right := range rightsOnUnion[assetID] {
			specs = append(specs, contractlib.AssignmentSpec{Seal: changeSeal, Assignment: right})
		}
		raw, err := e.Contracts.BuildTransition(ctx, contractlib.Transition{
			AssetID:     assetID,
			Inputs:      transitionInputs,
			Assignments: specs,
			Blank:       true,
		})
		if err != nil {
			return nil, err
		}
		transitions = append(transitions, raw)
	}

	var psbtBuf bytes.Buffer
	if err := built.Packet.Serialize(&psbtBuf); err != nil {
		return nil, fmt.Errorf("%w: serialize psbt: %s", walleterr.ErrInvalidPsbt, err)
	}
	if _, err := e.Contracts.EmbedCommitment(ctx, psbtBuf.Bytes(), transitions); err != nil {
		return nil, err
	}

	// Consignments land on disk before any DB row points at them.
	consignments := make(map[string][]byte, len(plans))
	for _, p := range plans {
		digests, err := e.attachmentDigests(p.assetID)
		if err != nil {
			return nil, err
		}
		data, err := e.Contracts.ComposeConsignment(ctx, p.assetID, txid, consignmentAssignments[p.assetID], digests)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(e.TransfersDir, txid, p.assetID, ConsignmentOutFile)
		if err := e.Contracts.SaveConsignment(path, data); err != nil {
			return nil, err
		}
		consignments[p.assetID] = data
	}

	if err := e.Wallet.Sign(ctx, built.Packet); err != nil {
		return nil, err
	}
	var signedBuf bytes.Buffer
	if err := built.Packet.Serialize(&signedBuf); err != nil {
		return nil, fmt.Errorf("%w: serialize signed psbt: %s", walleterr.ErrInvalidPsbt, err)
	}
	if err := os.WriteFile(filepath.Join(e.TransfersDir, txid, SignedPsbtFile), signedBuf.Bytes(), 0o600); err != nil {
		return nil, fmt.Errorf("%w: write signed psbt: %s", walleterr.ErrIO, err)
	}

	batchIdx, err := e.persist(plans, blankAssets, fungibleOnUnion, rightsOnUnion, perInputFungible, perInputRights,
		unionInputs, txid, changeVout, changeSats, donation, minConfirmations, chosenEndpoint)
	if err != nil {
		return nil, err
	}

	// Side effects only after the batch is committed.
	for _, p := range plans {
		for _, r := range p.recipients {
			client := e.Relays.Client(chosenEndpoint[r.RecipientID])
			payload := relay.ConsignmentPayload{RecipientID: r.RecipientID, Consignment: consignments[p.assetID], Txid: txid}
			if r.WitnessData != nil {
				vout := witnessVout[r.RecipientID]
				payload.Vout = &vout
			}
			if err := client.PostConsignment(ctx, payload); err != nil {
				if failErr := e.Store.UpdateBatchTransferStatus(batchIdx, models.BatchTransferStatusFailed, e.now().Unix()); failErr != nil {
					slog.Error("failing batch after consignment post error", "batch_transfer_idx", batchIdx, "error", failErr)
				}
				return nil, err
			}
		}
		digests, _ := e.attachmentDigests(p.assetID)
		for _, digest := range digests {
			if err := e.postMedia(ctx, digest, p.recipients, chosenEndpoint); err != nil {
				slog.Warn("media upload failed", "digest", digest, "error", err)
			}
		}
	}

	if donation {
		if _, err := e.Wallet.Broadcast(ctx, built.Packet); err != nil {
			if failErr := e.Store.UpdateBatchTransferStatus(batchIdx, models.BatchTransferStatusFailed, e.now().Unix()); failErr != nil {
				slog.Error("failing batch after broadcast error", "batch_transfer_idx", batchIdx, "error", failErr)
			}
			return nil, fmt.Errorf("%w: %s", walleterr.ErrFailedBroadcast, err)
		}
		for txoIdx := range unionInputs {
			if err := e.Store.MarkTxoSpent(txoIdx); err != nil {
				return nil, err
			}
		}
		if _, err := e.Store.InsertWalletTransaction(models.WalletTransaction{Txid: txid, Label: models.WalletTxRgbSend}); err != nil {
			return nil, err
		}
	}

	if err := e.Store.TouchOperationTimestamp(strconv.FormatInt(e.now().UnixNano(), 10)); err != nil {
		return nil, err
	}
	slog.Info("send prepared", "txid", txid, "batch_transfer_idx", batchIdx, "donation", donation)
	return &Result{Txid: txid, BatchTransferIdx: batchIdx}, nil
}

// validateRecipients checks id uniqueness and that at least one transport
// endpoint per recipient speaks the expected relay protocol,
// returning the chosen endpoint (by its HTTP URL) per recipient id.
func (e *Engine) validateRecipients(ctx context.Context, assetIDs []string, recipientMap map[string][]Recipient) (map[string]string, error) {
	chosen := make(map[string]string)
	seen := make(map[string]bool)
	for _, assetID := range assetIDs {
		if len(recipientMap[assetID]) == 0 {
			return nil, fmt.Errorf("%w: no recipients for %s", walleterr.ErrInvalidRecipientID, assetID)
		}
		for _, r := range recipientMap[assetID] {
			if r.RecipientID == "" {
				return nil, fmt.Errorf("%w: empty recipient id", walleterr.ErrInvalidRecipientID)
			}
			if seen[r.RecipientID] {
				return nil, fmt.Errorf("%w: %s", walleterr.ErrRecipientIDDuplicated, r.RecipientID)
			}
			seen[r.RecipientID] = true

			endpoints, err := invoice.DedupEndpoints(r.TransportEndpoints, config.MaxTransportEndpoints)
			if err != nil {
				return nil, err
			}
			urls := make([]string, 0, len(endpoints))
			for _, ep := range endpoints {
				httpURL, err := invoice.EndpointHTTPURL(ep)
				if err != nil {
					return nil, err
				}
				if err := e.Relays.Add(e.HTTPClient, models.TransportEndpoint{TransportType: models.TransportJSONRPC, Endpoint: httpURL}); err != nil {
					return nil, err
				}
				urls = append(urls, httpURL)
			}
			client, err := e.Relays.FirstUsable(ctx, urls)
			if err != nil {
				return nil, err
			}
			for _, u := range urls {
				if e.Relays.Client(u) == client {
					chosen[r.RecipientID] = u
					break
				}
			}
		}
	}
	return chosen, nil
}

// persist writes the batch transfer and its subordinate rows in one pass.
func (e *Engine) persist(plans []*assetPlan, blankAssets []string, fungibleOnUnion map[string]uint64,
	rightsOnUnion map[string][]models.Assignment, perInputFungible map[string]map[int64]uint64,
	perInputRights map[string]map[int64][]models.Assignment, unionInputs map[int64]models.Txo,
	txid string, changeVout uint32, changeSats uint64, donation bool, minConfirmations uint32,
	chosenEndpoint map[string]string) (int64, error) {

	now := e.now().Unix()
	status := models.BatchTransferStatusWaitingCounterparty
	var expiration *int64
	if donation {
		status = models.BatchTransferStatusWaitingConfirmations
	} else {
		exp := now + config.DurationSndTransfer
		expiration = &exp
	}
	batchIdx, err := e.Store.InsertBatchTransfer(models.BatchTransfer{
		Txid:             &txid,
		Status:           status,
		CreatedAt:        now,
		UpdatedAt:        now,
		Expiration:       expiration,
		MinConfirmations: minConfirmations,
	})
	if err != nil {
		return 0, err
	}

	changeTxoIdx, err := e.Store.InsertTxo(models.Txo{
		Txid:      txid,
		Vout:      changeVout,
		BtcAmount: strconv.FormatUint(changeSats, 10),
		Exists:    false,
	})
	if err != nil {
		return 0, err
	}

	writeColorings := func(atIdx int64, assetID string, change uint64) error {
		for txoIdx, amount := range perInputFungible[assetID] {
			if _, err := e.Store.InsertColoring(models.Coloring{
				TxoIdx:           txoIdx,
				AssetTransferIdx: atIdx,
				Type:             models.ColoringInput,
				Assignment:       models.Assignment{Kind: models.AssignmentFungible, Amount: amount},
			}); err != nil {
				return err
			}
		}
		for txoIdx, rights := range perInputRights[assetID] {
			for _, right := range rights {
				if _, err := e.Store.InsertColoring(models.Coloring{
					TxoIdx:           txoIdx,
					AssetTransferIdx: atIdx,
					Type:             models.ColoringInput,
					Assignment:       right,
				}); err != nil {
					return err
				}
			}
		}
		if change > 0 {
			if _, err := e.Store.InsertColoring(models.Coloring{
				TxoIdx:           changeTxoIdx,
				AssetTransferIdx: atIdx,
				Type:             models.ColoringChange,
				Assignment:       models.Assignment{Kind: models.AssignmentFungible, Amount: change},
			}); err != nil {
				return err
			}
		}
		for _, right := range rightsOnUnion[assetID] {
			if _, err := e.Store.InsertColoring(models.Coloring{
				TxoIdx:           changeTxoIdx,
				AssetTransferIdx: atIdx,
				Type:             models.ColoringChange,
				Assignment:       right,
			}); err != nil {
				return err
			}
		}
		return nil
	}

	for _, p := range plans {
		assetID := p.assetID
		atIdx, err := e.Store.InsertAssetTransfer(models.AssetTransfer{
			BatchTransferIdx: batchIdx,
			AssetID:          &assetID,
			UserDriven:       true,
		})
		if err != nil {
			return 0, err
		}
		if err := writeColorings(atIdx, assetID, p.spend.Change); err != nil {
			return 0, err
		}
		for _, r := range p.recipients {
			recipientID := r.RecipientID
			recipientType := models.RecipientTypeBlind
			if r.WitnessData != nil {
				recipientType = models.RecipientTypeWitness
			}
			assignment := r.Assignment
			transferIdx, err := e.Store.InsertTransfer(models.Transfer{
				AssetTransferIdx:    atIdx,
				Incoming:            false,
				RequestedAssignment: &assignment,
				RecipientID:         &recipientID,
				RecipientType:       &recipientType,
				Amount:              strconv.FormatUint(assignment.OwnedAmount(), 10),
			})
			if err != nil {
				return 0, err
			}
			for _, ep := range r.TransportEndpoints {
				httpURL, err := invoice.EndpointHTTPURL(ep)
				if err != nil {
					return 0, err
				}
				epIdx, err := e.Store.GetOrInsertTransportEndpoint(models.TransportJSONRPC, ep)
				if err != nil {
					return 0, err
				}
				tteIdx, err := e.Store.InsertTransferTransportEndpoint(models.TransferTransportEndpoint{
					TransferIdx:          transferIdx,
					TransportEndpointIdx: epIdx,
				})
				if err != nil {
					return 0, err
				}
				if httpURL == chosenEndpoint[r.RecipientID] {
					if err := e.Store.MarkTransferTransportEndpointUsed(tteIdx); err != nil {
						return 0, err
					}
				}
			}
		}
	}

	for _, assetID := range blankAssets {
		blankID := assetID
		atIdx, err := e.Store.InsertAssetTransfer(models.AssetTransfer{
			BatchTransferIdx: batchIdx,
			AssetID:          &blankID,
			UserDriven:       false,
		})
		if err != nil {
			return 0, err
		}
		if err := writeColorings(atIdx, assetID, fungibleOnUnion[assetID]); err != nil {
			return 0, err
		}
	}

	return batchIdx, nil
}

// attachmentDigests collects the media digests a consignment must reference:
// the asset's own media plus, for UDA, every token attachment.
func (e *Engine) attachmentDigests(assetID string) ([]string, error) {
	asset, err := e.Store.GetAssetByID(assetID)
	if err != nil || asset == nil {
		return nil, err
	}
	var digests []string
	if asset.MediaIdx != nil {
		m, err := e.Store.GetMedia(*asset.MediaIdx)
		if err != nil {
			return nil, err
		}
		if m != nil {
			digests = append(digests, m.Digest)
		}
	}
	token, err := e.Store.GetTokenByAssetIdx(asset.Idx)
	if err != nil {
		return nil, err
	}
	if token != nil {
		tms, err := e.Store.ListTokenMedia(token.Idx)
		if err != nil {
			return nil, err
		}
		for _, tm := range tms {
			m, err := e.Store.GetMedia(tm.MediaIdx)
			if err != nil {
				return nil, err
			}
			if m != nil {
				digests = append(digests, m.Digest)
			}
		}
	}
	return digests, nil
}

// postMedia pushes one digest's bytes to every endpoint chosen for this
// asset's recipients, so the receiver side can fetch and verify them.
func (e *Engine) postMedia(ctx context.Context, digest string, recipients []Recipient, chosenEndpoint map[string]string) error {
	mediaPath := filepath.Join(e.MediaDir, digest)
	data, err := os.ReadFile(mediaPath)
	if err != nil {
		return fmt.Errorf("%w: read media %s: %s", walleterr.ErrIO, digest, err)
	}
	posted := make(map[string]bool)
	for _, r := range recipients {
		url := chosenEndpoint[r.RecipientID]
		if posted[url] {
			continue
		}
		posted[url] = true
		if err := e.Relays.Client(url).PostMedia(ctx, digest, data); err != nil {
			return err
		}
	}
	return nil
}

func batchStatusOf(snap *db.Snapshot, assetTransferIdx int64) models.BatchTransferStatus {
	for _, at := range snap.AssetTransfers {
		if at.Idx != assetTransferIdx {
			continue
		}
		for _, bt := range snap.BatchTransfers {
			if bt.Idx == at.BatchTransferIdx {
				return bt.Status
			}
		}
	}
	return 0
}
