// Package receive implements the Receive Engine: blinded-seal and
// witness-address invoices plus the expectation records the Transfer State
// Machine later matches incoming consignments against.
package receive

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mr-tron/base58"

	"github.com/rgbwallet/rgbwallet/internal/allocator"
	"github.com/rgbwallet/rgbwallet/internal/basechain"
	"github.com/rgbwallet/rgbwallet/internal/config"
	"github.com/rgbwallet/rgbwallet/internal/db"
	"github.com/rgbwallet/rgbwallet/internal/invoice"
	"github.com/rgbwallet/rgbwallet/internal/ledger"
	"github.com/rgbwallet/rgbwallet/internal/models"
	"github.com/rgbwallet/rgbwallet/internal/walleterr"
)

// blindSealPrefix marks a concealed-seal recipient id, the way bech32 HRPs
// mark address kinds on the base chain.
const blindSealPrefix = "utxob1"

// Engine produces invoices and registers the matching expectation rows.
type Engine struct {
	Store  *db.DB
	Wallet basechain.Wallet

	// MaxAllocationsPerUtxo overrides the default slot cap when > 0.
	MaxAllocationsPerUtxo int

	// Now is the clock, swappable in tests.
	Now func() time.Time
}

// Params are the inputs shared by both receive modes.
type Params struct {
	// AssetID restricts the invoice to one contract; it must exist locally.
	AssetID *string

	// Assignment is the requested allocation kind/amount.
	Assignment models.Assignment

	// DurationSeconds sets invoice expiry; nil means the default, 0 means no
	// expiry.
	DurationSeconds *uint32

	TransportEndpoints []string
	MinConfirmations   uint32
}

// ReceiveData is what both receive modes hand back to the caller.
type ReceiveData struct {
	Invoice             string
	RecipientID         string
	ExpirationTimestamp *int64
	BatchTransferIdx    int64
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// BlindReceive reserves a free-slot UTXO, blinds its outpoint and returns an
// invoice whose beneficiary is the concealed seal.
func (e *Engine) BlindReceive(ctx context.Context, p Params) (*ReceiveData, error) {
	slog.Info("blind receive", "asset_id", p.AssetID)

	snap, err := e.Store.GetDBData()
	if err != nil {
		return nil, err
	}
	cand, err := allocator.Pick(snap, ledger.Build(snap, false), allocator.PickParams{
		PendingOperation:      true,
		MaxAllocationsPerUtxo: e.MaxAllocationsPerUtxo,
	})
	if err != nil {
		return nil, err
	}

	// A fresh random blinding per call; the concealed form is the recipient id
	// the sender addresses, the Txo index on the transfer row is the secret
	// that later reveals the destination.
	var blinding [32]byte
	if _, err := rand.Read(blinding[:]); err != nil {
		return nil, fmt.Errorf("blind seal entropy: %w", err)
	}
	recipientID := blindSealPrefix + base58.Encode(blinding[:])

	return e.receive(p, recipientID, models.RecipientTypeBlind, &cand.TxoIdx, "")
}

// WitnessReceive reveals the next colored-keychain address and returns an
// invoice whose beneficiary is its script, to be satisfied by an output of
// the sender's anchoring tx.
func (e *Engine) WitnessReceive(ctx context.Context, p Params) (*ReceiveData, error) {
	slog.Info("witness receive", "asset_id", p.AssetID)

	addr, err := e.Wallet.NextAddress(ctx)
	if err != nil {
		return nil, fmt.Errorf("reveal receive address: %w", err)
	}
	return e.receive(p, addr, models.RecipientTypeWitness, nil, addr)
}

// receive is the mode-independent tail: validate, build the invoice, persist
// the expectation rows.
func (e *Engine) receive(p Params, recipientID string, recipientType models.RecipientType, beneficiaryTxoIdx *int64, pendingScript string) (*ReceiveData, error) {
	endpoints, err := invoice.DedupEndpoints(p.TransportEndpoints, config.MaxTransportEndpoints)
	if err != nil {
		return nil, err
	}

	var schema models.Schema
	var contractID string
	if p.AssetID != nil {
		asset, err := e.Store.GetAssetByID(*p.AssetID)
		if err != nil {
			return nil, err
		}
		if asset == nil {
			return nil, fmt.Errorf("%w: %s", walleterr.ErrAssetNotFound, *p.AssetID)
		}
		schema = asset.Schema
		contractID = asset.ID
	}

	detected, assignmentName, err := invoice.Detect(p.Assignment, schema)
	if err != nil {
		return nil, err
	}

	if existing, err := e.Store.GetTransferByRecipientID(recipientID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("%w: %s", walleterr.ErrRecipientIDAlreadyUsed, recipientID)
	}

	createdAt := e.now().Unix()
	var expiry *int64
	if p.DurationSeconds == nil || *p.DurationSeconds != 0 {
		duration := int64(config.DurationRcvTransfer)
		if p.DurationSeconds != nil {
			duration = int64(*p.DurationSeconds)
		}
		ts := createdAt + duration
		expiry = &ts
	}

	inv := invoice.Data{
		ContractID:         contractID,
		Schema:             schema,
		Assignment:         detected,
		AssignmentName:     assignmentName,
		Beneficiary:        recipientID,
		Expiry:             expiry,
		TransportEndpoints: endpoints,
	}
	invoiceString := inv.Build()

	minConfirmations := p.MinConfirmations
	if minConfirmations == 0 {
		minConfirmations = 1
	}

	batchIdx, err := e.Store.InsertBatchTransfer(models.BatchTransfer{
		Status:           models.BatchTransferStatusWaitingCounterparty,
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
		Expiration:       expiry,
		MinConfirmations: minConfirmations,
	})
	if err != nil {
		return nil, err
	}
	atIdx, err := e.Store.InsertAssetTransfer(models.AssetTransfer{
		BatchTransferIdx: batchIdx,
		AssetID:          p.AssetID,
		UserDriven:       true,
	})
	if err != nil {
		return nil, err
	}
	transferIdx, err := e.Store.InsertTransfer(models.Transfer{
		AssetTransferIdx:    atIdx,
		Incoming:            true,
		RequestedAssignment: &detected,
		RecipientID:         &recipientID,
		RecipientType:       &recipientType,
		InvoiceString:       &invoiceString,
		Amount:              "0",
		BeneficiaryTxoIdx:   beneficiaryTxoIdx,
	})
	if err != nil {
		return nil, err
	}
	for _, ep := range endpoints {
		epIdx, err := e.Store.GetOrInsertTransportEndpoint(models.TransportJSONRPC, ep)
		if err != nil {
			return nil, err
		}
		if _, err := e.Store.InsertTransferTransportEndpoint(models.TransferTransportEndpoint{
			TransferIdx:          transferIdx,
			TransportEndpointIdx: epIdx,
		}); err != nil {
			return nil, err
		}
	}
	if pendingScript != "" {
		if _, err := e.Store.InsertPendingWitnessScript(models.PendingWitnessScript{
			Script:           pendingScript,
			TransferIdx:      transferIdx,
			AssetTransferIdx: atIdx,
		}); err != nil {
			return nil, err
		}
	}

	if err := e.Store.TouchOperationTimestamp(strconv.FormatInt(e.now().UnixNano(), 10)); err != nil {
		return nil, err
	}
	slog.Info("receive registered", "recipient_id", recipientID, "batch_transfer_idx", batchIdx, "type", recipientType)
	return &ReceiveData{
		Invoice:             invoiceString,
		RecipientID:         recipientID,
		ExpirationTimestamp: expiry,
		BatchTransferIdx:    batchIdx,
	}, nil
}
