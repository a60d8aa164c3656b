package db

import (
	"database/sql"
	"fmt"

	"github.com/rgbwallet/rgbwallet/internal/models"
)

const transferColumns = `idx, asset_transfer_idx, incoming, requested_assignment_kind, requested_assignment_amount,
	recipient_id, recipient_type, ack, invoice_string, amount, beneficiary_txo_idx, witness_vout`

// InsertTransfer records one recipient x asset leg of a transfer.
func (d *DB) InsertTransfer(t models.Transfer) (int64, error) {
	var kind, amount *string
	if t.RequestedAssignment != nil {
		k := string(t.RequestedAssignment.Kind)
		a := fmt.Sprintf("%d", t.RequestedAssignment.Amount)
		kind, amount = &k, &a
	}
	var recipientType *string
	if t.RecipientType != nil {
		rt := string(*t.RecipientType)
		recipientType = &rt
	}

	res, err := d.conn.Exec(
		`INSERT INTO transfer (asset_transfer_idx, incoming, requested_assignment_kind, requested_assignment_amount,
			recipient_id, recipient_type, ack, invoice_string, amount, beneficiary_txo_idx, witness_vout)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.AssetTransferIdx, t.Incoming, kind, amount, t.RecipientID, recipientType, t.Ack, t.InvoiceString, t.Amount,
		t.BeneficiaryTxoIdx, t.WitnessVout,
	)
	if err != nil {
		return 0, fmt.Errorf("insert transfer for asset transfer %d: %w", t.AssetTransferIdx, err)
	}
	return res.LastInsertId()
}

func scanTransfer(row interface{ Scan(...any) error }) (*models.Transfer, error) {
	var t models.Transfer
	var kind, amountStr, recipientType, recipientID, invoiceString sql.NullString
	var ack sql.NullBool
	var beneficiaryTxoIdx, witnessVout sql.NullInt64
	if err := row.Scan(&t.Idx, &t.AssetTransferIdx, &t.Incoming, &kind, &amountStr, &recipientID, &recipientType, &ack, &invoiceString, &t.Amount, &beneficiaryTxoIdx, &witnessVout); err != nil {
		return nil, err
	}
	if kind.Valid {
		var amt uint64
		fmt.Sscanf(amountStr.String, "%d", &amt)
		t.RequestedAssignment = &models.Assignment{Kind: models.AssignmentKind(kind.String), Amount: amt}
	}
	if recipientType.Valid {
		rt := models.RecipientType(recipientType.String)
		t.RecipientType = &rt
	}
	if recipientID.Valid {
		t.RecipientID = &recipientID.String
	}
	if invoiceString.Valid {
		t.InvoiceString = &invoiceString.String
	}
	if ack.Valid {
		t.Ack = &ack.Bool
	}
	if beneficiaryTxoIdx.Valid {
		t.BeneficiaryTxoIdx = &beneficiaryTxoIdx.Int64
	}
	if witnessVout.Valid {
		v := uint32(witnessVout.Int64)
		t.WitnessVout = &v
	}
	return &t, nil
}

// GetTransfer fetches a Transfer by surrogate key.
func (d *DB) GetTransfer(idx int64) (*models.Transfer, error) {
	row := d.conn.QueryRow("SELECT "+transferColumns+" FROM transfer WHERE idx = ?", idx)
	t, err := scanTransfer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transfer %d: %w", idx, err)
	}
	return t, nil
}

// ListTransfersByAssetTransfer returns every recipient leg under an asset transfer.
func (d *DB) ListTransfersByAssetTransfer(assetTransferIdx int64) ([]models.Transfer, error) {
	rows, err := d.conn.Query("SELECT "+transferColumns+" FROM transfer WHERE asset_transfer_idx = ?", assetTransferIdx)
	if err != nil {
		return nil, fmt.Errorf("list transfers for asset transfer %d: %w", assetTransferIdx, err)
	}
	defer rows.Close()

	var out []models.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transfer row: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// GetTransferByRecipientID looks up a transfer by its blind/witness recipient id, used to
// reject a recipient id already used by a prior incoming transfer.
func (d *DB) GetTransferByRecipientID(recipientID string) (*models.Transfer, error) {
	row := d.conn.QueryRow("SELECT "+transferColumns+" FROM transfer WHERE recipient_id = ?", recipientID)
	t, err := scanTransfer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transfer by recipient id %s: %w", recipientID, err)
	}
	return t, nil
}

// UpdateTransferAck records the counterparty's ack/nack for an outgoing transfer.
func (d *DB) UpdateTransferAck(idx int64, ack bool) error {
	if _, err := d.conn.Exec("UPDATE transfer SET ack = ? WHERE idx = ?", ack, idx); err != nil {
		return fmt.Errorf("update transfer %d ack: %w", idx, err)
	}
	return nil
}

// UpdateTransferAmount updates the running received amount on an incoming transfer.
func (d *DB) UpdateTransferAmount(idx int64, amount string) error {
	if _, err := d.conn.Exec("UPDATE transfer SET amount = ? WHERE idx = ?", amount, idx); err != nil {
		return fmt.Errorf("update transfer %d amount: %w", idx, err)
	}
	return nil
}

// UpdateTransferWitnessVout records the destination vout of a witness receive
// once the sender's consignment reveals it.
func (d *DB) UpdateTransferWitnessVout(idx int64, vout uint32) error {
	if _, err := d.conn.Exec("UPDATE transfer SET witness_vout = ? WHERE idx = ?", vout, idx); err != nil {
		return fmt.Errorf("update transfer %d witness vout: %w", idx, err)
	}
	return nil
}
