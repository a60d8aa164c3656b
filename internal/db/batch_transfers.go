package db

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/rgbwallet/rgbwallet/internal/models"
)

// InsertBatchTransfer records a new batch transfer with the status bt carries.
func (d *DB) InsertBatchTransfer(bt models.BatchTransfer) (int64, error) {
	res, err := d.conn.Exec(
		`INSERT INTO batch_transfer (txid, status, created_at, updated_at, expiration, min_confirmations)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		bt.Txid, int(bt.Status), bt.CreatedAt, bt.UpdatedAt, bt.Expiration, bt.MinConfirmations,
	)
	if err != nil {
		return 0, fmt.Errorf("insert batch transfer: %w", err)
	}
	return res.LastInsertId()
}

func scanBatchTransfer(row interface{ Scan(...any) error }) (*models.BatchTransfer, error) {
	var bt models.BatchTransfer
	var status int
	var txid sql.NullString
	var expiration sql.NullInt64
	if err := row.Scan(&bt.Idx, &txid, &status, &bt.CreatedAt, &bt.UpdatedAt, &expiration, &bt.MinConfirmations); err != nil {
		return nil, err
	}
	bt.Status = models.BatchTransferStatus(status)
	if txid.Valid {
		bt.Txid = &txid.String
	}
	if expiration.Valid {
		bt.Expiration = &expiration.Int64
	}
	return &bt, nil
}

// GetBatchTransfer fetches a BatchTransfer by surrogate key.
func (d *DB) GetBatchTransfer(idx int64) (*models.BatchTransfer, error) {
	row := d.conn.QueryRow(
		"SELECT idx, txid, status, created_at, updated_at, expiration, min_confirmations FROM batch_transfer WHERE idx = ?", idx,
	)
	bt, err := scanBatchTransfer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get batch transfer %d: %w", idx, err)
	}
	return bt, nil
}

// ListPendingBatchTransfers returns batch transfers in WaitingCounterparty or WaitingConfirmations.
func (d *DB) ListPendingBatchTransfers() ([]models.BatchTransfer, error) {
	rows, err := d.conn.Query(
		"SELECT idx, txid, status, created_at, updated_at, expiration, min_confirmations FROM batch_transfer WHERE status IN (?, ?)",
		int(models.BatchTransferStatusWaitingCounterparty), int(models.BatchTransferStatusWaitingConfirmations),
	)
	if err != nil {
		return nil, fmt.Errorf("list pending batch transfers: %w", err)
	}
	defer rows.Close()

	var out []models.BatchTransfer
	for rows.Next() {
		bt, err := scanBatchTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch transfer row: %w", err)
		}
		out = append(out, *bt)
	}
	return out, rows.Err()
}

// UpdateBatchTransferStatus transitions a batch transfer's status and bumps updated_at.
func (d *DB) UpdateBatchTransferStatus(idx int64, status models.BatchTransferStatus, updatedAt int64) error {
	if _, err := d.conn.Exec("UPDATE batch_transfer SET status = ?, updated_at = ? WHERE idx = ?", int(status), updatedAt, idx); err != nil {
		return fmt.Errorf("update batch transfer %d status: %w", idx, err)
	}
	slog.Debug("batch transfer status updated", "idx", idx, "status", status)
	return nil
}

// SetBatchTransferTxid records the anchoring transaction id once the send PSBT is signed.
func (d *DB) SetBatchTransferTxid(idx int64, txid string, updatedAt int64) error {
	if _, err := d.conn.Exec("UPDATE batch_transfer SET txid = ?, updated_at = ? WHERE idx = ?", txid, updatedAt, idx); err != nil {
		return fmt.Errorf("set batch transfer %d txid: %w", idx, err)
	}
	return nil
}

// DeleteBatchTransfer removes a terminal (Failed) batch transfer and its asset transfers/transfers/colorings.
func (d *DB) DeleteBatchTransfer(idx int64) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin delete batch transfer %d: %w", idx, err)
	}
	defer tx.Rollback()

	// Remember Txo rows that only this batch references and that were
	// pre-allocated for a tx never broadcast (exists=false); they go away with
	// the batch.
	orphanRows, err := tx.Query(
		`SELECT DISTINCT t.idx FROM txo t
		 JOIN coloring c ON c.txo_idx = t.idx
		 JOIN asset_transfer a ON a.idx = c.asset_transfer_idx
		 WHERE a.batch_transfer_idx = ? AND t.exists_ = 0
		   AND NOT EXISTS (
			SELECT 1 FROM coloring c2
			JOIN asset_transfer a2 ON a2.idx = c2.asset_transfer_idx
			WHERE c2.txo_idx = t.idx AND a2.batch_transfer_idx != ?)`, idx, idx)
	if err != nil {
		return fmt.Errorf("find orphan txos for batch transfer %d: %w", idx, err)
	}
	var orphanTxos []int64
	for orphanRows.Next() {
		var txoIdx int64
		if err := orphanRows.Scan(&txoIdx); err != nil {
			orphanRows.Close()
			return fmt.Errorf("scan orphan txo for batch transfer %d: %w", idx, err)
		}
		orphanTxos = append(orphanTxos, txoIdx)
	}
	if err := orphanRows.Err(); err != nil {
		orphanRows.Close()
		return err
	}
	orphanRows.Close()

	if _, err := tx.Exec(`DELETE FROM coloring WHERE asset_transfer_idx IN (SELECT idx FROM asset_transfer WHERE batch_transfer_idx = ?)`, idx); err != nil {
		return fmt.Errorf("delete colorings for batch transfer %d: %w", idx, err)
	}
	if _, err := tx.Exec(`DELETE FROM pending_witness_script WHERE asset_transfer_idx IN (SELECT idx FROM asset_transfer WHERE batch_transfer_idx = ?)`, idx); err != nil {
		return fmt.Errorf("delete pending witness scripts for batch transfer %d: %w", idx, err)
	}
	if _, err := tx.Exec(`DELETE FROM transfer_transport_endpoint WHERE transfer_idx IN (SELECT idx FROM transfer WHERE asset_transfer_idx IN (SELECT idx FROM asset_transfer WHERE batch_transfer_idx = ?))`, idx); err != nil {
		return fmt.Errorf("delete transfer transport endpoints for batch transfer %d: %w", idx, err)
	}
	if _, err := tx.Exec(`DELETE FROM transfer WHERE asset_transfer_idx IN (SELECT idx FROM asset_transfer WHERE batch_transfer_idx = ?)`, idx); err != nil {
		return fmt.Errorf("delete transfers for batch transfer %d: %w", idx, err)
	}
	if _, err := tx.Exec(`DELETE FROM asset_transfer WHERE batch_transfer_idx = ?`, idx); err != nil {
		return fmt.Errorf("delete asset transfers for batch transfer %d: %w", idx, err)
	}
	if _, err := tx.Exec(`DELETE FROM batch_transfer WHERE idx = ?`, idx); err != nil {
		return fmt.Errorf("delete batch transfer %d: %w", idx, err)
	}
	for _, txoIdx := range orphanTxos {
		if _, err := tx.Exec(`DELETE FROM txo WHERE idx = ?`, txoIdx); err != nil {
			return fmt.Errorf("delete orphan txo %d for batch transfer %d: %w", txoIdx, idx, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete batch transfer %d: %w", idx, err)
	}
	slog.Info("batch transfer deleted", "idx", idx)
	return nil
}

// SetBatchTransferExpiration re-stamps a batch transfer's expiration.
func (d *DB) SetBatchTransferExpiration(idx int64, expiration int64, updatedAt int64) error {
	if _, err := d.conn.Exec("UPDATE batch_transfer SET expiration = ?, updated_at = ? WHERE idx = ?", expiration, updatedAt, idx); err != nil {
		return fmt.Errorf("set batch transfer %d expiration: %w", idx, err)
	}
	return nil
}
