package db

import (
	"fmt"

	"github.com/rgbwallet/rgbwallet/internal/models"
)

// InsertPendingWitnessScript records a script pubkey minted by a witness-receive,
// pending confirmation on chain.
func (d *DB) InsertPendingWitnessScript(p models.PendingWitnessScript) (int64, error) {
	res, err := d.conn.Exec(
		"INSERT INTO pending_witness_script (script, transfer_idx, asset_transfer_idx) VALUES (?, ?, ?)",
		p.Script, p.TransferIdx, p.AssetTransferIdx,
	)
	if err != nil {
		return 0, fmt.Errorf("insert pending witness script for transfer %d: %w", p.TransferIdx, err)
	}
	return res.LastInsertId()
}

// ListPendingWitnessScripts returns every script pubkey awaiting its witness transaction.
func (d *DB) ListPendingWitnessScripts() ([]models.PendingWitnessScript, error) {
	rows, err := d.conn.Query("SELECT idx, script, transfer_idx, asset_transfer_idx FROM pending_witness_script")
	if err != nil {
		return nil, fmt.Errorf("list pending witness scripts: %w", err)
	}
	defer rows.Close()

	var out []models.PendingWitnessScript
	for rows.Next() {
		var p models.PendingWitnessScript
		if err := rows.Scan(&p.Idx, &p.Script, &p.TransferIdx, &p.AssetTransferIdx); err != nil {
			return nil, fmt.Errorf("scan pending witness script row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePendingWitnessScript removes the record once its witness transaction confirms.
func (d *DB) DeletePendingWitnessScript(idx int64) error {
	if _, err := d.conn.Exec("DELETE FROM pending_witness_script WHERE idx = ?", idx); err != nil {
		return fmt.Errorf("delete pending witness script %d: %w", idx, err)
	}
	return nil
}
