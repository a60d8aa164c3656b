package db

import (
	"fmt"

	"github.com/rgbwallet/rgbwallet/internal/models"
)

// InsertColoring records a ledger entry linking a Txo to an AssetTransfer.
func (d *DB) InsertColoring(c models.Coloring) (int64, error) {
	res, err := d.conn.Exec(
		`INSERT INTO coloring (txo_idx, asset_transfer_idx, type, assignment_kind, assignment_amount)
		 VALUES (?, ?, ?, ?, ?)`,
		c.TxoIdx, c.AssetTransferIdx, string(c.Type), string(c.Assignment.Kind), fmt.Sprintf("%d", c.Assignment.Amount),
	)
	if err != nil {
		return 0, fmt.Errorf("insert coloring for txo %d: %w", c.TxoIdx, err)
	}
	return res.LastInsertId()
}

func scanColoring(row interface{ Scan(...any) error }) (*models.Coloring, error) {
	var c models.Coloring
	var typ, kind, amount string
	if err := row.Scan(&c.Idx, &c.TxoIdx, &c.AssetTransferIdx, &typ, &kind, &amount); err != nil {
		return nil, err
	}
	c.Type = models.ColoringType(typ)
	var amt uint64
	fmt.Sscanf(amount, "%d", &amt)
	c.Assignment = models.Assignment{Kind: models.AssignmentKind(kind), Amount: amt}
	return &c, nil
}

// ListColoringsByTxo returns every coloring recorded against a Txo.
func (d *DB) ListColoringsByTxo(txoIdx int64) ([]models.Coloring, error) {
	rows, err := d.conn.Query("SELECT idx, txo_idx, asset_transfer_idx, type, assignment_kind, assignment_amount FROM coloring WHERE txo_idx = ?", txoIdx)
	if err != nil {
		return nil, fmt.Errorf("list colorings for txo %d: %w", txoIdx, err)
	}
	defer rows.Close()

	var out []models.Coloring
	for rows.Next() {
		c, err := scanColoring(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coloring row: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ListColoringsByAssetTransfer returns every coloring belonging to an asset transfer leg.
func (d *DB) ListColoringsByAssetTransfer(assetTransferIdx int64) ([]models.Coloring, error) {
	rows, err := d.conn.Query("SELECT idx, txo_idx, asset_transfer_idx, type, assignment_kind, assignment_amount FROM coloring WHERE asset_transfer_idx = ?", assetTransferIdx)
	if err != nil {
		return nil, fmt.Errorf("list colorings for asset transfer %d: %w", assetTransferIdx, err)
	}
	defer rows.Close()

	var out []models.Coloring
	for rows.Next() {
		c, err := scanColoring(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coloring row: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ListColoringsByAsset returns every coloring touching any asset transfer of a given contract.
func (d *DB) ListColoringsByAsset(assetID string) ([]models.Coloring, error) {
	rows, err := d.conn.Query(
		`SELECT c.idx, c.txo_idx, c.asset_transfer_idx, c.type, c.assignment_kind, c.assignment_amount
		 FROM coloring c JOIN asset_transfer at ON at.idx = c.asset_transfer_idx WHERE at.asset_id = ?`, assetID,
	)
	if err != nil {
		return nil, fmt.Errorf("list colorings for asset %s: %w", assetID, err)
	}
	defer rows.Close()

	var out []models.Coloring
	for rows.Next() {
		c, err := scanColoring(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coloring row: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ListAllColorings returns every coloring in the ledger, loaded into each
// GetDBData snapshot.
func (d *DB) ListAllColorings() ([]models.Coloring, error) {
	rows, err := d.conn.Query("SELECT idx, txo_idx, asset_transfer_idx, type, assignment_kind, assignment_amount FROM coloring")
	if err != nil {
		return nil, fmt.Errorf("list all colorings: %w", err)
	}
	defer rows.Close()

	var out []models.Coloring
	for rows.Next() {
		c, err := scanColoring(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coloring row: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
