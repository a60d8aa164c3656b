package db

import (
	"database/sql"
	"fmt"

	"github.com/rgbwallet/rgbwallet/internal/models"
)

// InsertAssetTransfer records an asset's participation in a batch transfer.
func (d *DB) InsertAssetTransfer(at models.AssetTransfer) (int64, error) {
	res, err := d.conn.Exec(
		"INSERT INTO asset_transfer (batch_transfer_idx, asset_id, user_driven) VALUES (?, ?, ?)",
		at.BatchTransferIdx, at.AssetID, at.UserDriven,
	)
	if err != nil {
		return 0, fmt.Errorf("insert asset transfer for batch %d: %w", at.BatchTransferIdx, err)
	}
	return res.LastInsertId()
}

func scanAssetTransfer(row interface{ Scan(...any) error }) (*models.AssetTransfer, error) {
	var at models.AssetTransfer
	if err := row.Scan(&at.Idx, &at.BatchTransferIdx, &at.AssetID, &at.UserDriven); err != nil {
		return nil, err
	}
	return &at, nil
}

// GetAssetTransfer fetches an AssetTransfer by surrogate key.
func (d *DB) GetAssetTransfer(idx int64) (*models.AssetTransfer, error) {
	row := d.conn.QueryRow("SELECT idx, batch_transfer_idx, asset_id, user_driven FROM asset_transfer WHERE idx = ?", idx)
	at, err := scanAssetTransfer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get asset transfer %d: %w", idx, err)
	}
	return at, nil
}

// ListAssetTransfersByBatch returns every asset leg of a batch transfer.
func (d *DB) ListAssetTransfersByBatch(batchIdx int64) ([]models.AssetTransfer, error) {
	rows, err := d.conn.Query("SELECT idx, batch_transfer_idx, asset_id, user_driven FROM asset_transfer WHERE batch_transfer_idx = ?", batchIdx)
	if err != nil {
		return nil, fmt.Errorf("list asset transfers for batch %d: %w", batchIdx, err)
	}
	defer rows.Close()

	var out []models.AssetTransfer
	for rows.Next() {
		at, err := scanAssetTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset transfer row: %w", err)
		}
		out = append(out, *at)
	}
	return out, rows.Err()
}

// ListAssetTransfersByAsset returns every batch leg touching a given asset id.
func (d *DB) ListAssetTransfersByAsset(assetID string) ([]models.AssetTransfer, error) {
	rows, err := d.conn.Query("SELECT idx, batch_transfer_idx, asset_id, user_driven FROM asset_transfer WHERE asset_id = ?", assetID)
	if err != nil {
		return nil, fmt.Errorf("list asset transfers for asset %s: %w", assetID, err)
	}
	defer rows.Close()

	var out []models.AssetTransfer
	for rows.Next() {
		at, err := scanAssetTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset transfer row: %w", err)
		}
		out = append(out, *at)
	}
	return out, rows.Err()
}

// UpdateAssetTransferAssetID binds a receiver-side asset transfer to the
// contract id learned from the sender's consignment.
func (d *DB) UpdateAssetTransferAssetID(idx int64, assetID string) error {
	if _, err := d.conn.Exec("UPDATE asset_transfer SET asset_id = ? WHERE idx = ?", assetID, idx); err != nil {
		return fmt.Errorf("update asset transfer %d asset id: %w", idx, err)
	}
	return nil
}
