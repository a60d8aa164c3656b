package db

import (
	"fmt"

	"github.com/rgbwallet/rgbwallet/internal/models"
)

// Snapshot is the one-shot bulk load behind every derived view: all batch
// transfers, asset transfers, transfers, colorings and txos, so the ledger
// and balance computations can join in memory instead of issuing a query
// per UTXO or per asset.
type Snapshot struct {
	BatchTransfers []models.BatchTransfer
	AssetTransfers []models.AssetTransfer
	Transfers      []models.Transfer
	Colorings      []models.Coloring
	Txos           []models.Txo
}

// GetDBData loads the full snapshot used by refresh, balance, issuance,
// receive and send passes; one bulk read per pass.
func (d *DB) GetDBData() (*Snapshot, error) {
	var snap Snapshot

	rows, err := d.conn.Query("SELECT idx, txid, status, created_at, updated_at, expiration, min_confirmations FROM batch_transfer")
	if err != nil {
		return nil, fmt.Errorf("snapshot batch transfers: %w", err)
	}
	for rows.Next() {
		bt, err := scanBatchTransfer(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan snapshot batch transfer: %w", err)
		}
		snap.BatchTransfers = append(snap.BatchTransfers, *bt)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = d.conn.Query("SELECT idx, batch_transfer_idx, asset_id, user_driven FROM asset_transfer")
	if err != nil {
		return nil, fmt.Errorf("snapshot asset transfers: %w", err)
	}
	for rows.Next() {
		at, err := scanAssetTransfer(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan snapshot asset transfer: %w", err)
		}
		snap.AssetTransfers = append(snap.AssetTransfers, *at)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = d.conn.Query("SELECT " + transferColumns + " FROM transfer")
	if err != nil {
		return nil, fmt.Errorf("snapshot transfers: %w", err)
	}
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan snapshot transfer: %w", err)
		}
		snap.Transfers = append(snap.Transfers, *t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	colorings, err := d.ListAllColorings()
	if err != nil {
		return nil, fmt.Errorf("snapshot colorings: %w", err)
	}
	snap.Colorings = colorings

	txos, err := d.ListTxos()
	if err != nil {
		return nil, fmt.Errorf("snapshot txos: %w", err)
	}
	snap.Txos = txos

	return &snap, nil
}
