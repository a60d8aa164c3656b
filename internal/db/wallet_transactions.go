package db

import (
	"database/sql"
	"fmt"

	"github.com/rgbwallet/rgbwallet/internal/models"
)

// InsertWalletTransaction records a txid the wallet broadcast, tagged by purpose.
func (d *DB) InsertWalletTransaction(wt models.WalletTransaction) (int64, error) {
	res, err := d.conn.Exec(
		"INSERT INTO wallet_transaction (txid, label) VALUES (?, ?) ON CONFLICT (txid) DO UPDATE SET label = excluded.label",
		wt.Txid, string(wt.Label),
	)
	if err != nil {
		return 0, fmt.Errorf("insert wallet transaction %s: %w", wt.Txid, err)
	}
	return res.LastInsertId()
}

// GetWalletTransaction fetches a WalletTransaction by txid.
func (d *DB) GetWalletTransaction(txid string) (*models.WalletTransaction, error) {
	var wt models.WalletTransaction
	wt.Txid = txid
	var label string
	err := d.conn.QueryRow("SELECT idx, label FROM wallet_transaction WHERE txid = ?", txid).Scan(&wt.Idx, &label)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet transaction %s: %w", txid, err)
	}
	wt.Label = models.WalletTransactionLabel(label)
	return &wt, nil
}
