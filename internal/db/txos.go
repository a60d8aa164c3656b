package db

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/rgbwallet/rgbwallet/internal/models"
)

// InsertTxo records a UTXO the wallet has observed, returning its surrogate key.
func (d *DB) InsertTxo(t models.Txo) (int64, error) {
	res, err := d.conn.Exec(
		`INSERT INTO txo (txid, vout, btc_amount, spent, exists_, pending_witness) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (txid, vout) DO UPDATE SET btc_amount = excluded.btc_amount, exists_ = excluded.exists_`,
		t.Txid, t.Vout, t.BtcAmount, t.Spent, t.Exists, t.PendingWitness,
	)
	if err != nil {
		return 0, fmt.Errorf("insert txo %s:%d: %w", t.Txid, t.Vout, err)
	}
	idx, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert txo %s:%d: last insert id: %w", t.Txid, t.Vout, err)
	}
	if idx == 0 {
		return d.GetTxoIdxByOutpoint(t.Txid, t.Vout)
	}
	return idx, nil
}

// GetTxoIdxByOutpoint resolves a Txo's surrogate key from its outpoint.
func (d *DB) GetTxoIdxByOutpoint(txid string, vout uint32) (int64, error) {
	var idx int64
	err := d.conn.QueryRow("SELECT idx FROM txo WHERE txid = ? AND vout = ?", txid, vout).Scan(&idx)
	if err != nil {
		return 0, fmt.Errorf("get txo idx for %s:%d: %w", txid, vout, err)
	}
	return idx, nil
}

// GetTxo fetches a Txo by its surrogate key.
func (d *DB) GetTxo(idx int64) (*models.Txo, error) {
	var t models.Txo
	t.Idx = idx
	err := d.conn.QueryRow(
		"SELECT txid, vout, btc_amount, spent, exists_, pending_witness FROM txo WHERE idx = ?", idx,
	).Scan(&t.Txid, &t.Vout, &t.BtcAmount, &t.Spent, &t.Exists, &t.PendingWitness)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get txo %d: %w", idx, err)
	}
	return &t, nil
}

// ListTxos returns every Txo known to the wallet.
func (d *DB) ListTxos() ([]models.Txo, error) {
	rows, err := d.conn.Query("SELECT idx, txid, vout, btc_amount, spent, exists_, pending_witness FROM txo")
	if err != nil {
		return nil, fmt.Errorf("list txos: %w", err)
	}
	defer rows.Close()

	var out []models.Txo
	for rows.Next() {
		var t models.Txo
		if err := rows.Scan(&t.Idx, &t.Txid, &t.Vout, &t.BtcAmount, &t.Spent, &t.Exists, &t.PendingWitness); err != nil {
			return nil, fmt.Errorf("scan txo row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListUnspentTxos returns Txos that exist on chain and have not been marked spent.
func (d *DB) ListUnspentTxos() ([]models.Txo, error) {
	rows, err := d.conn.Query("SELECT idx, txid, vout, btc_amount, spent, exists_, pending_witness FROM txo WHERE exists_ = 1 AND spent = 0")
	if err != nil {
		return nil, fmt.Errorf("list unspent txos: %w", err)
	}
	defer rows.Close()

	var out []models.Txo
	for rows.Next() {
		var t models.Txo
		if err := rows.Scan(&t.Idx, &t.Txid, &t.Vout, &t.BtcAmount, &t.Spent, &t.Exists, &t.PendingWitness); err != nil {
			return nil, fmt.Errorf("scan unspent txo row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MarkTxoSpent flags a Txo as spent once its consuming transaction has been broadcast.
func (d *DB) MarkTxoSpent(idx int64) error {
	if _, err := d.conn.Exec("UPDATE txo SET spent = 1 WHERE idx = ?", idx); err != nil {
		return fmt.Errorf("mark txo %d spent: %w", idx, err)
	}
	slog.Debug("txo marked spent", "idx", idx)
	return nil
}

// SetTxoExists updates whether the chain indexer still reports this outpoint.
func (d *DB) SetTxoExists(idx int64, exists bool) error {
	if _, err := d.conn.Exec("UPDATE txo SET exists_ = ? WHERE idx = ?", exists, idx); err != nil {
		return fmt.Errorf("set txo %d exists=%v: %w", idx, exists, err)
	}
	return nil
}

// SetTxoPendingWitness flags a Txo as minted by a witness-receive not yet confirmed on chain.
func (d *DB) SetTxoPendingWitness(idx int64, pending bool) error {
	if _, err := d.conn.Exec("UPDATE txo SET pending_witness = ? WHERE idx = ?", pending, idx); err != nil {
		return fmt.Errorf("set txo %d pending_witness=%v: %w", idx, pending, err)
	}
	return nil
}
