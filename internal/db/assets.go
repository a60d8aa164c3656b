package db

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/rgbwallet/rgbwallet/internal/models"
)

// InsertAsset records a newly issued or imported contract.
func (d *DB) InsertAsset(a models.Asset) (int64, error) {
	res, err := d.conn.Exec(
		`INSERT INTO asset (id, schema, name, ticker, details, media_idx, precision, issued_supply, timestamp, added_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Schema), a.Name, a.Ticker, a.Details, a.MediaIdx, a.Precision, a.IssuedSupply, a.Timestamp, a.AddedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert asset %s: %w", a.ID, err)
	}
	idx, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert asset %s: last insert id: %w", a.ID, err)
	}
	slog.Info("asset recorded", "assetId", a.ID, "schema", a.Schema)
	return idx, nil
}

func scanAsset(row interface{ Scan(...any) error }) (*models.Asset, error) {
	var a models.Asset
	var schema string
	var mediaIdx sql.NullInt64
	if err := row.Scan(&a.Idx, &a.ID, &schema, &a.Name, &a.Ticker, &a.Details, &mediaIdx, &a.Precision, &a.IssuedSupply, &a.Timestamp, &a.AddedAt); err != nil {
		return nil, err
	}
	a.Schema = models.Schema(schema)
	if mediaIdx.Valid {
		a.MediaIdx = &mediaIdx.Int64
	}
	return &a, nil
}

// GetAssetByID fetches an Asset by its contract id, or nil if unknown.
func (d *DB) GetAssetByID(id string) (*models.Asset, error) {
	row := d.conn.QueryRow(
		"SELECT idx, id, schema, name, ticker, details, media_idx, precision, issued_supply, timestamp, added_at FROM asset WHERE id = ?", id,
	)
	a, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get asset %s: %w", id, err)
	}
	return a, nil
}

// ListAssets returns every known contract, filtered by schema when schema is non-empty.
func (d *DB) ListAssets(schema models.Schema) ([]models.Asset, error) {
	query := "SELECT idx, id, schema, name, ticker, details, media_idx, precision, issued_supply, timestamp, added_at FROM asset"
	var rows *sql.Rows
	var err error
	if schema != "" {
		rows, err = d.conn.Query(query+" WHERE schema = ?", string(schema))
	} else {
		rows, err = d.conn.Query(query)
	}
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var out []models.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset row: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// UpdateAssetIssuedSupply bumps the recorded issued_supply after an IFA inflation transition.
func (d *DB) UpdateAssetIssuedSupply(id, newIssuedSupply string) error {
	if _, err := d.conn.Exec("UPDATE asset SET issued_supply = ? WHERE id = ?", newIssuedSupply, id); err != nil {
		return fmt.Errorf("update issued supply for %s: %w", id, err)
	}
	return nil
}

// InsertToken records the single token carried by a UDA asset.
func (d *DB) InsertToken(t models.Token) (int64, error) {
	res, err := d.conn.Exec(
		`INSERT INTO token (asset_idx, token_index, ticker, name, details, embedded_media, reserves) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.AssetIdx, t.Index, t.Ticker, t.Name, t.Details, t.EmbeddedMedia, t.Reserves,
	)
	if err != nil {
		return 0, fmt.Errorf("insert token for asset %d: %w", t.AssetIdx, err)
	}
	return res.LastInsertId()
}

// GetTokenByAssetIdx fetches the (single) token belonging to a UDA asset.
func (d *DB) GetTokenByAssetIdx(assetIdx int64) (*models.Token, error) {
	var t models.Token
	err := d.conn.QueryRow(
		"SELECT idx, asset_idx, token_index, ticker, name, details, embedded_media, reserves FROM token WHERE asset_idx = ?",
		assetIdx,
	).Scan(&t.Idx, &t.AssetIdx, &t.Index, &t.Ticker, &t.Name, &t.Details, &t.EmbeddedMedia, &t.Reserves)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get token for asset %d: %w", assetIdx, err)
	}
	return &t, nil
}

// InsertTokenMedia links a Token to a Media attachment.
func (d *DB) InsertTokenMedia(tm models.TokenMedia) (int64, error) {
	res, err := d.conn.Exec(
		"INSERT INTO token_media (token_idx, media_idx, attachment_id) VALUES (?, ?, ?)",
		tm.TokenIdx, tm.MediaIdx, tm.AttachmentID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert token_media for token %d: %w", tm.TokenIdx, err)
	}
	return res.LastInsertId()
}

// ListTokenMedia returns all media attachments for a token.
func (d *DB) ListTokenMedia(tokenIdx int64) ([]models.TokenMedia, error) {
	rows, err := d.conn.Query("SELECT idx, token_idx, media_idx, attachment_id FROM token_media WHERE token_idx = ?", tokenIdx)
	if err != nil {
		return nil, fmt.Errorf("list token_media for token %d: %w", tokenIdx, err)
	}
	defer rows.Close()

	var out []models.TokenMedia
	for rows.Next() {
		var tm models.TokenMedia
		if err := rows.Scan(&tm.Idx, &tm.TokenIdx, &tm.MediaIdx, &tm.AttachmentID); err != nil {
			return nil, fmt.Errorf("scan token_media row: %w", err)
		}
		out = append(out, tm)
	}
	return out, rows.Err()
}
