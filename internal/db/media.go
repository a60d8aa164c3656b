package db

import (
	"database/sql"
	"fmt"

	"github.com/rgbwallet/rgbwallet/internal/models"
)

// InsertMedia records a content-addressed file, returning its surrogate key.
// Re-inserting the same digest is idempotent and returns the existing key.
func (d *DB) InsertMedia(m models.Media) (int64, error) {
	res, err := d.conn.Exec(
		`INSERT INTO media (digest, mime) VALUES (?, ?) ON CONFLICT (digest) DO UPDATE SET mime = excluded.mime`,
		m.Digest, m.Mime,
	)
	if err != nil {
		return 0, fmt.Errorf("insert media %s: %w", m.Digest, err)
	}
	idx, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert media %s: last insert id: %w", m.Digest, err)
	}
	if idx == 0 {
		return d.GetMediaIdxByDigest(m.Digest)
	}
	return idx, nil
}

// GetMediaIdxByDigest resolves a Media surrogate key from its digest.
func (d *DB) GetMediaIdxByDigest(digest string) (int64, error) {
	var idx int64
	err := d.conn.QueryRow("SELECT idx FROM media WHERE digest = ?", digest).Scan(&idx)
	if err != nil {
		return 0, fmt.Errorf("get media idx for %s: %w", digest, err)
	}
	return idx, nil
}

// GetMedia fetches a Media record by surrogate key.
func (d *DB) GetMedia(idx int64) (*models.Media, error) {
	var m models.Media
	m.Idx = idx
	err := d.conn.QueryRow("SELECT digest, mime FROM media WHERE idx = ?", idx).Scan(&m.Digest, &m.Mime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get media %d: %w", idx, err)
	}
	return &m, nil
}

// ListMedia returns every recorded media row, for the on-disk consistency pass.
func (d *DB) ListMedia() ([]models.Media, error) {
	rows, err := d.conn.Query("SELECT idx, digest, mime FROM media")
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	var out []models.Media
	for rows.Next() {
		var m models.Media
		if err := rows.Scan(&m.Idx, &m.Digest, &m.Mime); err != nil {
			return nil, fmt.Errorf("scan media row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
