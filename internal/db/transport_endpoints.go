package db

import (
	"database/sql"
	"fmt"

	"github.com/rgbwallet/rgbwallet/internal/models"
)

// GetOrInsertTransportEndpoint resolves a (transport_type, endpoint) pair to its surrogate key,
// inserting it if not already known.
func (d *DB) GetOrInsertTransportEndpoint(transportType models.TransportType, endpoint string) (int64, error) {
	var idx int64
	err := d.conn.QueryRow("SELECT idx FROM transport_endpoint WHERE transport_type = ? AND endpoint = ?", string(transportType), endpoint).Scan(&idx)
	if err == nil {
		return idx, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("lookup transport endpoint %s: %w", endpoint, err)
	}

	res, err := d.conn.Exec("INSERT INTO transport_endpoint (transport_type, endpoint) VALUES (?, ?)", string(transportType), endpoint)
	if err != nil {
		return 0, fmt.Errorf("insert transport endpoint %s: %w", endpoint, err)
	}
	return res.LastInsertId()
}

// InsertTransferTransportEndpoint links a Transfer to a candidate TransportEndpoint.
func (d *DB) InsertTransferTransportEndpoint(tte models.TransferTransportEndpoint) (int64, error) {
	res, err := d.conn.Exec(
		"INSERT INTO transfer_transport_endpoint (transfer_idx, transport_endpoint_idx, used) VALUES (?, ?, ?)",
		tte.TransferIdx, tte.TransportEndpointIdx, tte.Used,
	)
	if err != nil {
		return 0, fmt.Errorf("insert transfer transport endpoint for transfer %d: %w", tte.TransferIdx, err)
	}
	return res.LastInsertId()
}

// ListTransferTransportEndpoints returns the candidate transport endpoints attempted for a transfer.
func (d *DB) ListTransferTransportEndpoints(transferIdx int64) ([]models.TransferTransportEndpoint, error) {
	rows, err := d.conn.Query("SELECT idx, transfer_idx, transport_endpoint_idx, used FROM transfer_transport_endpoint WHERE transfer_idx = ?", transferIdx)
	if err != nil {
		return nil, fmt.Errorf("list transfer transport endpoints for transfer %d: %w", transferIdx, err)
	}
	defer rows.Close()

	var out []models.TransferTransportEndpoint
	for rows.Next() {
		var tte models.TransferTransportEndpoint
		if err := rows.Scan(&tte.Idx, &tte.TransferIdx, &tte.TransportEndpointIdx, &tte.Used); err != nil {
			return nil, fmt.Errorf("scan transfer transport endpoint row: %w", err)
		}
		out = append(out, tte)
	}
	return out, rows.Err()
}

// MarkTransferTransportEndpointUsed flags the endpoint that successfully relayed the consignment.
func (d *DB) MarkTransferTransportEndpointUsed(idx int64) error {
	if _, err := d.conn.Exec("UPDATE transfer_transport_endpoint SET used = 1 WHERE idx = ?", idx); err != nil {
		return fmt.Errorf("mark transfer transport endpoint %d used: %w", idx, err)
	}
	return nil
}

// GetTransportEndpoint fetches a TransportEndpoint by surrogate key.
func (d *DB) GetTransportEndpoint(idx int64) (*models.TransportEndpoint, error) {
	var te models.TransportEndpoint
	te.Idx = idx
	var transportType string
	err := d.conn.QueryRow("SELECT transport_type, endpoint FROM transport_endpoint WHERE idx = ?", idx).Scan(&transportType, &te.Endpoint)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transport endpoint %d: %w", idx, err)
	}
	te.TransportType = models.TransportType(transportType)
	return &te, nil
}
