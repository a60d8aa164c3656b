package db

import (
	"fmt"

	"github.com/rgbwallet/rgbwallet/internal/models"
)

// GetBackupInfo returns the single backup-tracking row seeded by the initial migration.
func (d *DB) GetBackupInfo() (*models.BackupInfo, error) {
	var b models.BackupInfo
	err := d.conn.QueryRow("SELECT last_backup_timestamp, last_operation_timestamp FROM backup_info WHERE idx = 0").
		Scan(&b.LastBackupTimestamp, &b.LastOperationTimestamp)
	if err != nil {
		return nil, fmt.Errorf("get backup info: %w", err)
	}
	return &b, nil
}

// TouchOperationTimestamp records that a mutating wallet operation just occurred, so the
// backup-due check (last_operation_timestamp > last_backup_timestamp) can detect drift.
func (d *DB) TouchOperationTimestamp(timestamp string) error {
	if _, err := d.conn.Exec("UPDATE backup_info SET last_operation_timestamp = ? WHERE idx = 0", timestamp); err != nil {
		return fmt.Errorf("touch operation timestamp: %w", err)
	}
	return nil
}

// TouchBackupTimestamp records that a backup was just taken.
func (d *DB) TouchBackupTimestamp(timestamp string) error {
	if _, err := d.conn.Exec("UPDATE backup_info SET last_backup_timestamp = ? WHERE idx = 0", timestamp); err != nil {
		return fmt.Errorf("touch backup timestamp: %w", err)
	}
	return nil
}
