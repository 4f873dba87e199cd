package db

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertMapping inserts or updates a drive row. A drive whose disk
// changes is recorded as moved.
func (d *DB) UpsertMapping(m *Mapping) error {
	existing, err := d.GetMapping(m.Drive)
	if err != nil {
		return err
	}

	now := time.Now()
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Another drive may own the disk already; it loses it.
	if _, err := tx.Exec(`DELETE FROM device_map WHERE os_disk = ? AND drive != ?`, m.OSDisk, m.Drive); err != nil {
		return fmt.Errorf("failed to release disk %s: %w", m.OSDisk, err)
	}

	result, err := tx.Exec(`
		INSERT INTO device_map (drive, os_disk, size_bytes, source, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(drive) DO UPDATE SET
			os_disk = excluded.os_disk,
			size_bytes = COALESCE(excluded.size_bytes, size_bytes),
			source = excluded.source,
			last_seen = excluded.last_seen
	`, m.Drive, m.OSDisk, nullInt64(m.SizeBytes), sourceOrDefault(m.Source), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert mapping: %w", err)
	}

	switch {
	case existing == nil:
		err = recordEvent(tx, m.Drive, EventDiscovered, "", m.OSDisk)
	case existing.OSDisk != m.OSDisk:
		err = recordEvent(tx, m.Drive, EventMoved, existing.OSDisk, m.OSDisk)
	}
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if m.ID == 0 {
		if existing != nil {
			m.ID = existing.ID
		} else if id, err := result.LastInsertId(); err == nil {
			m.ID = id
		}
	}
	return nil
}

// GetMapping returns the row for drive, nil when there is none.
func (d *DB) GetMapping(drive string) (*Mapping, error) {
	row := d.conn.QueryRow(`
		SELECT id, drive, os_disk, size_bytes, source, first_seen, last_seen
		FROM device_map WHERE drive = ?
	`, drive)
	m, err := scanMapping(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// GetAllMappings returns every drive row ordered by drive name.
func (d *DB) GetAllMappings() ([]*Mapping, error) {
	rows, err := d.conn.Query(`
		SELECT id, drive, os_disk, size_bytes, source, first_seen, last_seen
		FROM device_map ORDER BY drive
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query mappings: %w", err)
	}
	defer rows.Close()

	var out []*Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteMapping removes a drive row.
func (d *DB) DeleteMapping(drive string) error {
	existing, err := d.GetMapping(drive)
	if err != nil || existing == nil {
		return err
	}
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM device_map WHERE drive = ?`, drive); err != nil {
		return fmt.Errorf("failed to delete mapping: %w", err)
	}
	if err := recordEvent(tx, drive, EventRemoved, existing.OSDisk, ""); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveCrypto records an encrypted container, replacing an earlier record
// for the same device.
func (d *DB) SaveCrypto(osDev, grubDev string) error {
	_, err := d.conn.Exec(`
		INSERT INTO crypto_mounts (os_dev, grub_dev, recorded_at) VALUES (?, ?, ?)
		ON CONFLICT(os_dev) DO UPDATE SET
			grub_dev = excluded.grub_dev,
			recorded_at = excluded.recorded_at
	`, osDev, grubDev, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save crypto mount: %w", err)
	}
	return nil
}

// GetCryptoMounts returns every encrypted container record.
func (d *DB) GetCryptoMounts() ([]*CryptoRecord, error) {
	rows, err := d.conn.Query(`SELECT id, os_dev, grub_dev, recorded_at FROM crypto_mounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query crypto mounts: %w", err)
	}
	defer rows.Close()

	var out []*CryptoRecord
	for rows.Next() {
		c := &CryptoRecord{}
		if err := rows.Scan(&c.ID, &c.OSDev, &c.GrubDev, &c.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetEvents returns the history of drive, newest first. An empty drive
// returns events for all drives.
func (d *DB) GetEvents(drive string, limit int) ([]*MapEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.conn.Query(`
		SELECT id, drive, event_type, old_disk, new_disk, timestamp
		FROM device_map_events
		WHERE ? = '' OR drive = ?
		ORDER BY id DESC
		LIMIT ?
	`, drive, drive, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []*MapEvent
	for rows.Next() {
		e := &MapEvent{}
		var oldDisk, newDisk sql.NullString
		if err := rows.Scan(&e.ID, &e.Drive, &e.EventType, &oldDisk, &newDisk, &e.Timestamp); err != nil {
			return nil, err
		}
		e.OldDisk = oldDisk.String
		e.NewDisk = newDisk.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func recordEvent(tx *sql.Tx, drive, eventType, oldDisk, newDisk string) error {
	_, err := tx.Exec(`
		INSERT INTO device_map_events (drive, event_type, old_disk, new_disk)
		VALUES (?, ?, ?, ?)
	`, drive, eventType, nullString(oldDisk), nullString(newDisk))
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMapping(s scanner) (*Mapping, error) {
	m := &Mapping{}
	var size sql.NullInt64
	var source sql.NullString
	if err := s.Scan(&m.ID, &m.Drive, &m.OSDisk, &size, &source, &m.FirstSeen, &m.LastSeen); err != nil {
		return nil, err
	}
	m.SizeBytes = size.Int64
	m.Source = source.String
	return m, nil
}

func sourceOrDefault(s string) string {
	if s == "" {
		return SourceRegistry
	}
	return s
}

// Helper functions for nullable values
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(i int64) sql.NullInt64 {
	if i == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: i, Valid: true}
}
