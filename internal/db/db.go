// Package db persists drive mappings and encrypted-container mappings in
// SQLite so a device map can be saved after one run and loaded by the next.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultPath is the default database location
const DefaultPath = "/var/lib/rootdev/devicemap.db"

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
	path string
}

// New opens or creates the SQLite database at the given path
func New(path string) (*DB, error) {
	if path == "" {
		path = DefaultPath
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	db := &DB{conn: conn, path: path}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.conn.Close()
}

// Path returns the database file path
func (d *DB) Path() string {
	return d.path
}

// migrate runs the database schema migrations
func (d *DB) migrate() error {
	_, err := d.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	var version int
	err = d.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return err
	}

	migrations := []string{
		migrationV1,
		migrationV2,
	}

	for i, migration := range migrations {
		v := i + 1
		if v <= version {
			continue
		}

		tx, err := d.conn.Begin()
		if err != nil {
			return err
		}

		if _, err := tx.Exec(migration); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d failed: %w", v, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", v); err != nil {
			tx.Rollback()
			return err
		}

		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}

// migrationV1 creates the initial schema
const migrationV1 = `
-- Drive names: one row per firmware drive
CREATE TABLE IF NOT EXISTS device_map (
    id INTEGER PRIMARY KEY,
    drive TEXT UNIQUE NOT NULL,
    os_disk TEXT UNIQUE NOT NULL,
    size_bytes INTEGER,
    source TEXT DEFAULT 'registry',
    first_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_device_map_disk ON device_map(os_disk);

-- Encrypted containers and the drive device they were found on
CREATE TABLE IF NOT EXISTS crypto_mounts (
    id INTEGER PRIMARY KEY,
    os_dev TEXT UNIQUE NOT NULL,
    grub_dev TEXT NOT NULL,
    recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// migrationV2 adds mapping history
const migrationV2 = `
CREATE TABLE IF NOT EXISTS device_map_events (
    id INTEGER PRIMARY KEY,
    drive TEXT NOT NULL,
    event_type TEXT NOT NULL,
    old_disk TEXT,
    new_disk TEXT,
    timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_map_events_drive ON device_map_events(drive);
CREATE INDEX IF NOT EXISTS idx_map_events_time ON device_map_events(timestamp);
`

// Mapping is a drive row.
type Mapping struct {
	ID        int64
	Drive     string
	OSDisk    string
	SizeBytes int64
	Source    string
	FirstSeen time.Time
	LastSeen  time.Time
}

// CryptoRecord is an encrypted container row.
type CryptoRecord struct {
	ID         int64
	OSDev      string
	GrubDev    string
	RecordedAt time.Time
}

// MapEvent records a change to a drive's disk.
type MapEvent struct {
	ID        int64
	Drive     string
	EventType string
	OldDisk   string
	NewDisk   string
	Timestamp time.Time
}

// Event types
const (
	EventDiscovered = "discovered"
	EventMoved      = "moved"
	EventRemoved    = "removed"
)

// Mapping sources
const (
	SourceRegistry  = "registry"
	SourceDeviceMap = "devicemap"
	SourceDiscovery = "discovery"
)
