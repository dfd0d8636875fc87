package database

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Record is one persisted artifact in the index.
type Record struct {
	ID        int64
	Filename  string
	Source    string
	Classes   []string
	Timestamp time.Time
	FileSize  int64
}

// Database indexes persisted artifacts in SQLite. The filesystem remains the
// source of truth; the index backs retention bookkeeping and status queries.
type Database struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (creating if needed) the index at dbPath.
func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	database := &Database{db: db}
	if err := database.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return database, nil
}

func (d *Database) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS artifacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL UNIQUE,
		source TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		filesize INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS artifact_classes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		artifact_id INTEGER NOT NULL,
		class_name TEXT NOT NULL,
		FOREIGN KEY (artifact_id) REFERENCES artifacts(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_artifacts_timestamp ON artifacts(timestamp);
	CREATE INDEX IF NOT EXISTS idx_artifact_classes_name ON artifact_classes(class_name);
	CREATE INDEX IF NOT EXISTS idx_artifact_classes_artifact_id ON artifact_classes(artifact_id);
	`
	_, err := d.db.Exec(schema)
	return err
}

// Insert adds a new artifact record.
func (d *Database) Insert(rec *Record) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO artifacts (filename, source, timestamp, filesize)
		VALUES (?, ?, ?, ?)
	`, rec.Filename, rec.Source, rec.Timestamp, rec.FileSize)
	if err != nil {
		return 0, fmt.Errorf("failed to insert artifact: %w", err)
	}

	artifactID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	for _, class := range rec.Classes {
		_, err := tx.Exec(`
			INSERT INTO artifact_classes (artifact_id, class_name)
			VALUES (?, ?)
		`, artifactID, class)
		if err != nil {
			return 0, fmt.Errorf("failed to insert class: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return artifactID, nil
}

// Delete removes the record for a filename. Deleting an unknown filename is
// not an error; retention may race a record that never made it to the index.
func (d *Database) Delete(filename string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM artifact_classes WHERE artifact_id IN
			(SELECT id FROM artifacts WHERE filename = ?)
	`, filename); err != nil {
		return fmt.Errorf("failed to delete classes: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM artifacts WHERE filename = ?`, filename); err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return tx.Commit()
}

// ListOldest returns up to limit records, oldest timestamp first. A limit of
// zero or less returns everything.
func (d *Database) ListOldest(limit int) ([]Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	query := `SELECT id, filename, source, timestamp, filesize FROM artifacts ORDER BY timestamp ASC, filename ASC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Filename, &rec.Source, &rec.Timestamp, &rec.FileSize); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Totals returns the artifact count and summed file size in the index.
func (d *Database) Totals() (count int64, bytes int64, err error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	row := d.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(filesize), 0) FROM artifacts`)
	if err := row.Scan(&count, &bytes); err != nil {
		return 0, 0, fmt.Errorf("failed to read totals: %w", err)
	}
	return count, bytes, nil
}

// Close closes the underlying handle.
func (d *Database) Close() error {
	return d.db.Close()
}
