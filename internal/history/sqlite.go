package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vitalis-app/dockdash/internal/models"
)

// SQLitePersister stores the history in a SQLite database, one row per
// record. Each save replaces all rows inside a single transaction.
type SQLitePersister struct {
	db *sql.DB

	recovered string
	openErr   error
}

// NewSQLitePersister opens (or creates) the database at path. A file that
// is not a usable database is renamed to path.corrupt-<unix> and a fresh
// database is created in its place.
func NewSQLitePersister(path string) (*SQLitePersister, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := openDatabase(path)
	if err == nil {
		return &SQLitePersister{db: db}, nil
	}

	if _, statErr := os.Stat(path); statErr != nil {
		return nil, err
	}
	aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	if renameErr := os.Rename(path, aside); renameErr != nil {
		return nil, fmt.Errorf("%w (moving it aside: %v)", err, renameErr)
	}

	db, retryErr := openDatabase(path)
	if retryErr != nil {
		return nil, retryErr
	}
	return &SQLitePersister{db: db, recovered: aside, openErr: err}, nil
}

// Recovered returns the path the unusable database was moved to, and the
// error that caused it. Both are empty when the database opened cleanly.
func (p *SQLitePersister) Recovered() (string, error) {
	return p.recovered, p.openErr
}

func openDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	// A single connection serializes writers and keeps the schema visible
	// for in-memory databases.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS host_history (
		seq INTEGER PRIMARY KEY,
		timestamp INTEGER NOT NULL,
		record TEXT NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating history schema: %w", err)
	}
	return nil
}

// Load returns all rows in insertion order.
func (p *SQLitePersister) Load(ctx context.Context) ([]models.HostMetrics, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT record FROM host_history ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var records []models.HostMetrics
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		var r models.HostMetrics
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("parsing history row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Save replaces all rows with records in one transaction.
func (p *SQLitePersister) Save(ctx context.Context, records []models.HostMetrics) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning history transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM host_history`); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO host_history (seq, timestamp, record) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing history insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshaling history record: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, i, r.Timestamp, string(data)); err != nil {
			return fmt.Errorf("inserting history record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing history: %w", err)
	}
	return nil
}

// Close closes the database.
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}
