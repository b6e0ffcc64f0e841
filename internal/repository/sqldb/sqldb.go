// Package sqldb is an EntityDatabase backed by SQLite or MySQL
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"netconform/internal/evidence"
	"netconform/internal/repository"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

const pendingBatch = 256

// Database implements repository.EntityDatabase over database/sql
type Database struct {
	db      *sql.DB
	dialect dialect

	mu      sync.Mutex
	ids     map[string]int
	filter  map[string]bool
	cursor  int64
	pending []repository.Record
}

// New opens a database. driver is "sqlite" or "mysql"; dsn is a file path
// for SQLite and a go-sql-driver DSN for MySQL.
func New(driver, dsn string) (*Database, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sql.Open(d.driver, d.dsn(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == "sqlite" {
		// a single connection keeps :memory: databases and writers coherent
		db.SetMaxOpenConns(1)
	}

	repo := &Database{
		db:      db,
		dialect: d,
		ids:     make(map[string]int),
		filter:  make(map[string]bool),
	}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := repo.loadLabels(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *Database) migrate() error {
	for _, stmt := range r.dialect.schema {
		if _, err := r.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *Database) loadLabels(ctx context.Context) error {
	rows, err := r.db.QueryContext(ctx, `SELECT label, enabled FROM source_labels`)
	if err != nil {
		return fmt.Errorf("failed to query labels: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			label   string
			enabled int
		)
		if err := rows.Scan(&label, &enabled); err != nil {
			return fmt.Errorf("failed to scan label: %w", err)
		}
		r.filter[label] = enabled != 0
	}
	return rows.Err()
}

// GetID implements repository.EntityDatabase
func (r *Database) GetID(ctx context.Context, key repository.Key) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key.String()
	if id, ok := r.ids[k]; ok {
		return id, nil
	}

	var id int
	err := r.db.QueryRowContext(ctx, `SELECT id FROM entity_ids WHERE entity_key = ?`, k).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := r.db.ExecContext(ctx, `INSERT INTO entity_ids (entity_key, kind) VALUES (?, ?)`,
			k, key.Kind.String())
		if err != nil {
			return 0, fmt.Errorf("failed to insert entity key: %w", err)
		}
		last, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to read entity id: %w", err)
		}
		id = int(last)
	case err != nil:
		return 0, fmt.Errorf("failed to query entity id: %w", err)
	}

	r.ids[k] = id
	return id, nil
}

// PutEvent implements repository.EntityDatabase
func (r *Database) PutEvent(ctx context.Context, rec repository.Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO events (label, model, kind, data) VALUES (?, ?, ?, ?)
	`, rec.Label, boolToInt(rec.Model), rec.Kind, string(rec.Data)); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	r.mu.Lock()
	_, known := r.filter[rec.Label]
	r.mu.Unlock()
	if !known {
		if _, err := tx.ExecContext(ctx, r.dialect.insertLabel, rec.Label, 1); err != nil {
			return fmt.Errorf("failed to insert label: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	if !known {
		r.mu.Lock()
		r.filter[rec.Label] = true
		r.mu.Unlock()
	}
	return nil
}

// Reset implements repository.EntityDatabase
func (r *Database) Reset(ctx context.Context, filter map[string]bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for label, on := range filter {
		if _, err := tx.ExecContext(ctx, r.dialect.upsertLabel, label, boolToInt(on)); err != nil {
			return fmt.Errorf("failed to store label %s: %w", label, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.mu.Lock()
	for label, on := range filter {
		r.filter[label] = on
	}
	r.cursor = 0
	r.pending = nil
	r.mu.Unlock()
	return nil
}

// NextPending implements repository.EntityDatabase
func (r *Database) NextPending(ctx context.Context) (repository.Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		for len(r.pending) > 0 {
			rec := r.pending[0]
			r.pending = r.pending[1:]
			if rec.Model || rec.Label == evidence.ModelLabel || r.filter[rec.Label] {
				return rec, true, nil
			}
		}
		batch, err := r.fetch(ctx, r.cursor)
		if err != nil {
			return repository.Record{}, false, err
		}
		if len(batch) == 0 {
			return repository.Record{}, false, nil
		}
		r.cursor = batch[len(batch)-1].Seq
		r.pending = batch
	}
}

func (r *Database) fetch(ctx context.Context, after int64) ([]repository.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT seq, label, model, kind, data FROM events
		WHERE seq > ? ORDER BY seq LIMIT ?
	`, after, pendingBatch)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []repository.Record
	for rows.Next() {
		var (
			rec   repository.Record
			model int
			data  string
		)
		if err := rows.Scan(&rec.Seq, &rec.Label, &model, &rec.Kind, &data); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		rec.Model = model != 0
		rec.Data = []byte(data)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return out, nil
}

// Labels implements repository.EntityDatabase
func (r *Database) Labels(_ context.Context) (map[string]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]bool, len(r.filter))
	for k, v := range r.filter {
		out[k] = v
	}
	return out, nil
}

// PurgeModelEvents implements repository.EntityDatabase
func (r *Database) PurgeModelEvents(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE model = 1`); err != nil {
		return fmt.Errorf("failed to purge model events: %w", err)
	}
	r.mu.Lock()
	r.cursor = 0
	r.pending = nil
	r.mu.Unlock()
	return nil
}

// Close closes the database connection
func (r *Database) Close() error {
	return r.db.Close()
}

// dialect holds the statements that differ between drivers
type dialect struct {
	driver      string
	schema      []string
	insertLabel string
	upsertLabel string
	dsn         func(string) string
}

var dialects = map[string]dialect{
	"sqlite": {
		driver: "sqlite",
		schema: []string{`
		CREATE TABLE IF NOT EXISTS entity_ids (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_key TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`, `
		CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			label TEXT NOT NULL,
			model INTEGER NOT NULL DEFAULT 0,
			kind TEXT NOT NULL,
			data TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`, `
		CREATE TABLE IF NOT EXISTS source_labels (
			label TEXT PRIMARY KEY,
			enabled INTEGER NOT NULL DEFAULT 1
		)`,
			`CREATE INDEX IF NOT EXISTS idx_events_model ON events(model)`,
		},
		insertLabel: `INSERT INTO source_labels (label, enabled) VALUES (?, ?) ON CONFLICT(label) DO NOTHING`,
		upsertLabel: `INSERT INTO source_labels (label, enabled) VALUES (?, ?)
			ON CONFLICT(label) DO UPDATE SET enabled = excluded.enabled`,
		dsn: func(path string) string {
			if path == ":memory:" || strings.Contains(path, "?") {
				return path
			}
			return path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		},
	},
	"mysql": {
		driver: "mysql",
		schema: []string{`
		CREATE TABLE IF NOT EXISTS entity_ids (
			id INT AUTO_INCREMENT PRIMARY KEY,
			entity_key VARCHAR(512) NOT NULL UNIQUE,
			kind VARCHAR(32) NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`, `
		CREATE TABLE IF NOT EXISTS events (
			seq BIGINT AUTO_INCREMENT PRIMARY KEY,
			label VARCHAR(255) NOT NULL,
			model TINYINT NOT NULL DEFAULT 0,
			kind VARCHAR(32) NOT NULL,
			data MEDIUMTEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_events_model (model)
		)`, `
		CREATE TABLE IF NOT EXISTS source_labels (
			label VARCHAR(255) PRIMARY KEY,
			enabled TINYINT NOT NULL DEFAULT 1
		)`,
		},
		insertLabel: `INSERT IGNORE INTO source_labels (label, enabled) VALUES (?, ?)`,
		upsertLabel: `INSERT INTO source_labels (label, enabled) VALUES (?, ?)
			ON DUPLICATE KEY UPDATE enabled = VALUES(enabled)`,
		dsn: func(dsn string) string { return dsn },
	},
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
