// Package sqlitestore is a store sink that persists records into a SQLite
// database, the "document DB"-class backend named alongside the file
// store, reworked to a relational schema via modernc.org/sqlite (a
// pure-Go driver, so no cgo is required).
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/cloudwarden/cloudwarden/internal/pluginloader"
	"github.com/cloudwarden/cloudwarden/internal/record"
)

func init() {
	pluginloader.Register("plugins/sqlitestore.SQLiteStore", New)
}

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	audit_key     TEXT NOT NULL,
	audit_version TEXT NOT NULL,
	worker        TEXT NOT NULL,
	record_type   TEXT NOT NULL,
	raw_json      TEXT NOT NULL,
	ext_json      TEXT NOT NULL,
	com_json      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_audit_key ON records (audit_key);
`

// SQLiteStore writes every non-control record it receives as one row in a
// single "records" table.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// New constructs a SQLiteStore from its descriptor params: path (string,
// default "/tmp/cloudwarden/cloudwarden.db").
func New(params map[string]interface{}) (interface{}, error) {
	path := "/tmp/cloudwarden/cloudwarden.db"
	if v, ok := params["path"].(string); ok && v != "" {
		path = v
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlitestore: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Write implements plugin.Sink.
func (s *SQLiteStore) Write(ctx context.Context, rec record.Record) error {
	if rec.IsControl() {
		return nil
	}
	rawJSON, err := json.Marshal(rec.Raw)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal raw: %w", err)
	}
	extJSON, err := json.Marshal(rec.Ext)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal ext: %w", err)
	}
	comJSON, err := json.Marshal(rec.Com)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal com: %w", err)
	}

	recordType, _ := rec.Ext["record_type"].(string)

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (audit_key, audit_version, worker, record_type, raw_json, ext_json, com_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Com.AuditKey, rec.Com.AuditVersion, rec.Com.TargetWorker, recordType,
		string(rawJSON), string(extJSON), string(comJSON))
	if err != nil {
		return fmt.Errorf("sqlitestore: insert: %w", err)
	}
	return nil
}

// Done implements plugin.Sink.
func (s *SQLiteStore) Done() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db.Close()
}
