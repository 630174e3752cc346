package advice

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteTimeLayout is fixed width so that created_at sorts lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store in a local SQLite file. Single-node deployments have no
// patient registry, so advice is accepted for any positive patient id.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// NewSQLiteStore creates a new SQLite advice store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// sqliteDSN sets the pragmas per connection so concurrent writers wait for the lock.
func sqliteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS patient_advice (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		patient_id INTEGER NOT NULL,
		advice_text TEXT NOT NULL,
		author TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_patient_advice_patient ON patient_advice(patient_id, created_at DESC, id DESC);
	`

	_, err := db.Exec(schema)
	return err
}

// Add inserts advice.
func (s *SQLiteStore) Add(ctx context.Context, a *Advice) error {
	now := s.now()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO patient_advice (patient_id, advice_text, author, created_at)
		VALUES (?, ?, ?, ?)
	`, a.PatientID, a.Text, a.Author, now.Format(sqliteTimeLayout))
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	a.ID = id
	a.CreatedAt = now
	return nil
}

// List returns a patient's advice newest first.
func (s *SQLiteStore) List(ctx context.Context, patientID int64, limit int) ([]*Advice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, patient_id, advice_text, author, created_at
		FROM patient_advice
		WHERE patient_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	return scanSQLite(rows)
}

// ExportJSON exports all advice to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, patient_id, advice_text, author, created_at
		FROM patient_advice
		ORDER BY patient_id, created_at DESC, id DESC
	`)
	if err != nil {
		return fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	all, err := scanSQLite(rows)
	if err != nil {
		return err
	}
	return writeExport(writer, all)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanSQLite(rows *sql.Rows) ([]*Advice, error) {
	var result []*Advice
	for rows.Next() {
		a := &Advice{}
		var created string
		if err := rows.Scan(&a.ID, &a.PatientID, &a.Text, &a.Author, &created); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		t, err := time.Parse(sqliteTimeLayout, created)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at %q: %w", created, err)
		}
		a.CreatedAt = t
		result = append(result, a)
	}
	return result, rows.Err()
}
