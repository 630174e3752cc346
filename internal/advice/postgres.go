package advice

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"

	"github.com/gh-risk-server/internal/domain"
)

// PostgresStore implements Store on the migrated patient_advice table. Advice is only
// accepted for patients present in the patients table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open connection.
// It expects the database and schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL opens a lib/pq connection pool and wraps it.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Add inserts advice when the patient exists.
func (s *PostgresStore) Add(ctx context.Context, a *Advice) error {
	query := `
		INSERT INTO patient_advice (patient_id, advice_text, author)
		SELECT $1, $2, $3
		WHERE EXISTS (SELECT 1 FROM patients WHERE id = $1)
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query, a.PatientID, a.Text, a.Author).Scan(&a.ID, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("patient %d: %w", a.PatientID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to save advice: %w", err)
	}
	return nil
}

// List returns a patient's advice newest first, or domain.ErrNotFound for an unknown patient.
func (s *PostgresStore) List(ctx context.Context, patientID int64, limit int) ([]*Advice, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1)", patientID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to look up patient: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("patient %d: %w", patientID, domain.ErrNotFound)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, patient_id, advice_text, author, created_at
		FROM patient_advice
		WHERE patient_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list advice: %w", err)
	}
	defer rows.Close()

	return scanAll(rows)
}

// ExportJSON exports all advice to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, patient_id, advice_text, author, created_at
		FROM patient_advice
		ORDER BY patient_id, created_at DESC, id DESC
	`)
	if err != nil {
		return fmt.Errorf("failed to list advice: %w", err)
	}
	defer rows.Close()

	all, err := scanAll(rows)
	if err != nil {
		return err
	}
	return writeExport(writer, all)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func scanAll(rows *sql.Rows) ([]*Advice, error) {
	var result []*Advice
	for rows.Next() {
		a := &Advice{}
		if err := rows.Scan(&a.ID, &a.PatientID, &a.Text, &a.Author, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func writeExport(writer io.Writer, all []*Advice) error {
	if all == nil {
		all = []*Advice{}
	}
	export := &Export{
		Version:    "1.0",
		ExportedAt: time.Now().UTC(),
		Count:      len(all),
		Advice:     all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}
