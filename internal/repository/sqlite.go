package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/gh-risk-server/internal/domain"
)

// sqliteTimeLayout is fixed width so that created_at sorts lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore persists predictions in a local SQLite file for single-node deployments.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	policy domain.StorePolicy
	table  string
	log    *logrus.Logger
	now    func() time.Time
}

// NewSQLiteStore opens (or creates) the database file and its schema.
func NewSQLiteStore(dbPath string, policy domain.StorePolicy, logger *logrus.Logger) (*SQLiteStore, error) {
	table, err := tableFor(policy)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
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

	logger.WithFields(logrus.Fields{
		"path":   dbPath,
		"policy": policy,
	}).Info("SQLite prediction store opened")

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
		policy: policy,
		table:  table,
		log:    logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// sqliteDSN applies the pragmas on every pooled connection, not only the first. Writers
// take the lock at BEGIN and wait up to busy_timeout instead of failing with SQLITE_BUSY.
func sqliteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// createSchema creates both policy tables so that a file can be reopened under either policy.
func createSchema(db *sql.DB) error {
	const columns = `
		patient_id INTEGER NOT NULL%s,
		risk_class TEXT NOT NULL,
		risk_score REAL NOT NULL,
		raw_score REAL NOT NULL,
		priority INTEGER NOT NULL,
		priority_by_rules INTEGER NOT NULL,
		priority_by_score INTEGER,
		priority_source TEXT NOT NULL,
		reasons TEXT NOT NULL DEFAULT '[]',
		thresholds TEXT NOT NULL DEFAULT '{}',
		policy TEXT NOT NULL,
		calibrated INTEGER NOT NULL DEFAULT 0,
		model_name TEXT NOT NULL DEFAULT '',
		model_version TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT 'api',
		input TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL`

	schema := `
	CREATE TABLE IF NOT EXISTS patient_risk (
		id INTEGER PRIMARY KEY AUTOINCREMENT,` + fmt.Sprintf(columns, " UNIQUE") + `
	);

	CREATE TABLE IF NOT EXISTS gh_predictions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,` + fmt.Sprintf(columns, "") + `
	);

	CREATE INDEX IF NOT EXISTS idx_gh_predictions_patient_latest
		ON gh_predictions(patient_id, created_at DESC, id DESC);
	`

	_, err := db.Exec(schema)
	return err
}

// Policy returns the storage policy this store applies.
func (s *SQLiteStore) Policy() domain.StorePolicy {
	return s.policy
}

// Save persists an assessment and stamps it with the stored id and created_at.
func (s *SQLiteStore) Save(ctx context.Context, a *domain.Assessment) error {
	rec, err := toRecord(a)
	if err != nil {
		return err
	}
	rec.CreatedAt = s.now()
	args := append(rec.args(), rec.CreatedAt.Format(sqliteTimeLayout))

	if s.policy == domain.StoreKeepLatest {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO patient_risk (`+insertColumns+`, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(patient_id) DO UPDATE SET
				risk_class = excluded.risk_class,
				risk_score = excluded.risk_score,
				raw_score = excluded.raw_score,
				priority = excluded.priority,
				priority_by_rules = excluded.priority_by_rules,
				priority_by_score = excluded.priority_by_score,
				priority_source = excluded.priority_source,
				reasons = excluded.reasons,
				thresholds = excluded.thresholds,
				policy = excluded.policy,
				calibrated = excluded.calibrated,
				model_name = excluded.model_name,
				model_version = excluded.model_version,
				source = excluded.source,
				input = excluded.input,
				created_at = excluded.created_at
		`, args...)
		if err == nil {
			err = s.db.QueryRowContext(ctx,
				"SELECT id FROM patient_risk WHERE patient_id = ?", rec.PatientID,
			).Scan(&rec.ID)
		}
	} else {
		var res sql.Result
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO gh_predictions (`+insertColumns+`, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, args...)
		if err == nil {
			rec.ID, err = res.LastInsertId()
		}
	}
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"patient_id": rec.PatientID,
			"table":      s.table,
			"error":      err,
		}).Error("Failed to save prediction")
		return fmt.Errorf("saving prediction: %w", err)
	}

	a.ID = rec.ID
	created := rec.CreatedAt
	a.CreatedAt = &created
	return nil
}

// Latest returns the most recent assessment for a patient, or domain.ErrNotFound.
func (s *SQLiteStore) Latest(ctx context.Context, patientID int64) (*domain.Assessment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM `+s.table+`
		WHERE patient_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, patientID)

	rec, err := scanSQLiteRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no assessment for patient %d: %w", patientID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return rec.assessment()
}

// History returns up to limit assessments for a patient, newest first.
func (s *SQLiteStore) History(ctx context.Context, patientID int64, limit int) ([]*domain.Assessment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM `+s.table+`
		WHERE patient_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, patientID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var out []*domain.Assessment
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		a, err := rec.assessment()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Ping checks that the database file is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(sc scanner) (*record, error) {
	var (
		rec        record
		byScore    sql.NullBool
		createdRaw string
	)
	err := sc.Scan(
		&rec.ID, &rec.PatientID, &rec.RiskClass, &rec.RiskScore, &rec.RawScore, &rec.Priority,
		&rec.PriorityByRules, &byScore, &rec.PrioritySource, &rec.Reasons, &rec.Thresholds, &rec.Policy,
		&rec.Calibrated, &rec.ModelName, &rec.ModelVersion, &rec.Source, &rec.Input, &createdRaw,
	)
	if err != nil {
		return nil, err
	}

	if byScore.Valid {
		v := byScore.Bool
		rec.PriorityByScore = &v
	}

	rec.CreatedAt, err = time.Parse(sqliteTimeLayout, createdRaw)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdRaw, err)
	}
	return &rec, nil
}
