package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/gh-risk-server/internal/domain"
)

// PostgresStore persists predictions in PostgreSQL through a pgx pool.
type PostgresStore struct {
	db     *pgxpool.Pool
	policy domain.StorePolicy
	table  string
	log    *logrus.Logger
}

// NewPostgresStore creates a prediction store for the given policy. The tables are created
// by the migrations under migrations/.
func NewPostgresStore(db *pgxpool.Pool, policy domain.StorePolicy, logger *logrus.Logger) (*PostgresStore, error) {
	table, err := tableFor(policy)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{
		db:     db,
		policy: policy,
		table:  table,
		log:    logger,
	}, nil
}

// Policy returns the storage policy this store applies.
func (r *PostgresStore) Policy() domain.StorePolicy {
	return r.policy
}

// Save persists an assessment and stamps it with the stored id and created_at.
func (r *PostgresStore) Save(ctx context.Context, a *domain.Assessment) error {
	rec, err := toRecord(a)
	if err != nil {
		return err
	}

	var query string
	if r.policy == domain.StoreKeepLatest {
		query = `
			INSERT INTO patient_risk (` + insertColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			ON CONFLICT (patient_id) DO UPDATE SET
				risk_class = EXCLUDED.risk_class,
				risk_score = EXCLUDED.risk_score,
				raw_score = EXCLUDED.raw_score,
				priority = EXCLUDED.priority,
				priority_by_rules = EXCLUDED.priority_by_rules,
				priority_by_score = EXCLUDED.priority_by_score,
				priority_source = EXCLUDED.priority_source,
				reasons = EXCLUDED.reasons,
				thresholds = EXCLUDED.thresholds,
				policy = EXCLUDED.policy,
				calibrated = EXCLUDED.calibrated,
				model_name = EXCLUDED.model_name,
				model_version = EXCLUDED.model_version,
				source = EXCLUDED.source,
				input = EXCLUDED.input,
				created_at = NOW(),
				updated_at = NOW()
			RETURNING id, created_at`
	} else {
		query = `
			INSERT INTO gh_predictions (` + insertColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			RETURNING id, created_at`
	}

	if err := r.db.QueryRow(ctx, query, rec.args()...).Scan(&rec.ID, &rec.CreatedAt); err != nil {
		r.log.WithFields(logrus.Fields{
			"patient_id": rec.PatientID,
			"table":      r.table,
			"error":      err,
		}).Error("Failed to save prediction")
		return fmt.Errorf("saving prediction: %w", err)
	}

	a.ID = rec.ID
	created := rec.CreatedAt
	a.CreatedAt = &created

	r.log.WithFields(logrus.Fields{
		"patient_id": rec.PatientID,
		"id":         rec.ID,
		"risk_class": rec.RiskClass,
		"policy":     r.policy,
	}).Debug("Prediction saved")

	return nil
}

// Latest returns the most recent assessment for a patient, or domain.ErrNotFound.
func (r *PostgresStore) Latest(ctx context.Context, patientID int64) (*domain.Assessment, error) {
	query := `SELECT ` + selectColumns + ` FROM ` + r.table + `
		WHERE patient_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	rec, err := scanRecord(r.db.QueryRow(ctx, query, patientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("no assessment for patient %d: %w", patientID, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"patient_id": patientID,
			"error":      err,
		}).Error("Failed to get latest prediction")
		return nil, fmt.Errorf("getting latest prediction: %w", err)
	}

	return rec.assessment()
}

// History returns up to limit assessments for a patient, newest first.
func (r *PostgresStore) History(ctx context.Context, patientID int64, limit int) ([]*domain.Assessment, error) {
	query := `SELECT ` + selectColumns + ` FROM ` + r.table + `
		WHERE patient_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, patientID, clampLimit(limit))
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"patient_id": patientID,
			"error":      err,
		}).Error("Failed to list prediction history")
		return nil, fmt.Errorf("listing prediction history: %w", err)
	}
	defer rows.Close()

	var out []*domain.Assessment
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning prediction row: %w", err)
		}
		a, err := rec.assessment()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating prediction rows: %w", err)
	}
	return out, nil
}

// Ping checks that the pool can reach the database.
func (r *PostgresStore) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// Close is a no-op; the pool is owned by database.DB.
func (r *PostgresStore) Close() error {
	return nil
}

func scanRecord(row pgx.Row) (*record, error) {
	var rec record
	err := row.Scan(
		&rec.ID,
		&rec.PatientID,
		&rec.RiskClass,
		&rec.RiskScore,
		&rec.RawScore,
		&rec.Priority,
		&rec.PriorityByRules,
		&rec.PriorityByScore,
		&rec.PrioritySource,
		&rec.Reasons,
		&rec.Thresholds,
		&rec.Policy,
		&rec.Calibrated,
		&rec.ModelName,
		&rec.ModelVersion,
		&rec.Source,
		&rec.Input,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
