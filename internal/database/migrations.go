package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"

	"github.com/gh-risk-server/migrations"
)

// MigrationRunner applies the patient, prediction and advice schema to PostgreSQL.
type MigrationRunner struct {
	migrate *migrate.Migrate
	source  string
	log     *logrus.Logger
}

// NewMigrationRunner opens the schema source and the target database. An empty
// migrationsPath uses the SQL files compiled into the binary.
func NewMigrationRunner(databaseURL, migrationsPath string, logger *logrus.Logger) (*MigrationRunner, error) {
	var (
		m      *migrate.Migrate
		err    error
		source = "embedded"
	)
	if migrationsPath == "" {
		d, derr := iofs.New(migrations.FS, ".")
		if derr != nil {
			return nil, fmt.Errorf("opening embedded migrations: %w", derr)
		}
		m, err = migrate.NewWithSourceInstance("iofs", d, databaseURL)
	} else {
		source = migrationsPath
		m, err = migrate.New("file://"+migrationsPath, databaseURL)
	}
	if err != nil {
		return nil, fmt.Errorf("creating migration instance: %w", err)
	}

	return &MigrationRunner{migrate: m, source: source, log: logger}, nil
}

// Up applies every pending migration.
func (mr *MigrationRunner) Up(ctx context.Context) error {
	mr.log.WithField("source", mr.source).Info("Running database migrations up")
	if err := mr.run(ctx, mr.migrate.Up); err != nil {
		return fmt.Errorf("running migrations up: %w", err)
	}
	mr.logVersion("Migrations completed successfully")
	return nil
}

// Down rolls back one migration.
func (mr *MigrationRunner) Down(ctx context.Context) error {
	return mr.Steps(ctx, -1)
}

// Steps migrates n steps forward, or back when n is negative.
func (mr *MigrationRunner) Steps(ctx context.Context, n int) error {
	if n == 0 {
		return nil
	}
	mr.log.WithFields(logrus.Fields{"steps": n, "source": mr.source}).Info("Stepping database migrations")
	if err := mr.run(ctx, func() error { return mr.migrate.Steps(n) }); err != nil {
		return fmt.Errorf("migrating %d steps: %w", n, err)
	}
	mr.logVersion("Migration steps applied")
	return nil
}

// run executes fn and asks migrate to stop at the next file boundary if ctx ends first.
func (mr *MigrationRunner) run(ctx context.Context, fn func() error) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			select {
			case mr.migrate.GracefulStop <- true:
			default:
			}
		case <-done:
		}
	}()

	err := fn()
	if errors.Is(err, migrate.ErrNoChange) {
		mr.log.Info("Schema already up to date")
		return nil
	}
	return err
}

// Version returns the current migration version. A database without migrations reports
// version 0.
func (mr *MigrationRunner) Version() (uint, bool, error) {
	v, dirty, err := mr.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func (mr *MigrationRunner) logVersion(msg string) {
	version, dirty, err := mr.Version()
	if err != nil {
		mr.log.WithError(err).Warn("Could not read migration version")
		return
	}
	mr.log.WithFields(logrus.Fields{
		"version": version,
		"dirty":   dirty,
	}).Info(msg)
}

// Close releases the source and database handles.
func (mr *MigrationRunner) Close() error {
	sourceErr, dbErr := mr.migrate.Close()
	return errors.Join(sourceErr, dbErr)
}
