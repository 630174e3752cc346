package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/gh-risk-server/internal/domain"
)

// ResilientStore guards prediction writes with a circuit breaker so that a failing database
// stops costing every request a round trip. Reads pass straight through.
type ResilientStore struct {
	store   domain.PredictionStore
	breaker *gobreaker.CircuitBreaker
	log     *logrus.Logger
}

// NewResilientStore wraps store. The breaker opens after cfg.BreakerMaxFailures consecutive
// failed saves and probes again after cfg.BreakerTimeout. Cancelled saves are not failures.
func NewResilientStore(store domain.PredictionStore, cfg domain.StoreConfig, logger *logrus.Logger) *ResilientStore {
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "prediction-store",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// A caller that went away says nothing about the database.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &ResilientStore{
		store:   store,
		breaker: breaker,
		log:     logger,
	}
}

// Save persists a through the breaker. Every failure, including an open breaker, is wrapped
// in domain.ErrPersistenceDegraded.
func (r *ResilientStore) Save(ctx context.Context, a *domain.Assessment) error {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.store.Save(ctx, a)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistenceDegraded, err)
	}
	return nil
}

// Latest reads the most recent assessment.
func (r *ResilientStore) Latest(ctx context.Context, patientID int64) (*domain.Assessment, error) {
	return r.store.Latest(ctx, patientID)
}

// History lists assessments newest first.
func (r *ResilientStore) History(ctx context.Context, patientID int64, limit int) ([]*domain.Assessment, error) {
	return r.store.History(ctx, patientID, limit)
}

// Policy returns the wrapped store's persistence policy.
func (r *ResilientStore) Policy() domain.StorePolicy {
	return r.store.Policy()
}

// State reports the breaker state: "closed", "half-open" or "open".
func (r *ResilientStore) State() string {
	return r.breaker.State().String()
}

// Close closes the wrapped store.
func (r *ResilientStore) Close() error {
	return r.store.Close()
}
