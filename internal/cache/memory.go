// Package cache keeps the latest assessment per patient close to the read path. Writes
// always go to the prediction store first; the cache is refreshed afterwards.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/gh-risk-server/internal/domain"
)

const (
	defaultMaxItems = 1024
	defaultTTL      = 10 * time.Minute
)

// MemoryCache is an in-process LRU with per-entry expiry.
type MemoryCache struct {
	lru *expirable.LRU[int64, domain.Assessment]
	log *logrus.Logger
}

// NewMemoryCache creates an in-process cache. Non-positive sizes fall back to defaults.
func NewMemoryCache(maxItems int, ttl time.Duration, logger *logrus.Logger) *MemoryCache {
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	logger.WithFields(logrus.Fields{
		"max_items": maxItems,
		"ttl":       ttl,
	}).Debug("In-memory assessment cache created")

	return &MemoryCache{
		lru: expirable.NewLRU[int64, domain.Assessment](maxItems, nil, ttl),
		log: logger,
	}
}

// Get returns a copy of the cached assessment, or domain.ErrNotFound.
func (c *MemoryCache) Get(_ context.Context, patientID int64) (*domain.Assessment, error) {
	a, ok := c.lru.Get(patientID)
	if !ok {
		return nil, fmt.Errorf("cache miss for patient %d: %w", patientID, domain.ErrNotFound)
	}
	return &a, nil
}

// Set stores a copy of the assessment under its patient id.
func (c *MemoryCache) Set(_ context.Context, a *domain.Assessment) error {
	if a == nil || !a.HasPatientID() {
		return fmt.Errorf("%w: cannot cache assessment without patient id", domain.ErrInvalidInput)
	}
	c.lru.Add(*a.PatientID, *a)
	return nil
}

// Invalidate drops the cached entry for a patient.
func (c *MemoryCache) Invalidate(_ context.Context, patientID int64) error {
	c.lru.Remove(patientID)
	return nil
}

// Len reports the number of live entries.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// Ping always succeeds for the in-process cache.
func (c *MemoryCache) Ping(context.Context) error {
	return nil
}
