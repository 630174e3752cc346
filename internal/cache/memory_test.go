package cache

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gh-risk-server/internal/domain"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func assessmentFor(patientID int64, tier domain.RiskTier) *domain.Assessment {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return &domain.Assessment{
		ID:        patientID * 10,
		PatientID: &patientID,
		RiskClass: tier,
		RiskScore: 0.42,
		Reasons:   []string{"BMI ≥ 35 (36)"},
		CreatedAt: &now,
	}
}

func TestMemoryCache_SetGetInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10, time.Minute, quietLogger())

	_, err := c.Get(ctx, 1)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	require.NoError(t, c.Set(ctx, assessmentFor(1, domain.TierHigh)))
	got, err := c.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.TierHigh, got.RiskClass)
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Invalidate(ctx, 1))
	_, err = c.Get(ctx, 1)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10, time.Minute, quietLogger())
	a := assessmentFor(2, domain.TierLow)
	require.NoError(t, c.Set(ctx, a))

	a.RiskClass = domain.TierHigh
	got, err := c.Get(ctx, 2)
	require.NoError(t, err)

	assert.Equal(t, domain.TierLow, got.RiskClass)
}

func TestMemoryCache_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2, time.Minute, quietLogger())

	for id := int64(1); id <= 3; id++ {
		require.NoError(t, c.Set(ctx, assessmentFor(id, domain.TierLow)))
	}

	_, err := c.Get(ctx, 1)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = c.Get(ctx, 3)
	assert.NoError(t, err)
}

func TestMemoryCache_Expires(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10, 20*time.Millisecond, quietLogger())
	require.NoError(t, c.Set(ctx, assessmentFor(4, domain.TierLow)))

	assert.Eventually(t, func() bool {
		_, err := c.Get(ctx, 4)
		return errors.Is(err, domain.ErrNotFound)
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryCache_RejectsAnonymous(t *testing.T) {
	c := NewMemoryCache(0, 0, quietLogger())
	a := assessmentFor(5, domain.TierLow)
	a.PatientID = nil

	err := c.Set(context.Background(), a)

	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	assert.NoError(t, c.Ping(context.Background()))
}
