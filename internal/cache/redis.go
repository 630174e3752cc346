package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/gh-risk-server/internal/domain"
)

const keyPrefix = "gh-risk:latest:"

// RedisCache shares latest assessments between server replicas.
type RedisCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
	log        *logrus.Logger
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, config domain.CacheConfig, logger *logrus.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := config.DefaultTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	logger.WithFields(logrus.Fields{
		"addr": opts.Addr,
		"db":   opts.DB,
		"ttl":  ttl,
	}).Info("Redis assessment cache connected")

	return &RedisCache{
		redis:      client,
		defaultTTL: ttl,
		log:        logger,
	}, nil
}

func key(patientID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, patientID)
}

// Get returns the cached assessment, or domain.ErrNotFound on a miss. Corrupt entries are
// removed and reported as a miss.
func (c *RedisCache) Get(ctx context.Context, patientID int64) (*domain.Assessment, error) {
	k := key(patientID)
	val, err := c.redis.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("cache miss for patient %d: %w", patientID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached assessment: %w", err)
	}

	var a domain.Assessment
	if err := json.Unmarshal(val, &a); err != nil {
		c.log.WithFields(logrus.Fields{
			"key":   k,
			"error": err,
		}).Warn("Removing corrupt cache entry")
		c.redis.Del(ctx, k)
		return nil, fmt.Errorf("cache miss for patient %d: %w", patientID, domain.ErrNotFound)
	}
	return &a, nil
}

// Set stores the assessment with the default TTL.
func (c *RedisCache) Set(ctx context.Context, a *domain.Assessment) error {
	if a == nil || !a.HasPatientID() {
		return fmt.Errorf("%w: cannot cache assessment without patient id", domain.ErrInvalidInput)
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal assessment: %w", err)
	}
	return c.redis.Set(ctx, key(*a.PatientID), data, c.defaultTTL).Err()
}

// Invalidate drops the cached entry for a patient.
func (c *RedisCache) Invalidate(ctx context.Context, patientID int64) error {
	return c.redis.Del(ctx, key(patientID)).Err()
}

// Ping checks the Redis connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.redis.Close()
}
