package domain

import (
	"context"
)

// PredictionStore persists screening outcomes per patient.
// Latest returns ErrNotFound when the patient has no stored assessment.
type PredictionStore interface {
	Save(ctx context.Context, a *Assessment) error
	Latest(ctx context.Context, patientID int64) (*Assessment, error)
	History(ctx context.Context, patientID int64, limit int) ([]*Assessment, error)
	Policy() StorePolicy
	Close() error
}

// LatestCache caches the latest assessment per patient in front of a PredictionStore.
// Get returns ErrNotFound on a miss.
type LatestCache interface {
	Get(ctx context.Context, patientID int64) (*Assessment, error)
	Set(ctx context.Context, a *Assessment) error
	Invalidate(ctx context.Context, patientID int64) error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	GetArtifactsConfig() *ArtifactsConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
