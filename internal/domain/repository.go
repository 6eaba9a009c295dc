// Package domain defines the core types and interfaces for mulegraph.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for persisting submitted batches and
// the reports produced from them. Nothing read back through this
// interface feeds Engine.Analyze; it exists for audit and retrieval only.
type Repository interface {
	SaveBatch(ctx context.Context, tenantID string, batchID string, req *BatchRequest) error
	GetBatch(ctx context.Context, tenantID string, batchID string) (*BatchRequest, error)

	SaveReport(ctx context.Context, tenantID string, batchID string, report *Report) error
	GetReport(ctx context.Context, tenantID string, batchID string) (*Report, error)

	ListBatchesSince(ctx context.Context, tenantID string, since time.Time) ([]string, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
