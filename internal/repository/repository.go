// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/mulegraph/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql. Works
// with both SQLite and PostgreSQL drivers. Everything it stores is for
// audit/retrieval only: nothing read back through this type feeds
// Engine.Analyze.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveBatch stores a submitted batch request with tenant isolation.
func (r *SQLRepository) SaveBatch(ctx context.Context, tenantID string, batchID string, req *domain.BatchRequest) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	query := `
		INSERT INTO batches (id, tenant_id, transaction_count, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		batchID, tenantID, len(req.Transactions), string(payload), time.Now().UTC(),
	)
	return err
}

// GetBatch retrieves a previously submitted batch by id with tenant isolation.
func (r *SQLRepository) GetBatch(ctx context.Context, tenantID string, batchID string) (*domain.BatchRequest, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT payload FROM batches WHERE tenant_id = ? AND id = ?`

	var payload string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, batchID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var req domain.BatchRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return nil, fmt.Errorf("unmarshal batch: %w", err)
	}
	return &req, nil
}

// SaveReport stores a completed analysis report with tenant isolation.
func (r *SQLRepository) SaveReport(ctx context.Context, tenantID string, batchID string, report *domain.Report) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	query := `
		INSERT INTO reports (batch_id, tenant_id, fraud_rings_detected, suspicious_accounts_flagged, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(batch_id, tenant_id) DO UPDATE SET
			fraud_rings_detected = excluded.fraud_rings_detected,
			suspicious_accounts_flagged = excluded.suspicious_accounts_flagged,
			payload = excluded.payload,
			created_at = excluded.created_at
	`
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		batchID, tenantID, report.Summary.FraudRingsDetected, report.Summary.SuspiciousAccountsFlagged,
		string(payload), time.Now().UTC(),
	)
	return err
}

// GetReport retrieves a stored report by batch id with tenant isolation.
func (r *SQLRepository) GetReport(ctx context.Context, tenantID string, batchID string) (*domain.Report, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT payload FROM reports WHERE tenant_id = ? AND batch_id = ?`

	var payload string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, batchID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var report domain.Report
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &report, nil
}

// ListBatchesSince lists batch ids submitted by a tenant since a point in time.
func (r *SQLRepository) ListBatchesSince(ctx context.Context, tenantID string, since time.Time) ([]string, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id FROM batches
		WHERE tenant_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
