// Package worker provides async batch processing for the Pro tier.
package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/mulegraph/internal/bus"
	"github.com/opensource-finance/mulegraph/internal/domain"
	"github.com/opensource-finance/mulegraph/internal/engine"
)

// reportCacheTTL bounds how long a cached report for a given batch content
// hash is reused before a re-submission forces a fresh analysis.
const reportCacheTTL = time.Hour

// Worker processes submitted batches asynchronously from the EventBus.
type Worker struct {
	bus    domain.EventBus
	repo   domain.Repository
	cache  domain.Cache
	engine *engine.Engine

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process. When empty, a single
	// subscription is made under the tenant ID "_global"; it receives only
	// batches published under that tenant ID, not those of other tenants.
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, eng *engine.Engine) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		cache:  cache,
		engine: eng,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker subscribed under the "_global" tenant ID
// (for testing/dev). Batches published under any other tenant ID do not
// reach it.
func (w *Worker) startGlobalWorker() error {
	sub, err := bus.SubscribeBatchSubmitted(w.ctx, w.bus, "_global", w.processBatch)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts a worker for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := bus.SubscribeBatchSubmitted(w.ctx, w.bus, tenantID, func(ctx context.Context, _ string, batch *domain.BatchRequest) error {
		return w.processBatch(ctx, tenantID, batch)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicBatchSubmitted,
	)

	return nil
}

// processBatch runs the full analysis pipeline for a submitted batch and
// publishes the resulting report.
func (w *Worker) processBatch(ctx context.Context, tenantID string, batch *domain.BatchRequest) error {
	start := time.Now()

	slog.Debug("processing batch",
		"batch_id", batch.BatchID,
		"tenant_id", tenantID,
		"tx_count", len(batch.Transactions),
	)

	contentHash := batchContentHash(batch.Transactions)

	var report *domain.Report
	if w.cache != nil {
		if cached, err := w.cache.GetReport(ctx, tenantID, contentHash); err == nil && cached != nil {
			slog.Debug("report cache hit",
				"batch_id", batch.BatchID,
				"content_hash", contentHash,
			)
			report = cached
		}
	}

	if report == nil {
		var err error
		report, err = w.engine.Analyze(ctx, batch.Transactions)
		if err != nil {
			slog.Error("batch analysis failed",
				"batch_id", batch.BatchID,
				"error", err,
			)
			return err
		}

		if w.cache != nil {
			if err := w.cache.SetReport(ctx, tenantID, contentHash, report, reportCacheTTL); err != nil {
				slog.Error("failed to cache report",
					"batch_id", batch.BatchID,
					"error", err,
				)
			}
		}
	}

	if w.repo != nil {
		if err := w.repo.SaveBatch(ctx, tenantID, batch.BatchID, batch); err != nil {
			slog.Error("failed to save batch",
				"batch_id", batch.BatchID,
				"error", err,
			)
		}
		if err := w.repo.SaveReport(ctx, tenantID, batch.BatchID, report); err != nil {
			slog.Error("failed to save report",
				"batch_id", batch.BatchID,
				"error", err,
			)
		}
	}

	if err := bus.PublishReport(ctx, w.bus, tenantID, report); err != nil {
		slog.Error("failed to publish analyzed report",
			"batch_id", batch.BatchID,
			"error", err,
		)
	}

	slog.Info("batch processed",
		"batch_id", batch.BatchID,
		"tenant_id", tenantID,
		"rings_detected", report.Summary.FraudRingsDetected,
		"accounts_flagged", report.Summary.SuspiciousAccountsFlagged,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// batchContentHash derives a stable cache key from a batch's transactions so
// that re-submitting an identical batch can reuse a prior report instead of
// re-running detection. Transaction order is part of the content: graph
// construction is order-sensitive (first-appearance iteration order), so a
// reordered batch is treated as distinct.
func batchContentHash(txs []domain.Transaction) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, tx := range txs {
		enc.Encode(tx)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
