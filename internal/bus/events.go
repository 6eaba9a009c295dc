package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opensource-finance/mulegraph/internal/domain"
)

// BatchHandler processes a decoded batch submitted for async analysis.
type BatchHandler func(ctx context.Context, tenantID string, batch *domain.BatchRequest) error

// PublishBatchSubmitted marshals a batch and publishes it to
// domain.TopicBatchSubmitted for worker-side pickup.
func PublishBatchSubmitted(ctx context.Context, b domain.EventBus, tenantID string, batch *domain.BatchRequest) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	return b.Publish(ctx, tenantID, domain.TopicBatchSubmitted, payload)
}

// SubscribeBatchSubmitted registers handler against domain.TopicBatchSubmitted,
// decoding each message into a BatchRequest before invoking it. A message
// whose BatchRequest.BatchID is empty inherits the envelope's message ID, the
// same fallback the synchronous /batches handler applies via uuid.New.
func SubscribeBatchSubmitted(ctx context.Context, b domain.EventBus, tenantID string, handler BatchHandler) (domain.Subscription, error) {
	return b.Subscribe(ctx, tenantID, domain.TopicBatchSubmitted, func(ctx context.Context, msg *domain.Message) error {
		var batch domain.BatchRequest
		if err := json.Unmarshal(msg.Payload, &batch); err != nil {
			return fmt.Errorf("unmarshal batch: %w", err)
		}
		if batch.BatchID == "" {
			batch.BatchID = msg.ID
		}
		return handler(ctx, msg.TenantID, &batch)
	})
}

// PublishReport marshals a completed report and publishes it to
// domain.TopicBatchAnalyzed, additionally publishing to domain.TopicRingAlert
// when the report surfaced at least one fraud ring.
func PublishReport(ctx context.Context, b domain.EventBus, tenantID string, report *domain.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := b.Publish(ctx, tenantID, domain.TopicBatchAnalyzed, payload); err != nil {
		return fmt.Errorf("publish analyzed report: %w", err)
	}
	if len(report.FraudRings) == 0 {
		return nil
	}
	if err := b.Publish(ctx, tenantID, domain.TopicRingAlert, payload); err != nil {
		return fmt.Errorf("publish ring alert: %w", err)
	}
	return nil
}
