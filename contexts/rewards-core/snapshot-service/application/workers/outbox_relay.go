package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	application "jubilee/contexts/rewards-core/snapshot-service/application"
	"jubilee/contexts/rewards-core/snapshot-service/ports"
)

// OutboxRelay publishes persisted snapshot outbox records to the event bus.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

// RunOnce publishes a bounded batch of pending outbox rows and marks each row
// published only after the publish succeeds. It stops on the first failure so
// the next cycle reprocesses remaining rows in order.
func (r OutboxRelay) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}

	pending, err := r.Outbox.ListPendingOutbox(ctx, limit)
	if err != nil {
		logger.Error("snapshot outbox list failed",
			"event", "snapshot_outbox_list_failed",
			"module", "rewards-core/snapshot-service",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	now := time.Now().UTC()
	if r.Clock != nil {
		now = r.Clock.Now().UTC()
	}

	for _, row := range pending {
		var event ports.EventEnvelope
		if err := json.Unmarshal(row.Payload, &event); err != nil {
			logger.Error("snapshot outbox decode failed",
				"event", "snapshot_outbox_decode_failed",
				"module", "rewards-core/snapshot-service",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return err
		}
		topic := event.EventType
		if topic == "" {
			topic = row.EventType
		}
		if err := r.Publisher.Publish(ctx, topic, event); err != nil {
			logger.Error("snapshot outbox publish failed",
				"event", "snapshot_outbox_publish_failed",
				"module", "rewards-core/snapshot-service",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"event_type", event.EventType,
				"error", err.Error(),
			)
			return err
		}
		if err := r.Outbox.MarkOutboxPublished(ctx, row.OutboxID, now); err != nil {
			logger.Error("snapshot outbox mark published failed",
				"event", "snapshot_outbox_mark_published_failed",
				"module", "rewards-core/snapshot-service",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return err
		}
	}

	logger.Info("snapshot outbox relay cycle completed",
		"event", "snapshot_outbox_relay_completed",
		"module", "rewards-core/snapshot-service",
		"layer", "worker",
		"published_count", len(pending),
	)
	return nil
}
