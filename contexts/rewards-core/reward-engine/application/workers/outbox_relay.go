package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	application "jubilee/contexts/rewards-core/reward-engine/application"
	"jubilee/contexts/rewards-core/reward-engine/ports"
)

// OutboxRelay publishes persisted reward outbox records to the event bus.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

// RunOnce publishes a bounded batch of pending outbox rows in creation order
// and marks each published only after the publish succeeds. The first failure
// stops the cycle so ordering is preserved on the next one.
func (r OutboxRelay) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}

	pending, err := r.Outbox.ListPendingOutbox(ctx, limit)
	if err != nil {
		logger.Error("reward outbox list failed",
			"event", "reward_outbox_list_failed",
			"module", "rewards-core/reward-engine",
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
			logger.Error("reward outbox decode failed",
				"event", "reward_outbox_decode_failed",
				"module", "rewards-core/reward-engine",
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
			logger.Error("reward outbox publish failed",
				"event", "reward_outbox_publish_failed",
				"module", "rewards-core/reward-engine",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"event_type", event.EventType,
				"error", err.Error(),
			)
			return err
		}
		if err := r.Outbox.MarkOutboxPublished(ctx, row.OutboxID, now); err != nil {
			logger.Error("reward outbox mark published failed",
				"event", "reward_outbox_mark_published_failed",
				"module", "rewards-core/reward-engine",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return err
		}
	}

	logger.Info("reward outbox relay cycle completed",
		"event", "reward_outbox_relay_completed",
		"module", "rewards-core/reward-engine",
		"layer", "worker",
		"published_count", len(pending),
	)
	return nil
}
