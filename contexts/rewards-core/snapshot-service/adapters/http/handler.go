package httpadapter

import (
	"context"
	"log/slog"
	"time"

	"jubilee/contexts/rewards-core/snapshot-service/application/commands"
	"jubilee/contexts/rewards-core/snapshot-service/application/queries"
	"jubilee/contexts/rewards-core/snapshot-service/domain/entities"
	httptransport "jubilee/contexts/rewards-core/snapshot-service/transport/http"
	"jubilee/internal/platform/metrics"
)

type Handler struct {
	Commands commands.UseCase
	Queries  queries.UseCase
	Logger   *slog.Logger
}

func (h Handler) CollectHandler(
	ctx context.Context,
	periodID string,
	req httptransport.CollectSnapshotRequest,
) (httptransport.SnapshotResponse, error) {
	started := time.Now()
	snapshot, err := h.Commands.Collect(ctx, commands.CollectCommand{
		PeriodID:     periodID,
		TokenAddress: req.TokenAddress,
	})
	metrics.SnapshotCollectionDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		return httptransport.SnapshotResponse{}, err
	}
	return toSnapshotResponse(snapshot), nil
}

func (h Handler) GetSnapshotHandler(ctx context.Context, periodID string) (httptransport.SnapshotResponse, error) {
	snapshot, err := h.Queries.GetSnapshot(ctx, periodID)
	if err != nil {
		return httptransport.SnapshotResponse{}, err
	}
	return toSnapshotResponse(snapshot), nil
}

func toSnapshotResponse(snapshot entities.Snapshot) httptransport.SnapshotResponse {
	resp := httptransport.SnapshotResponse{
		SnapshotID:   snapshot.ID,
		PeriodID:     snapshot.PeriodID,
		TokenAddress: snapshot.TokenAddress,
		Status:       string(snapshot.Status),
		Cursor:       snapshot.Cursor,
		HolderCount:  snapshot.HolderCount,
		TotalBalance: "0",
		LastError:    snapshot.LastError,
		StartedAt:    snapshot.StartedAt.UTC().Format(time.RFC3339),
	}
	if snapshot.TotalBalance != nil {
		resp.TotalBalance = snapshot.TotalBalance.String()
	}
	if snapshot.CompletedAt != nil {
		resp.CompletedAt = snapshot.CompletedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
