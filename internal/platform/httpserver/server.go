package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	rewardengine "jubilee/contexts/rewards-core/reward-engine"
	rewarderrors "jubilee/contexts/rewards-core/reward-engine/domain/errors"
	rewardhttp "jubilee/contexts/rewards-core/reward-engine/transport/http"
	snapshotservice "jubilee/contexts/rewards-core/snapshot-service"
	snapshoterrors "jubilee/contexts/rewards-core/snapshot-service/domain/errors"
	snapshothttp "jubilee/contexts/rewards-core/snapshot-service/transport/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	_ "jubilee/internal/platform/httpserver/docs"
)

type Server struct {
	mux       *http.ServeMux
	logger    *slog.Logger
	addr      string
	snapshots snapshotservice.Module
	rewards   rewardengine.Module
}

func New(
	snapshots snapshotservice.Module,
	rewards rewardengine.Module,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:       http.NewServeMux(),
		logger:    logger,
		addr:      addr,
		snapshots: snapshots,
		rewards:   rewards,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

// Handler exposes the route mux for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.mux.HandleFunc("POST /api/v1/snapshots/{period_id}/collect", s.handleCollectSnapshot)
	s.mux.HandleFunc("GET /api/v1/snapshots/{period_id}", s.handleGetSnapshot)

	s.mux.HandleFunc("POST /api/v1/distributions/{period_id}/calculate", s.handleCalculateDistribution)
	s.mux.HandleFunc("POST /api/v1/distributions/{period_id}/process", s.handleProcessDistribution)
	s.mux.HandleFunc("POST /api/v1/distributions/{period_id}/retry", s.handleRetryDistribution)
	s.mux.HandleFunc("POST /api/v1/distributions/{period_id}/batches/{batch_number}/reconcile", s.handleReconcileBatch)
	s.mux.HandleFunc("GET /api/v1/distributions/{period_id}", s.handleGetDistribution)
	s.mux.HandleFunc("GET /api/v1/distributions/{period_id}/batches", s.handleListBatches)
	s.mux.HandleFunc("GET /api/v1/distributions/{period_id}/progress", s.handleProgress)
	s.mux.HandleFunc("GET /api/v1/distributions/{period_id}/recipients", s.handleListRecipients)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCollectSnapshot(w http.ResponseWriter, r *http.Request) {
	var req snapshothttp.CollectSnapshotRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeSnapshotError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
			return
		}
	}
	resp, err := s.snapshots.Handler.CollectHandler(r.Context(), r.PathValue("period_id"), req)
	if err != nil {
		writeSnapshotDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	resp, err := s.snapshots.Handler.GetSnapshotHandler(r.Context(), r.PathValue("period_id"))
	if err != nil {
		writeSnapshotDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCalculateDistribution(w http.ResponseWriter, r *http.Request) {
	var req rewardhttp.CalculateDistributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRewardError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.rewards.Handler.CalculateHandler(r.Context(), r.PathValue("period_id"), req)
	if err != nil {
		writeRewardDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProcessDistribution(w http.ResponseWriter, r *http.Request) {
	resp, err := s.rewards.Handler.ProcessHandler(r.Context(), r.PathValue("period_id"))
	if err != nil {
		writeRewardDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRetryDistribution(w http.ResponseWriter, r *http.Request) {
	resp, err := s.rewards.Handler.RetryHandler(r.Context(), r.PathValue("period_id"))
	if err != nil {
		writeRewardDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReconcileBatch(w http.ResponseWriter, r *http.Request) {
	batchNumber, err := strconv.Atoi(r.PathValue("batch_number"))
	if err != nil || batchNumber <= 0 {
		writeRewardError(w, http.StatusBadRequest, "invalid_batch_number", "batch number must be a positive integer")
		return
	}
	var req rewardhttp.ReconcileBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRewardError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.rewards.Handler.ReconcileHandler(r.Context(), r.PathValue("period_id"), batchNumber, req)
	if err != nil {
		writeRewardDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetDistribution(w http.ResponseWriter, r *http.Request) {
	resp, err := s.rewards.Handler.GetDistributionHandler(r.Context(), r.PathValue("period_id"))
	if err != nil {
		writeRewardDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	resp, err := s.rewards.Handler.ListBatchesHandler(r.Context(), r.PathValue("period_id"))
	if err != nil {
		writeRewardDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	resp, err := s.rewards.Handler.ProgressHandler(r.Context(), r.PathValue("period_id"))
	if err != nil {
		writeRewardDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListRecipients(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	offset := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeRewardError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		limit = parsed
	}
	if raw := query.Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeRewardError(w, http.StatusBadRequest, "invalid_offset", "offset must be a non-negative integer")
			return
		}
		offset = parsed
	}

	resp, err := s.rewards.Handler.ListRecipientsHandler(r.Context(), r.PathValue("period_id"), limit, offset)
	if err != nil {
		writeRewardDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeSnapshotDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, snapshoterrors.ErrSnapshotNotFound):
		writeSnapshotError(w, http.StatusNotFound, "snapshot_not_found", err.Error())
	case errors.Is(err, snapshoterrors.ErrSnapshotCompleted),
		errors.Is(err, snapshoterrors.ErrSnapshotExists):
		writeSnapshotError(w, http.StatusConflict, "snapshot_completed", err.Error())
	case errors.Is(err, snapshoterrors.ErrTokenMismatch):
		writeSnapshotError(w, http.StatusConflict, "token_mismatch", err.Error())
	case errors.Is(err, snapshoterrors.ErrInvalidSnapshotInput):
		writeSnapshotError(w, http.StatusBadRequest, "invalid_snapshot_input", err.Error())
	case errors.Is(err, snapshoterrors.ErrHolderIndexFailure):
		writeSnapshotError(w, http.StatusBadGateway, "holder_index_failure", err.Error())
	case errors.Is(err, snapshoterrors.ErrConflict):
		writeSnapshotError(w, http.StatusConflict, "conflict", err.Error())
	default:
		writeSnapshotError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeRewardDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rewarderrors.ErrDistributionNotFound),
		errors.Is(err, rewarderrors.ErrBatchNotFound),
		errors.Is(err, rewarderrors.ErrSnapshotNotFound):
		writeRewardError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, rewarderrors.ErrSnapshotNotCompleted):
		writeRewardError(w, http.StatusPreconditionFailed, "snapshot_not_completed", err.Error())
	case errors.Is(err, rewarderrors.ErrInvalidDistributionInput):
		writeRewardError(w, http.StatusBadRequest, "invalid_distribution_input", err.Error())
	case errors.Is(err, rewarderrors.ErrDistributionCompleted):
		writeRewardError(w, http.StatusConflict, "distribution_completed", err.Error())
	case errors.Is(err, rewarderrors.ErrDistributionBusy):
		writeRewardError(w, http.StatusConflict, "distribution_busy", err.Error())
	case errors.Is(err, rewarderrors.ErrBatchUnreconciled):
		writeRewardError(w, http.StatusConflict, "batch_unreconciled", err.Error())
	case errors.Is(err, rewarderrors.ErrInvalidDistributionState),
		errors.Is(err, rewarderrors.ErrInvalidStateTransition),
		errors.Is(err, rewarderrors.ErrConflict):
		writeRewardError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, rewarderrors.ErrPriceOracleFailure),
		errors.Is(err, rewarderrors.ErrExecutionFailure):
		writeRewardError(w, http.StatusBadGateway, "upstream_failure", err.Error())
	default:
		writeRewardError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeSnapshotError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, snapshothttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeRewardError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, rewardhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
