package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	rewardengine "jubilee/contexts/rewards-core/reward-engine"
	rewardports "jubilee/contexts/rewards-core/reward-engine/ports"
	snapshotservice "jubilee/contexts/rewards-core/snapshot-service"
	snapshotports "jubilee/contexts/rewards-core/snapshot-service/ports"
)

type stubHolderIndex struct{}

func (stubHolderIndex) FetchHolders(context.Context, string, string, int) (snapshotports.HolderPage, error) {
	return snapshotports.HolderPage{
		Holders: []snapshotports.AddressBalance{
			{Address: "0xaaa", Balance: big.NewInt(1000)},
		},
	}, nil
}

type stubGate struct{ open bool }

func (g stubGate) Acceptable(context.Context) (bool, error) { return g.open, nil }

type stubExecutor struct{}

func (stubExecutor) ExecuteBatch(
	_ context.Context,
	_ string,
	batchNumber int,
	retryCount int,
	_ []rewardports.Transfer,
) (rewardports.ExecutionReceipt, error) {
	return rewardports.ExecutionReceipt{
		TxID:        fmt.Sprintf("0xtx-%d-%d", batchNumber, retryCount),
		GasUsed:     21000,
		BlockNumber: 99,
		ConfirmedAt: time.Now().UTC(),
	}, nil
}

func newTestServer() (*Server, rewardengine.Module) {
	snapshots := snapshotservice.NewInMemoryModule(stubHolderIndex{}, nil, nil)
	rewards := rewardengine.NewInMemoryModule(stubGate{open: true}, stubExecutor{}, nil, nil)
	return New(snapshots, rewards, nil, ""), rewards
}

func seedSnapshots(rewards rewardengine.Module) {
	rewards.Store.SeedSnapshot("2026-07", "snap-prev", true, map[string]*big.Int{
		"a": big.NewInt(1000),
		"b": big.NewInt(2000),
	})
	rewards.Store.SeedSnapshot("2026-08", "snap-cur", true, map[string]*big.Int{
		"a": big.NewInt(500),
		"b": big.NewInt(2500),
	})
}

func TestCalculateProcessAndGetDistribution(t *testing.T) {
	server, rewards := newTestServer()
	seedSnapshots(rewards)

	body := []byte(`{"previous_period_id":"2026-07","reward_pool":"900","min_holding":"400","batch_size":1,"max_retries":3}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/distributions/2026-08/calculate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("calculate: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var calculated struct {
		Status string `json:"status"`
		Stats  struct {
			EligibleCount int `json:"eligible_count"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &calculated); err != nil {
		t.Fatalf("decode calculate response: %v", err)
	}
	if calculated.Status != "ready" || calculated.Stats.EligibleCount != 2 {
		t.Fatalf("unexpected calculate response: %s", rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/distributions/2026-08/process", nil)
	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("process: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var processed struct {
		Status           string `json:"status"`
		Completed        int    `json:"completed"`
		TotalDistributed string `json:"total_distributed"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &processed); err != nil {
		t.Fatalf("decode process response: %v", err)
	}
	if processed.Status != "completed" || processed.Completed != 2 || processed.TotalDistributed != "900" {
		t.Fatalf("unexpected process response: %s", rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/distributions/2026-08", nil)
	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/distributions/2026-08/batches", nil)
	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("list batches: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/distributions/2026-08/progress", nil)
	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("progress: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var progress struct {
		BatchCounts      map[string]int `json:"batch_counts"`
		TotalDistributed string         `json:"total_distributed"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &progress); err != nil {
		t.Fatalf("decode progress response: %v", err)
	}
	if progress.BatchCounts["completed"] != 2 || progress.TotalDistributed != "900" {
		t.Fatalf("unexpected progress response: %s", rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/distributions/2026-08/recipients?limit=10", nil)
	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("list recipients: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestGetDistributionNotFound(t *testing.T) {
	server, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/distributions/2099-01", nil)
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCalculateRejectsMalformedBody(t *testing.T) {
	server, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/distributions/2026-08/calculate", bytes.NewReader([]byte("{")))
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCalculateRequiresCompletedSnapshots(t *testing.T) {
	server, rewards := newTestServer()
	rewards.Store.SeedSnapshot("2026-07", "snap-prev", true, map[string]*big.Int{"a": big.NewInt(10)})
	rewards.Store.SeedSnapshot("2026-08", "snap-cur", false, map[string]*big.Int{"a": big.NewInt(10)})

	body := []byte(`{"previous_period_id":"2026-07","reward_pool":"100","batch_size":1,"max_retries":1}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/distributions/2026-08/calculate", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCollectSnapshotEndpoint(t *testing.T) {
	server, _ := newTestServer()

	body := []byte(`{"token_address":"0xToken"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/snapshots/2026-08/collect", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("collect: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/snapshots/2026-08", nil)
	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("get snapshot: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestReconcileRejectsBadBatchNumber(t *testing.T) {
	server, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/distributions/2026-08/batches/zero/reconcile", bytes.NewReader([]byte(`{}`)))
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	server, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
