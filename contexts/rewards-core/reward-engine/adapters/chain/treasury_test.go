package chain

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domainerrors "jubilee/contexts/rewards-core/reward-engine/domain/errors"
	"jubilee/contexts/rewards-core/reward-engine/ports"
)

func newTreasuryServer(t *testing.T, statusBody string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/batch-transfers":
			var req submitRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("bad submit body: %v", err)
			}
			if req.IdempotencyKey == "" {
				t.Errorf("submit without idempotency key")
			}
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"submission_id":"sub-1","status":"pending"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/batch-transfers/sub-1":
			_, _ = w.Write([]byte(statusBody))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestTreasuryClientReturnsConfirmedReceipt(t *testing.T) {
	server := newTreasuryServer(t, `{"submission_id":"sub-1","status":"confirmed",`+
		`"tx_id":"0xabc","gas_used":42000,"effective_gas_price":"25000000000",`+
		`"block_number":1234,"confirmed_at":"2026-08-31T12:00:00Z"}`)
	defer server.Close()

	client := NewTreasuryClient(server.URL, "key", time.Minute, nil)
	receipt, err := client.ExecuteBatch(context.Background(), "dist-1", 1, 0, []ports.Transfer{
		{Address: "holder-1", Amount: big.NewInt(100)},
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if receipt.TxID != "0xabc" || receipt.BlockNumber != 1234 {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if receipt.EffectiveGasPrice.Cmp(big.NewInt(25000000000)) != 0 {
		t.Fatalf("unexpected gas price: %s", receipt.EffectiveGasPrice)
	}
}

func TestTreasuryClientFailedVerdictIsExecutionFailure(t *testing.T) {
	server := newTreasuryServer(t, `{"submission_id":"sub-1","status":"failed","error":"insufficient treasury balance"}`)
	defer server.Close()

	client := NewTreasuryClient(server.URL, "", time.Minute, nil)
	_, err := client.ExecuteBatch(context.Background(), "dist-1", 1, 0, nil)
	if !errors.Is(err, domainerrors.ErrExecutionFailure) {
		t.Fatalf("expected ErrExecutionFailure, got %v", err)
	}
	if errors.Is(err, domainerrors.ErrExecutionUnconfirmed) {
		t.Fatalf("a definitive verdict must not read as unconfirmed: %v", err)
	}
}

func TestTreasuryClientConfirmWaitTimeoutIsUnconfirmed(t *testing.T) {
	// The submission never reaches a verdict within the confirm wait. That is
	// a status-unknown outcome: a retry under a fresh idempotency key could
	// pay the batch twice if the original later confirms.
	server := newTreasuryServer(t, `{"submission_id":"sub-1","status":"pending"}`)
	defer server.Close()

	client := NewTreasuryClient(server.URL, "", time.Nanosecond, nil)
	_, err := client.ExecuteBatch(context.Background(), "dist-1", 1, 0, nil)
	if !errors.Is(err, domainerrors.ErrExecutionUnconfirmed) {
		t.Fatalf("expected ErrExecutionUnconfirmed, got %v", err)
	}
	if errors.Is(err, domainerrors.ErrExecutionFailure) {
		t.Fatalf("timeout must not read as a retryable failure: %v", err)
	}
}

func TestTreasuryClientPollErrorAfterSubmitIsUnconfirmed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"submission_id":"sub-1","status":"pending"}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewTreasuryClient(server.URL, "", time.Minute, nil)
	_, err := client.ExecuteBatch(context.Background(), "dist-1", 1, 0, nil)
	if !errors.Is(err, domainerrors.ErrExecutionUnconfirmed) {
		t.Fatalf("expected ErrExecutionUnconfirmed, got %v", err)
	}
}
