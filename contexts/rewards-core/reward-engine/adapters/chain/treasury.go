package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	domainerrors "jubilee/contexts/rewards-core/reward-engine/domain/errors"
	"jubilee/contexts/rewards-core/reward-engine/ports"
	"jubilee/internal/platform/metrics"
)

const (
	defaultConfirmWait  = 2 * time.Minute
	defaultPollInterval = 5 * time.Second
)

// TreasuryClient executes batch transfers through the treasury gateway API.
// Submission carries an idempotency key derived from the logical attempt
// (distribution, batch number, retry count). Only a definitive "failed"
// verdict from the gateway is reported as ErrExecutionFailure; once a
// submission is accepted, any path that ends without a verdict (confirm-wait
// deadline, poll errors, context cancellation) is reported as
// ErrExecutionUnconfirmed so the caller never retries under a fresh key
// while the original submission may still confirm.
type TreasuryClient struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	confirmWait  time.Duration
	pollInterval time.Duration
	logger       *slog.Logger
}

func NewTreasuryClient(baseURL string, apiKey string, confirmWait time.Duration, logger *slog.Logger) *TreasuryClient {
	if logger == nil {
		logger = slog.Default()
	}
	if confirmWait <= 0 {
		confirmWait = defaultConfirmWait
	}
	return &TreasuryClient{
		baseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:       strings.TrimSpace(apiKey),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		confirmWait:  confirmWait,
		pollInterval: defaultPollInterval,
		logger:       logger,
	}
}

type transferDoc struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type submitRequest struct {
	IdempotencyKey string        `json:"idempotency_key"`
	Transfers      []transferDoc `json:"transfers"`
}

type transferStatusResponse struct {
	SubmissionID      string `json:"submission_id"`
	Status            string `json:"status"`
	TxID              string `json:"tx_id"`
	GasUsed           uint64 `json:"gas_used"`
	EffectiveGasPrice string `json:"effective_gas_price"`
	BlockNumber       uint64 `json:"block_number"`
	ConfirmedAt       string `json:"confirmed_at"`
	Error             string `json:"error"`
}

func (c *TreasuryClient) ExecuteBatch(
	ctx context.Context,
	distributionID string,
	batchNumber int,
	retryCount int,
	transfers []ports.Transfer,
) (ports.ExecutionReceipt, error) {
	started := time.Now()
	receipt, err := c.executeBatch(ctx, distributionID, batchNumber, retryCount, transfers)
	metrics.BatchExecutionDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.BatchExecutionsTotal.WithLabelValues("error").Inc()
		return ports.ExecutionReceipt{}, err
	}
	metrics.BatchExecutionsTotal.WithLabelValues("ok").Inc()
	return receipt, nil
}

func (c *TreasuryClient) executeBatch(
	ctx context.Context,
	distributionID string,
	batchNumber int,
	retryCount int,
	transfers []ports.Transfer,
) (ports.ExecutionReceipt, error) {
	docs := make([]transferDoc, 0, len(transfers))
	for _, transfer := range transfers {
		amount := "0"
		if transfer.Amount != nil {
			amount = transfer.Amount.String()
		}
		docs = append(docs, transferDoc{
			Address: transfer.Address,
			Amount:  amount,
		})
	}
	body, err := json.Marshal(submitRequest{
		IdempotencyKey: fmt.Sprintf("%s:%d:%d", distributionID, batchNumber, retryCount),
		Transfers:      docs,
	})
	if err != nil {
		return ports.ExecutionReceipt{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/batch-transfers", bytes.NewReader(body))
	if err != nil {
		return ports.ExecutionReceipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ports.ExecutionReceipt{}, fmt.Errorf("%w: submit: %v", domainerrors.ErrExecutionFailure, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return ports.ExecutionReceipt{}, fmt.Errorf("%w: submit status %d", domainerrors.ErrExecutionFailure, resp.StatusCode)
	}

	var submitted transferStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		return ports.ExecutionReceipt{}, fmt.Errorf("%w: decode submit response: %v", domainerrors.ErrExecutionFailure, err)
	}
	c.logger.Info("batch transfer submitted",
		"event", "treasury_batch_submitted",
		"module", "rewards-core/reward-engine",
		"layer", "adapter",
		"submission_id", submitted.SubmissionID,
		"transfer_count", len(docs),
	)
	return c.awaitConfirmation(ctx, submitted.SubmissionID)
}

func (c *TreasuryClient) awaitConfirmation(ctx context.Context, submissionID string) (ports.ExecutionReceipt, error) {
	deadline := time.Now().Add(c.confirmWait)
	for {
		status, err := c.fetchStatus(ctx, submissionID)
		if err != nil {
			// The submission is already accepted, so a poll failure leaves
			// the outcome unknown rather than failed.
			return ports.ExecutionReceipt{}, fmt.Errorf("%w: poll submission %s: %v",
				domainerrors.ErrExecutionUnconfirmed, submissionID, err)
		}
		switch status.Status {
		case "confirmed":
			return statusToReceipt(status)
		case "failed":
			message := status.Error
			if message == "" {
				message = "transfer rejected by chain"
			}
			return ports.ExecutionReceipt{}, fmt.Errorf("%w: %s", domainerrors.ErrExecutionFailure, message)
		}
		if time.Now().After(deadline) {
			return ports.ExecutionReceipt{}, fmt.Errorf("%w: no verdict for submission %s within %s",
				domainerrors.ErrExecutionUnconfirmed, submissionID, c.confirmWait)
		}
		select {
		case <-ctx.Done():
			return ports.ExecutionReceipt{}, fmt.Errorf("%w: canceled while awaiting submission %s: %v",
				domainerrors.ErrExecutionUnconfirmed, submissionID, ctx.Err())
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *TreasuryClient) fetchStatus(ctx context.Context, submissionID string) (transferStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/batch-transfers/"+submissionID, nil)
	if err != nil {
		return transferStatusResponse{}, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transferStatusResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return transferStatusResponse{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	var status transferStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return transferStatusResponse{}, fmt.Errorf("decode response: %v", err)
	}
	return status, nil
}

func statusToReceipt(status transferStatusResponse) (ports.ExecutionReceipt, error) {
	gasPrice := big.NewInt(0)
	if trimmed := strings.TrimSpace(status.EffectiveGasPrice); trimmed != "" {
		// The transfer is confirmed at this point, so a receipt we cannot
		// decode must not surface as a retryable failure.
		parsed, ok := new(big.Int).SetString(trimmed, 10)
		if !ok {
			return ports.ExecutionReceipt{}, fmt.Errorf("%w: malformed gas price %q in confirmed receipt",
				domainerrors.ErrExecutionUnconfirmed, status.EffectiveGasPrice)
		}
		gasPrice = parsed
	}
	confirmedAt := time.Now().UTC()
	if status.ConfirmedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, status.ConfirmedAt); err == nil {
			confirmedAt = parsed.UTC()
		}
	}
	return ports.ExecutionReceipt{
		TxID:              status.TxID,
		GasUsed:           status.GasUsed,
		EffectiveGasPrice: gasPrice,
		BlockNumber:       status.BlockNumber,
		ConfirmedAt:       confirmedAt,
	}, nil
}

var _ ports.TransferExecutor = (*TreasuryClient)(nil)
