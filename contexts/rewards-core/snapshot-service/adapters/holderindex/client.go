package holderindex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	domainerrors "jubilee/contexts/rewards-core/snapshot-service/domain/errors"
	"jubilee/contexts/rewards-core/snapshot-service/ports"
	"jubilee/internal/platform/metrics"

	"golang.org/x/time/rate"
)

const (
	defaultMaxAttempts = 4
	defaultBaseBackoff = 500 * time.Millisecond
	defaultMaxBackoff  = 10 * time.Second
)

// Client fetches token holder pages from the external holder index API.
// Requests are paced with a rate limiter and transient failures (429, 5xx)
// are retried with exponential backoff honoring Retry-After.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	logger      *slog.Logger
}

func NewClient(baseURL string, apiKey string, requestsPerSecond float64, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 4
	}
	return &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:      strings.TrimSpace(apiKey),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		maxAttempts: defaultMaxAttempts,
		logger:      logger,
	}
}

type holderRow struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type holdersPageResponse struct {
	Holders    []holderRow `json:"holders"`
	NextCursor string      `json:"next_cursor"`
	HasMore    bool        `json:"has_more"`
}

func (c *Client) FetchHolders(
	ctx context.Context,
	tokenAddress string,
	cursor string,
	limit int,
) (ports.HolderPage, error) {
	endpoint := fmt.Sprintf("%s/v1/tokens/%s/holders", c.baseURL, url.PathEscape(strings.TrimSpace(tokenAddress)))
	query := url.Values{}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return ports.HolderPage{}, err
		}

		page, retryAfter, err := c.fetchOnce(ctx, endpoint)
		if err == nil {
			metrics.SnapshotPagesTotal.WithLabelValues("ok").Inc()
			return page, nil
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}

		backoff := calculateBackoff(defaultBaseBackoff, defaultMaxBackoff, attempt)
		if retryAfter > backoff {
			backoff = retryAfter
		}
		c.logger.Warn("holder index page fetch retrying",
			"event", "holder_index_fetch_retry",
			"module", "rewards-core/snapshot-service",
			"layer", "adapter",
			"attempt", attempt,
			"backoff", backoff.String(),
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return ports.HolderPage{}, ctx.Err()
		case <-time.After(backoff):
		}
	}

	metrics.SnapshotPagesTotal.WithLabelValues("error").Inc()
	return ports.HolderPage{}, lastErr
}

func (c *Client) fetchOnce(ctx context.Context, endpoint string) (ports.HolderPage, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ports.HolderPage{}, 0, fmt.Errorf("build holder index request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ports.HolderPage{}, 0, fmt.Errorf("%w: %v", domainerrors.ErrHolderIndexFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return ports.HolderPage{}, retryAfter, &statusError{code: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return ports.HolderPage{}, 0, fmt.Errorf("%w: unexpected status %d", domainerrors.ErrHolderIndexFailure, resp.StatusCode)
	}

	var body holdersPageResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ports.HolderPage{}, 0, fmt.Errorf("%w: decode response: %v", domainerrors.ErrHolderIndexFailure, err)
	}

	holders := make([]ports.AddressBalance, 0, len(body.Holders))
	for _, row := range body.Holders {
		balance, ok := new(big.Int).SetString(strings.TrimSpace(row.Balance), 10)
		if !ok {
			return ports.HolderPage{}, 0, fmt.Errorf("%w: malformed balance %q for %s",
				domainerrors.ErrHolderIndexFailure, row.Balance, row.Address)
		}
		holders = append(holders, ports.AddressBalance{
			Address: row.Address,
			Balance: balance,
		})
	}
	return ports.HolderPage{
		Holders:    holders,
		NextCursor: body.NextCursor,
		HasMore:    body.HasMore,
	}, 0, nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("holder index request failed: status %d", e.code)
}

func (e *statusError) Unwrap() error {
	return domainerrors.ErrHolderIndexFailure
}

func (e *statusError) StatusCode() int {
	return e.code
}

func isRetryable(err error) bool {
	type hasStatusCode interface {
		StatusCode() int
	}
	if sc, ok := err.(hasStatusCode); ok {
		code := sc.StatusCode()
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "timeout") ||
		strings.Contains(message, "connection reset") ||
		strings.Contains(message, "eof")
}

func parseRetryAfter(value string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// calculateBackoff doubles per attempt from base, capped at max, with jitter
// in [0.5, 1.0) of the computed value to spread out concurrent retries.
func calculateBackoff(base, max time.Duration, attempt int) time.Duration {
	backoff := base * time.Duration(1<<uint(attempt-1))
	if backoff > max {
		backoff = max
	}
	jitter := 0.5 + rand.Float64()*0.5
	return time.Duration(float64(backoff) * jitter)
}

var _ ports.HolderIndex = (*Client)(nil)
