package chain

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type fakeOracle struct {
	prices []decimal.Decimal
	err    error
	calls  int
}

func (o *fakeOracle) GasPriceGwei(context.Context) (decimal.Decimal, error) {
	o.calls++
	if o.err != nil {
		return decimal.Zero, o.err
	}
	price := o.prices[0]
	if len(o.prices) > 1 {
		o.prices = o.prices[1:]
	}
	return price, nil
}

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func TestCachedPriceGateThreshold(t *testing.T) {
	cases := []struct {
		price      string
		ceiling    string
		acceptable bool
	}{
		{"29.9", "30", true},
		{"30", "30", true}, // ceiling is inclusive
		{"30.1", "30", false},
	}
	for _, tc := range cases {
		gate := &CachedPriceGate{
			Oracle:      &fakeOracle{prices: []decimal.Decimal{decimal.RequireFromString(tc.price)}},
			MaxFeePrice: decimal.RequireFromString(tc.ceiling),
		}
		acceptable, err := gate.Acceptable(context.Background())
		if err != nil {
			t.Fatalf("price %s: unexpected error %v", tc.price, err)
		}
		if acceptable != tc.acceptable {
			t.Fatalf("price %s vs ceiling %s: expected acceptable=%v", tc.price, tc.ceiling, tc.acceptable)
		}
	}
}

func TestCachedPriceGateCachesWithinTTL(t *testing.T) {
	clock := &fixedClock{now: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)}
	oracle := &fakeOracle{prices: []decimal.Decimal{
		decimal.NewFromInt(20),
		decimal.NewFromInt(50),
	}}
	gate := &CachedPriceGate{
		Oracle:      oracle,
		MaxFeePrice: decimal.NewFromInt(30),
		TTL:         30 * time.Second,
		Clock:       clock,
	}

	for i := 0; i < 3; i++ {
		acceptable, err := gate.Acceptable(context.Background())
		if err != nil {
			t.Fatalf("check %d failed: %v", i, err)
		}
		if !acceptable {
			t.Fatalf("check %d: cached reading 20 should pass the gate", i)
		}
	}
	if oracle.calls != 1 {
		t.Fatalf("expected a single oracle call within the TTL, got %d", oracle.calls)
	}

	// Past the TTL the gate refetches and sees the spike.
	clock.now = clock.now.Add(time.Minute)
	acceptable, err := gate.Acceptable(context.Background())
	if err != nil {
		t.Fatalf("post-ttl check failed: %v", err)
	}
	if acceptable {
		t.Fatalf("refetched reading 50 should close the gate")
	}
	if oracle.calls != 2 {
		t.Fatalf("expected a second oracle call after the TTL, got %d", oracle.calls)
	}
}

func TestCachedPriceGatePropagatesOracleError(t *testing.T) {
	oracleErr := errors.New("node down")
	gate := &CachedPriceGate{
		Oracle:      &fakeOracle{err: oracleErr},
		MaxFeePrice: decimal.NewFromInt(30),
	}
	if _, err := gate.Acceptable(context.Background()); !errors.Is(err, oracleErr) {
		t.Fatalf("expected oracle error, got %v", err)
	}
}

func TestFeeOracleConvertsHexWeiToGwei(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 25 gwei in wei: 25_000_000_000 = 0x5d21dba00.
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x5d21dba00"}`))
	}))
	defer server.Close()

	oracle := NewFeeOracle(server.URL)
	price, err := oracle.GasPriceGwei(context.Background())
	if err != nil {
		t.Fatalf("gas price failed: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("expected 25 gwei, got %s", price)
	}
}

func TestFeeOracleRejectsMalformedResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"not-hex"}`))
	}))
	defer server.Close()

	oracle := NewFeeOracle(server.URL)
	if _, err := oracle.GasPriceGwei(context.Background()); err == nil {
		t.Fatalf("expected error for malformed gas price")
	}
}
