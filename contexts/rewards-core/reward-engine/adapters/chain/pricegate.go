package chain

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"jubilee/contexts/rewards-core/reward-engine/ports"

	"github.com/shopspring/decimal"
)

// PriceSource is the oracle dependency of the gate, satisfied by FeeOracle.
type PriceSource interface {
	GasPriceGwei(ctx context.Context) (decimal.Decimal, error)
}

// CachedPriceGate answers whether the current fee price is at or below the
// configured ceiling. Readings are cached for a TTL so a processing pass
// checking the gate before every batch does not hammer the oracle.
type CachedPriceGate struct {
	Oracle      PriceSource
	MaxFeePrice decimal.Decimal
	TTL         time.Duration
	Clock       ports.Clock
	Logger      *slog.Logger

	mu        sync.Mutex
	lastPrice decimal.Decimal
	fetchedAt time.Time
}

func (g *CachedPriceGate) Acceptable(ctx context.Context) (bool, error) {
	price, err := g.currentPrice(ctx)
	if err != nil {
		return false, err
	}
	acceptable := price.LessThanOrEqual(g.MaxFeePrice)
	if !acceptable && g.Logger != nil {
		g.Logger.Info("fee price above ceiling",
			"event", "price_gate_above_ceiling",
			"module", "rewards-core/reward-engine",
			"layer", "adapter",
			"price_gwei", price.String(),
			"max_gwei", g.MaxFeePrice.String(),
		)
	}
	return acceptable, nil
}

func (g *CachedPriceGate) currentPrice(ctx context.Context) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UTC()
	if g.Clock != nil {
		now = g.Clock.Now().UTC()
	}
	if !g.fetchedAt.IsZero() && now.Sub(g.fetchedAt) < g.TTL {
		return g.lastPrice, nil
	}

	price, err := g.Oracle.GasPriceGwei(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	g.lastPrice = price
	g.fetchedAt = now
	return price, nil
}

var _ ports.PriceGate = (*CachedPriceGate)(nil)
