package oracle

import (
	"context"
	"time"

	"marketfeed/internal/market"

	"go.uber.org/zap"
)

// RandomBaselineCeiling bounds the fallback baseline: U[0, RandomBaselineCeiling).
const RandomBaselineCeiling = 100.0

// BaselineLoader produces the startup baseline of every catalog asset.
type BaselineLoader struct {
	Oracle  *Oracle // nil disables the external lookup
	Timeout time.Duration
	Fixed   float64 // > 0 forces every baseline to this value
	Rand    market.Rand
	Logger  *zap.Logger
}

// Load returns a positive baseline for every symbol in catalog. Oracle prices are
// used where resolved; everything else falls back to a random baseline. It never fails.
func (l *BaselineLoader) Load(ctx context.Context, catalog market.Catalog) map[string]float64 {
	out := make(map[string]float64, len(catalog))

	if l.Fixed > 0 {
		for _, a := range catalog {
			out[a.Symbol] = l.Fixed
		}
		l.Logger.Info("using fixed baselines", zap.Float64("baseline", l.Fixed), zap.Int("count", len(catalog)))
		return out
	}

	var resolved map[string]float64
	if l.Oracle != nil {
		fetchCtx := ctx
		if l.Timeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(ctx, l.Timeout)
			defer cancel()
		}

		prices, err := l.Oracle.FetchBaselines(fetchCtx, catalog)
		if err != nil {
			l.Logger.Warn("baseline fetch failed, using random baselines", zap.Error(err))
		} else {
			resolved = prices
		}
	}

	var unresolved []string
	for _, a := range catalog {
		if p, ok := resolved[a.Symbol]; ok {
			out[a.Symbol] = p
			continue
		}
		out[a.Symbol] = l.randomBaseline()
		unresolved = append(unresolved, a.Symbol)
	}

	if resolved != nil {
		l.Logger.Info("initialized market prices from oracle",
			zap.Int("resolved", len(catalog)-len(unresolved)),
			zap.Strings("unresolved", unresolved))
	}
	return out
}

func (l *BaselineLoader) randomBaseline() float64 {
	rnd := l.Rand
	if rnd == nil {
		rnd = market.DefaultRand()
	}
	for {
		// zero would break the band invariant
		if v := rnd.Float64() * RandomBaselineCeiling; v > 0 {
			return v
		}
	}
}
