package oracle

import (
	"context"
	"fmt"

	"marketfeed/internal/market"
)

// PriceSource performs one aggregated price lookup by external id.
type PriceSource interface {
	SimplePrice(ctx context.Context, ids []string, vsCurrency string) (map[string]float64, error)
}

// Oracle translates catalog symbols to external ids and queries a PriceSource once.
type Oracle struct {
	source     PriceSource
	vsCurrency string
}

func New(source PriceSource, vsCurrency string) *Oracle {
	return &Oracle{source: source, vsCurrency: vsCurrency}
}

// FetchBaselines returns the resolved price of each symbol. Symbols without an
// external id, missing from the response, or quoted at a non-positive price are
// left out. An error means nothing could be resolved.
func (o *Oracle) FetchBaselines(ctx context.Context, catalog market.Catalog) (map[string]float64, error) {
	ids := make([]string, 0, len(catalog))
	seen := make(map[string]bool, len(catalog))
	for _, a := range catalog {
		if a.CoinGeckoID == "" || seen[a.CoinGeckoID] {
			continue
		}
		seen[a.CoinGeckoID] = true
		ids = append(ids, a.CoinGeckoID)
	}

	if len(ids) == 0 {
		return map[string]float64{}, nil
	}

	prices, err := o.source.SimplePrice(ctx, ids, o.vsCurrency)
	if err != nil {
		return nil, fmt.Errorf("fetch baselines: %w", err)
	}

	out := make(map[string]float64, len(catalog))
	for _, a := range catalog {
		if a.CoinGeckoID == "" {
			continue
		}
		if p, ok := prices[a.CoinGeckoID]; ok && p > 0 {
			out[a.Symbol] = p
		}
	}
	return out, nil
}
