package market

import (
	"context"
	"fmt"
	"time"

	"github.com/aldhinn/Fintel/internal/adapters/config"
	"github.com/aldhinn/Fintel/pkg/models"
)

// RawBar is one daily bar as reported by a provider, before normalization
type RawBar struct {
	Date     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	AdjClose *float64
	Volume   *int64
}

// Fetcher pulls daily bars and metadata for a symbol.
// Implementations never return provider errors: failures are logged and
// surface as an empty result or the description placeholder.
type Fetcher interface {
	// Source tags every bar this fetcher returns
	Source() models.PriceSource

	// FetchBars returns bars in [start, end]. Nil start and end fetch the full history.
	FetchBars(ctx context.Context, symbol string, start, end *time.Time) []RawBar

	// FetchDescription returns a human readable name or models.DescriptionPlaceholder
	FetchDescription(ctx context.Context, symbol string) string
}

// New builds the fetcher selected by cfg.Provider
func New(cfg *config.MarketConfig) (Fetcher, error) {
	client := newHTTPClient(cfg.HTTPTimeout, cfg.RateLimit)

	switch models.PriceSource(cfg.Provider) {
	case models.SourceYahooFinance:
		return NewYahooFetcher(client), nil
	case models.SourceAlphaVantage:
		if cfg.AlphaVantageAPIKey == "" {
			return nil, fmt.Errorf("alpha vantage requires an api key")
		}
		return NewAlphaVantageFetcher(client, cfg.AlphaVantageAPIKey), nil
	default:
		return nil, fmt.Errorf("unknown market provider: %s", cfg.Provider)
	}
}

// inRange reports whether day falls inside the optional inclusive bounds
func inRange(day time.Time, start, end *time.Time) bool {
	if start != nil && day.Before(models.DateOnly(*start)) {
		return false
	}
	if end != nil && day.After(models.DateOnly(*end)) {
		return false
	}
	return true
}
