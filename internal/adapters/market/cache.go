package market

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aldhinn/Fintel/pkg/logger"
	"github.com/aldhinn/Fintel/pkg/models"
)

// DescriptionCache stores provider descriptions between ingestion runs
type DescriptionCache interface {
	GetDescription(ctx context.Context, symbol string) (string, bool, error)
	SetDescription(ctx context.Context, symbol, description string, ttl time.Duration) error
}

// CachedFetcher serves descriptions from a cache before asking the provider.
// Bars always go to the provider.
type CachedFetcher struct {
	Fetcher
	cache DescriptionCache
	ttl   time.Duration
}

var _ Fetcher = (*CachedFetcher)(nil)

// NewCachedFetcher wraps next with a description cache
func NewCachedFetcher(next Fetcher, cache DescriptionCache, ttl time.Duration) *CachedFetcher {
	return &CachedFetcher{Fetcher: next, cache: cache, ttl: ttl}
}

// FetchDescription checks the cache, then falls through to the wrapped fetcher.
// Placeholders are never cached so a later run can still pick up the real name.
func (c *CachedFetcher) FetchDescription(ctx context.Context, symbol string) string {
	desc, ok, err := c.cache.GetDescription(ctx, symbol)
	if err != nil {
		logger.Warn("description cache read failed",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
	} else if ok {
		logger.Debug("description cache hit", zap.String("symbol", symbol))
		return desc
	}

	desc = c.Fetcher.FetchDescription(ctx, symbol)
	if desc == models.DescriptionPlaceholder {
		return desc
	}

	if err := c.cache.SetDescription(ctx, symbol, desc, c.ttl); err != nil {
		logger.Warn("description cache write failed",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
	}

	return desc
}
