package ingest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aldhinn/Fintel/internal/adapters/market"
	"github.com/aldhinn/Fintel/internal/prices"
	"github.com/aldhinn/Fintel/pkg/logger"
	"github.com/aldhinn/Fintel/pkg/models"
)

// Mode selects how much history a run fetches
type Mode int

const (
	// ModeFull fetches the provider's entire history
	ModeFull Mode = iota
	// ModeIncremental fetches yesterday..today, or from the day after the last stored bar if older
	ModeIncremental
)

func (m Mode) String() string {
	if m == ModeIncremental {
		return "incremental"
	}
	return "full"
}

// AssetStore is the registry subset the pipeline needs
type AssetStore interface {
	GetBySymbol(ctx context.Context, symbol string) (*models.Asset, error)
	Promote(ctx context.Context, id uuid.UUID, description string) error
}

// PriceStore is the price history subset the pipeline needs
type PriceStore interface {
	BulkUpsert(ctx context.Context, assetID uuid.UUID, bars []models.PricePoint) (prices.UpsertResult, error)
	LatestDate(ctx context.Context, assetID uuid.UUID) (time.Time, bool, error)
}

// Result summarizes one ingestion run
type Result struct {
	Fetched  int
	Inserted int
	Skipped  int
	Promoted bool
}

// Pipeline runs FETCH -> NORMALIZE -> STORE_BARS -> FETCH_DESCRIPTION -> PROMOTE for one asset
type Pipeline struct {
	assets  AssetStore
	prices  PriceStore
	fetcher market.Fetcher
	now     func() time.Time
}

// NewPipeline creates an ingestion pipeline
func NewPipeline(assets AssetStore, prices PriceStore, fetcher market.Fetcher) *Pipeline {
	return &Pipeline{
		assets:  assets,
		prices:  prices,
		fetcher: fetcher,
		now:     time.Now,
	}
}

// Run ingests new bars for asset and promotes it when it first gains bars.
// Bars and promotion commit separately: a promotion failure keeps stored bars
// and leaves the asset pending for the next run.
func (p *Pipeline) Run(ctx context.Context, asset *models.Asset, mode Mode) (Result, error) {
	var res Result

	latest, hasBars, err := p.prices.LatestDate(ctx, asset.ID)
	if err != nil {
		return res, fmt.Errorf("load latest bar for %s: %w", asset.Symbol, err)
	}

	// FETCH
	start, end := p.window(mode, latest, hasBars)
	raw := p.fetcher.FetchBars(ctx, asset.Symbol, start, end)
	res.Fetched = len(raw)

	// NORMALIZE
	bars := normalize(asset.ID, p.fetcher.Source(), raw)

	// STORE_BARS
	if len(bars) > 0 {
		upserted, err := p.prices.BulkUpsert(ctx, asset.ID, bars)
		if err != nil {
			return res, fmt.Errorf("store bars for %s: %w", asset.Symbol, err)
		}
		res.Inserted = upserted.Inserted
		res.Skipped = upserted.Skipped
		hasBars = hasBars || upserted.Inserted+upserted.Skipped > 0
	}

	logger.Debug("ingestion bars stored",
		zap.String("symbol", asset.Symbol),
		zap.Stringer("mode", mode),
		zap.Int("fetched", res.Fetched),
		zap.Int("inserted", res.Inserted),
		zap.Int("skipped", res.Skipped),
	)

	if asset.IsActive() || !hasBars {
		return res, nil
	}

	// FETCH_DESCRIPTION + PROMOTE
	description := p.fetcher.FetchDescription(ctx, asset.Symbol)
	if err := p.assets.Promote(ctx, asset.ID, description); err != nil {
		return res, fmt.Errorf("promote %s: %w", asset.Symbol, err)
	}

	asset.Status = models.AssetActive
	asset.Description = &description
	res.Promoted = true

	logger.Info("✅ asset promoted to active",
		zap.String("symbol", asset.Symbol),
		zap.String("description", description),
	)

	return res, nil
}

// window returns the fetch bounds for mode; nil bounds mean full history
func (p *Pipeline) window(mode Mode, latest time.Time, hasBars bool) (*time.Time, *time.Time) {
	if mode == ModeFull || !hasBars {
		return nil, nil
	}

	today := models.DateOnly(p.now().UTC())
	start := today.AddDate(0, 0, -1)
	if next := latest.AddDate(0, 0, 1); next.Before(start) {
		start = next
	}

	return &start, &today
}

// normalize maps provider bars onto PricePoint, dropping rows with unusable OHLC
func normalize(assetID uuid.UUID, source models.PriceSource, raw []market.RawBar) []models.PricePoint {
	bars := make([]models.PricePoint, 0, len(raw))

	for _, r := range raw {
		if !validPrice(r.Open) || !validPrice(r.High) || !validPrice(r.Low) || !validPrice(r.Close) {
			logger.Debug("dropping malformed bar",
				zap.String("asset_id", assetID.String()),
				zap.Time("date", r.Date),
			)
			continue
		}

		bar := models.PricePoint{
			AssetID: assetID,
			Date:    models.DateOnly(r.Date),
			Open:    decimal.NewFromFloat(r.Open),
			High:    decimal.NewFromFloat(r.High),
			Low:     decimal.NewFromFloat(r.Low),
			Close:   decimal.NewFromFloat(r.Close),
			Source:  source,
		}
		if r.AdjClose != nil && validPrice(*r.AdjClose) {
			bar.AdjustedClose = decimal.NewNullDecimal(decimal.NewFromFloat(*r.AdjClose))
		}
		if r.Volume != nil && *r.Volume >= 0 {
			v := *r.Volume
			bar.Volume = &v
		}

		bars = append(bars, bar)
	}

	return bars
}

func validPrice(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
