package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aldhinn/Fintel/internal/forecast"
	"github.com/aldhinn/Fintel/internal/ingest"
	"github.com/aldhinn/Fintel/pkg/logger"
	"github.com/aldhinn/Fintel/pkg/models"
)

// AssetLister snapshots the assets a refresh pass covers
type AssetLister interface {
	ListTracked(ctx context.Context) ([]models.Asset, error)
}

// Ingester runs the ingestion pipeline for one asset
type Ingester interface {
	Run(ctx context.Context, asset *models.Asset, mode ingest.Mode) (ingest.Result, error)
}

// Trainer refreshes an asset's forecast
type Trainer interface {
	TrainOrUpdate(ctx context.Context, assetID uuid.UUID) (*forecast.Outcome, error)
}

// RefreshWorker pulls new bars for every tracked asset and retrains active ones
type RefreshWorker struct {
	assets   AssetLister
	pipeline Ingester
	trainer  Trainer
}

// NewRefreshWorker creates new refresh worker
func NewRefreshWorker(assets AssetLister, pipeline Ingester, trainer Trainer) *RefreshWorker {
	return &RefreshWorker{
		assets:   assets,
		pipeline: pipeline,
		trainer:  trainer,
	}
}

// Name returns worker name
func (rw *RefreshWorker) Name() string {
	return "asset_refresh"
}

// Run executes one refresh pass. Active assets fetch incrementally; pending
// assets retry their first full ingestion. A failing asset is logged and
// skipped.
// Called periodically by pkg/worker.PeriodicWorker
func (rw *RefreshWorker) Run(ctx context.Context) error {
	tracked, err := rw.assets.ListTracked(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tracked assets: %w", err)
	}

	logger.Info("🔄 refreshing tracked assets", zap.Int("count", len(tracked)))

	startTime := time.Now()
	var failed, inserted, trained int

	for i := range tracked {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		asset := &tracked[i]
		res, ok := rw.refreshAsset(ctx, asset)
		if !ok {
			failed++
			continue
		}

		inserted += res.inserted
		if res.trained {
			trained++
		}
	}

	logger.Info("refresh pass complete",
		zap.Int("assets", len(tracked)),
		zap.Int("failed", failed),
		zap.Int("bars_inserted", inserted),
		zap.Int("models_trained", trained),
		zap.Duration("latency", time.Since(startTime)),
	)

	return nil
}

type refreshResult struct {
	inserted int
	trained  bool
}

// refreshAsset isolates one asset so a panic or error never aborts the pass
func (rw *RefreshWorker) refreshAsset(ctx context.Context, asset *models.Asset) (res refreshResult, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("asset refresh panicked",
				zap.String("symbol", asset.Symbol),
				zap.Any("panic", r),
			)
			ok = false
		}
	}()

	mode := ingest.ModeIncremental
	if !asset.IsActive() {
		mode = ingest.ModeFull
	}

	ingested, err := rw.pipeline.Run(ctx, asset, mode)
	if err != nil {
		logger.Warn("failed to refresh asset",
			zap.String("symbol", asset.Symbol),
			zap.Stringer("mode", mode),
			zap.Error(err),
		)
		return res, false
	}
	res.inserted = ingested.Inserted

	if !asset.IsActive() {
		logger.Debug("asset still pending after refresh", zap.String("symbol", asset.Symbol))
		return res, true
	}

	outcome, err := rw.trainer.TrainOrUpdate(ctx, asset.ID)
	if err != nil {
		logger.Warn("failed to train forecast",
			zap.String("symbol", asset.Symbol),
			zap.Error(err),
		)
		return res, false
	}
	res.trained = !outcome.Skipped

	return res, true
}
