package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aldhinn/Fintel/internal/forecast"
	"github.com/aldhinn/Fintel/pkg/logger"
)

// Trainer refreshes the forecast for an asset after first ingestion
type Trainer interface {
	TrainOrUpdate(ctx context.Context, assetID uuid.UUID) (*forecast.Outcome, error)
}

// Dispatcher runs first-time ingestion for newly registered symbols in the background
type Dispatcher struct {
	pipeline *Pipeline
	assets   AssetStore
	trainer  Trainer
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher. trainer may be nil.
func NewDispatcher(pipeline *Pipeline, assets AssetStore, trainer Trainer) *Dispatcher {
	return &Dispatcher{
		pipeline: pipeline,
		assets:   assets,
		trainer:  trainer,
	}
}

// Dispatch starts ingestion for symbols and returns immediately.
// The work runs on its own context and outlives the calling request.
func (d *Dispatcher) Dispatch(symbols []string) {
	if len(symbols) == 0 {
		return
	}

	batch := append([]string(nil), symbols...)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx := context.Background()
		for _, symbol := range batch {
			d.ingest(ctx, symbol)
		}
	}()
}

// Wait blocks until dispatched work finishes or timeout elapses.
// Returns false on timeout.
func (d *Dispatcher) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (d *Dispatcher) ingest(ctx context.Context, symbol string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("background ingestion panicked",
				zap.String("symbol", symbol),
				zap.Any("panic", r),
			)
		}
	}()

	asset, err := d.assets.GetBySymbol(ctx, symbol)
	if err != nil {
		logger.Warn("background ingestion could not load asset",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return
	}

	if asset.IsActive() {
		logger.Debug("asset already active, skipping first ingestion", zap.String("symbol", symbol))
		return
	}

	res, err := d.pipeline.Run(ctx, asset, ModeFull)
	if err != nil {
		logger.Warn("background ingestion failed, asset stays pending",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return
	}

	if !res.Promoted {
		logger.Warn("no bars returned for new asset, asset stays pending",
			zap.String("symbol", symbol),
		)
		return
	}

	if d.trainer == nil {
		return
	}

	if _, err := d.trainer.TrainOrUpdate(ctx, asset.ID); err != nil {
		logger.Warn("initial training failed",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
	}
}
