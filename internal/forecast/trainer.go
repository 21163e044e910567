package forecast

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aldhinn/Fintel/internal/adapters/config"
	"github.com/aldhinn/Fintel/internal/adapters/database"
	"github.com/aldhinn/Fintel/internal/indicators"
	"github.com/aldhinn/Fintel/pkg/logger"
	"github.com/aldhinn/Fintel/pkg/models"
)

// PriceHistory supplies the bars a model trains on
type PriceHistory interface {
	History(ctx context.Context, assetID uuid.UUID) ([]models.PricePoint, error)
}

// Store persists models and predictions
type Store interface {
	GetModel(ctx context.Context, assetID uuid.UUID) (*models.ForecastModel, error)
	PredictedValues(ctx context.Context, assetID uuid.UUID) (map[time.Time]float64, error)
	SaveTraining(ctx context.Context, model *models.ForecastModel, prediction *models.Prediction) (uuid.UUID, error)
}

// Outcome describes one TrainOrUpdate call
type Outcome struct {
	Skipped        bool
	WarmStarted    bool
	Samples        int
	Loss           float64
	ModelID        uuid.UUID
	PredictionDate time.Time
	PredictedValue float64
}

// Trainer fits per-asset models and records next-day predictions
type Trainer struct {
	prices PriceHistory
	store  Store
	calc   *indicators.Calculator
	window int
	hidden int
	opts   TrainOptions
}

// NewTrainer creates a trainer from forecast settings
func NewTrainer(cfg *config.ForecastConfig, prices PriceHistory, store Store) *Trainer {
	window := cfg.Window
	if window < 1 {
		window = DefaultWindow
	}

	return &Trainer{
		prices: prices,
		store:  store,
		calc:   indicators.NewCalculator(),
		window: window,
		hidden: cfg.HiddenUnits,
		opts: TrainOptions{
			Epochs:       cfg.Epochs,
			LearningRate: cfg.LearningRate,
			BatchSize:    cfg.BatchSize,
		},
	}
}

// TrainOrUpdate fits the asset's model on its full history, warm-starting
// from the stored model when its shape still matches, then stores the model
// and a prediction for the next business day in one transaction.
// Too little history is not an error: the outcome is marked Skipped.
func (t *Trainer) TrainOrUpdate(ctx context.Context, assetID uuid.UUID) (*Outcome, error) {
	bars, err := t.prices.History(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	predicted, err := t.store.PredictedValues(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("load previous predictions: %w", err)
	}

	fs := t.calc.Features(bars, predicted).DropNonFinite()
	if fs.Len() <= t.window {
		logger.Info("not enough history to train, skipping",
			zap.String("asset_id", assetID.String()),
			zap.Int("bars", len(bars)),
			zap.Int("usable_rows", fs.Len()),
			zap.Int("window", t.window),
		)
		return &Outcome{Skipped: true}, nil
	}

	rng := seededRand(assetID)
	net, stored, warm := t.loadNetwork(ctx, assetID)
	if !warm {
		net = NewNetwork(t.window, indicators.NumFeatures, t.hidden, rng)
	}

	if err := net.FeatureScaler.Fit(fs.Rows); err != nil {
		return nil, err
	}
	if err := net.TargetScaler.FitValues(fs.Targets); err != nil {
		return nil, err
	}

	rows := net.FeatureScaler.Transform(fs.Rows)
	targets := net.TargetScaler.TransformValues(fs.Targets)

	X, y := Windowize(rows, targets, t.window)
	loss := net.Fit(X, y, t.opts, rng)

	value := net.TargetScaler.Inverse(0, net.Predict(rows[len(rows)-t.window:]))
	if math.IsNaN(value) || math.IsInf(value, 0) || math.IsNaN(loss) {
		return nil, fmt.Errorf("training diverged for asset %s", assetID)
	}

	blob, err := net.Save()
	if err != nil {
		return nil, err
	}

	model := &models.ForecastModel{
		AssetID:           assetID,
		ModelType:         ModelType,
		SerializedWeights: blob,
	}
	if stored != nil {
		model.ID = stored.ID
	}

	prediction := &models.Prediction{
		AssetID:   assetID,
		Date:      NextBusinessDay(fs.Dates[fs.Len()-1]),
		Type:      models.PredictAdjustedClose,
		Value:     decimal.NewFromFloat(value).Round(6),
		Retrained: warm,
	}

	modelID, err := t.store.SaveTraining(ctx, model, prediction)
	if err != nil {
		return nil, fmt.Errorf("save training result: %w", err)
	}

	logger.Info("📈 forecast updated",
		zap.String("asset_id", assetID.String()),
		zap.Bool("warm_start", warm),
		zap.Int("samples", len(X)),
		zap.Float64("loss", loss),
		zap.Time("prediction_date", prediction.Date),
		zap.String("prediction", prediction.Value.String()),
	)

	return &Outcome{
		WarmStarted:    warm,
		Samples:        len(X),
		Loss:           loss,
		ModelID:        modelID,
		PredictionDate: prediction.Date,
		PredictedValue: value,
	}, nil
}

// loadNetwork returns the stored network when it can be warm-started.
// The stored record is returned even when its weights are unusable so the
// replacement keeps the same model id.
func (t *Trainer) loadNetwork(ctx context.Context, assetID uuid.UUID) (*Network, *models.ForecastModel, bool) {
	stored, err := t.store.GetModel(ctx, assetID)
	if err != nil {
		if !database.IsNotFound(err) {
			logger.Warn("failed to load stored model, training from scratch",
				zap.String("asset_id", assetID.String()),
				zap.Error(err),
			)
		}
		return nil, nil, false
	}

	net, err := Load(stored.SerializedWeights)
	if err != nil {
		logger.Warn("stored model is unreadable, training from scratch",
			zap.String("asset_id", assetID.String()),
			zap.Error(err),
		)
		return nil, stored, false
	}

	if !net.Matches(t.window, indicators.NumFeatures, t.hidden) {
		logger.Info("stored model shape changed, training from scratch",
			zap.String("asset_id", assetID.String()),
		)
		return nil, stored, false
	}

	return net, stored, true
}

// NextBusinessDay returns the first weekday after date
func NextBusinessDay(date time.Time) time.Time {
	next := models.DateOnly(date).AddDate(0, 0, 1)
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func seededRand(assetID uuid.UUID) *rand.Rand {
	return rand.New(rand.NewPCG(
		binary.BigEndian.Uint64(assetID[:8]),
		binary.BigEndian.Uint64(assetID[8:]),
	))
}
