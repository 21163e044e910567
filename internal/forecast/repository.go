package forecast

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/aldhinn/Fintel/internal/adapters/database"
	"github.com/aldhinn/Fintel/pkg/models"
)

// Repository persists model artifacts and their predictions
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new forecast repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// GetModel returns the stored model for an asset
func (r *Repository) GetModel(ctx context.Context, assetID uuid.UUID) (*models.ForecastModel, error) {
	query := `
		SELECT id, asset_id, model_type, serialized_weights, created_at, last_trained_at
		FROM forecast_models
		WHERE asset_id = $1
	`

	var m models.ForecastModel
	if err := r.db.GetContext(ctx, &m, query, assetID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &database.NotFoundError{Resource: "forecast model", Key: assetID.String()}
		}
		return nil, database.WrapDBError("get forecast model", err)
	}

	return &m, nil
}

// PredictedValues returns the most recent adjusted-close forecast per date
func (r *Repository) PredictedValues(ctx context.Context, assetID uuid.UUID) (map[time.Time]float64, error) {
	query := `
		SELECT DISTINCT ON (date) date, prediction_value
		FROM predictions
		WHERE asset_id = $1 AND prediction_type = $2
		ORDER BY date, created_at DESC
	`

	var rows []struct {
		Date  time.Time       `db:"date"`
		Value decimal.Decimal `db:"prediction_value"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, assetID, models.PredictAdjustedClose); err != nil {
		return nil, database.WrapDBError("load predictions", err)
	}

	out := make(map[time.Time]float64, len(rows))
	for _, row := range rows {
		out[models.DateOnly(row.Date)] = models.ToFloat64(row.Value)
	}

	return out, nil
}

// SaveTraining upserts the asset's model and its prediction in one
// transaction and returns the persisted model id
func (r *Repository) SaveTraining(ctx context.Context, model *models.ForecastModel, prediction *models.Prediction) (uuid.UUID, error) {
	var modelID uuid.UUID

	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		modelQuery := `
			INSERT INTO forecast_models (id, asset_id, model_type, serialized_weights, last_trained_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (asset_id) DO UPDATE SET
				model_type = EXCLUDED.model_type,
				serialized_weights = EXCLUDED.serialized_weights,
				last_trained_at = NOW()
			RETURNING id
		`

		id := model.ID
		if id == uuid.Nil {
			id = uuid.New()
		}

		if err := tx.GetContext(ctx, &modelID, modelQuery, id, model.AssetID, model.ModelType, model.SerializedWeights); err != nil {
			return database.WrapDBError("upsert forecast model", err)
		}

		predictionQuery := `
			INSERT INTO predictions (asset_id, model_id, date, prediction_type, prediction_value, retrained)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (asset_id, model_id, date, prediction_type) DO UPDATE SET
				prediction_value = EXCLUDED.prediction_value,
				retrained = EXCLUDED.retrained,
				created_at = NOW()
		`

		_, err := tx.ExecContext(ctx, predictionQuery,
			prediction.AssetID,
			modelID,
			models.DateOnly(prediction.Date),
			prediction.Type,
			prediction.Value,
			prediction.Retrained,
		)
		if err != nil {
			return database.WrapDBError("upsert prediction", err)
		}

		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	model.ID = modelID
	prediction.ModelID = modelID

	return modelID, nil
}
