package prices

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/aldhinn/Fintel/internal/adapters/database"
	"github.com/aldhinn/Fintel/pkg/logger"
	"github.com/aldhinn/Fintel/pkg/models"
)

// UpsertResult reports how many bars were written and how many already existed
type UpsertResult struct {
	Inserted int
	Skipped  int
}

// Repository handles price history database operations
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new price repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// BulkUpsert writes bars for one asset in a single transaction. Bars whose
// (asset_id, date, source) already exist are skipped. Any other failure
// rolls back the whole batch.
func (r *Repository) BulkUpsert(ctx context.Context, assetID uuid.UUID, bars []models.PricePoint) (UpsertResult, error) {
	if len(bars) == 0 {
		return UpsertResult{}, nil
	}

	query := `
		INSERT INTO price_points (
			asset_id, date, open_price, high_price, low_price, close_price,
			adjusted_close, volume, source
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (asset_id, date, source) DO NOTHING
	`

	result, err := r.insertBars(ctx, query, assetID, bars)
	if err != nil {
		return UpsertResult{}, err
	}

	logger.Debug("price points stored",
		zap.String("asset_id", assetID.String()),
		zap.Int("inserted", result.Inserted),
		zap.Int("skipped", result.Skipped),
	)

	return result, nil
}

func (r *Repository) insertBars(ctx context.Context, query string, assetID uuid.UUID, bars []models.PricePoint) (UpsertResult, error) {
	var result UpsertResult

	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		result = UpsertResult{}

		stmt, err := tx.PreparexContext(ctx, query)
		if err != nil {
			return database.WrapDBError("prepare price insert", err)
		}
		defer stmt.Close()

		for _, bar := range bars {
			res, err := stmt.ExecContext(ctx,
				assetID,
				models.DateOnly(bar.Date),
				bar.Open,
				bar.High,
				bar.Low,
				bar.Close,
				bar.AdjustedClose,
				bar.Volume,
				bar.Source,
			)
			if err != nil {
				return database.WrapDBError("insert price point", err)
			}

			n, err := res.RowsAffected()
			if err != nil {
				return database.WrapDBError("insert price point", err)
			}
			if n == 0 {
				result.Skipped++
				continue
			}
			result.Inserted++
		}

		return nil
	})

	return result, err
}

// QueryRange returns bars with start <= date <= end ordered by date
func (r *Repository) QueryRange(ctx context.Context, assetID uuid.UUID, start, end time.Time) ([]models.PricePoint, error) {
	query := `
		SELECT id, asset_id, date, open_price, high_price, low_price, close_price,
		       adjusted_close, volume, source
		FROM price_points
		WHERE asset_id = $1
		  AND date BETWEEN $2 AND $3
		ORDER BY date ASC, source ASC
	`

	points := []models.PricePoint{}
	if err := r.db.SelectContext(ctx, &points, query, assetID, models.DateOnly(start), models.DateOnly(end)); err != nil {
		return nil, database.WrapDBError("query price range", err)
	}

	return points, nil
}

// History returns the full bar history for an asset ordered by date
func (r *Repository) History(ctx context.Context, assetID uuid.UUID) ([]models.PricePoint, error) {
	query := `
		SELECT DISTINCT ON (date)
		       id, asset_id, date, open_price, high_price, low_price, close_price,
		       adjusted_close, volume, source
		FROM price_points
		WHERE asset_id = $1
		ORDER BY date ASC, source ASC
	`

	points := []models.PricePoint{}
	if err := r.db.SelectContext(ctx, &points, query, assetID); err != nil {
		return nil, database.WrapDBError("load price history", err)
	}

	return points, nil
}

// LatestDate returns the most recent bar date for an asset.
// The boolean is false when the asset has no bars.
func (r *Repository) LatestDate(ctx context.Context, assetID uuid.UUID) (time.Time, bool, error) {
	query := `SELECT MAX(date) FROM price_points WHERE asset_id = $1`

	var latest sql.NullTime
	if err := r.db.GetContext(ctx, &latest, query, assetID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, database.WrapDBError("latest price date", err)
	}

	if !latest.Valid {
		return time.Time{}, false, nil
	}

	return models.DateOnly(latest.Time), true, nil
}

// Count returns the number of stored bars for an asset
func (r *Repository) Count(ctx context.Context, assetID uuid.UUID) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM price_points WHERE asset_id = $1`, assetID); err != nil {
		return 0, database.WrapDBError("count price points", err)
	}
	return n, nil
}
