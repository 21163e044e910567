package assets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/aldhinn/Fintel/internal/adapters/database"
	"github.com/aldhinn/Fintel/pkg/logger"
	"github.com/aldhinn/Fintel/pkg/models"
)

// MaxSymbolLength matches the assets.symbol column width
const MaxSymbolLength = 15

// ErrInvalidSymbol is returned for empty or oversized symbols
var ErrInvalidSymbol = errors.New("invalid symbol")

// Repository handles asset registry database operations
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new asset repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// NormalizeSymbol trims and upper-cases a ticker, rejecting empty or oversized input
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return "", fmt.Errorf("%w: empty symbol", ErrInvalidSymbol)
	}
	if len(s) > MaxSymbolLength {
		return "", fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidSymbol, s, MaxSymbolLength)
	}
	return s, nil
}

// RegistrationBatch stages registrations so they commit or roll back together
type RegistrationBatch interface {
	Register(ctx context.Context, symbol string) (bool, error)
	Commit() error
	Rollback() error
}

var _ RegistrationBatch = (*Batch)(nil)

// Batch stages registrations inside a single transaction
type Batch struct {
	tx *sqlx.Tx
}

// BeginBatch opens a registration batch
func (r *Repository) BeginBatch(ctx context.Context) (RegistrationBatch, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, database.WrapDBError("begin registration", err)
	}
	return &Batch{tx: tx}, nil
}

// Register inserts a pending asset unless the symbol is already tracked.
// Returns true when a row was created.
func (b *Batch) Register(ctx context.Context, symbol string) (bool, error) {
	query := `
		INSERT INTO assets (id, symbol, processing_status, created_at, updated_at)
		VALUES ($1, $2, 'pending', NOW(), NOW())
		ON CONFLICT (symbol) DO NOTHING
	`

	res, err := b.tx.ExecContext(ctx, query, uuid.New(), symbol)
	if err != nil {
		return false, database.WrapDBError("register asset", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, database.WrapDBError("register asset", err)
	}

	return n == 1, nil
}

// Commit commits the staged registrations
func (b *Batch) Commit() error {
	if err := b.tx.Commit(); err != nil {
		return database.WrapDBError("commit registration", err)
	}
	return nil
}

// Rollback discards the staged registrations. Safe after Commit.
func (b *Batch) Rollback() error {
	if err := b.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return database.WrapDBError("rollback registration", err)
	}
	return nil
}

// ListActive returns symbols of all active assets ordered by symbol
func (r *Repository) ListActive(ctx context.Context) ([]string, error) {
	query := `
		SELECT symbol
		FROM assets
		WHERE processing_status = 'active'
		ORDER BY symbol
	`

	symbols := []string{}
	if err := r.db.SelectContext(ctx, &symbols, query); err != nil {
		return nil, database.WrapDBError("list active assets", err)
	}

	return symbols, nil
}

// ListTracked returns every asset, active and pending, ordered by symbol
func (r *Repository) ListTracked(ctx context.Context) ([]models.Asset, error) {
	query := `
		SELECT id, symbol, description, processing_status, category, created_at, updated_at
		FROM assets
		ORDER BY symbol
	`

	var assets []models.Asset
	if err := r.db.SelectContext(ctx, &assets, query); err != nil {
		return nil, database.WrapDBError("list tracked assets", err)
	}

	return assets, nil
}

// GetBySymbol loads an asset by its ticker
func (r *Repository) GetBySymbol(ctx context.Context, symbol string) (*models.Asset, error) {
	query := `
		SELECT id, symbol, description, processing_status, category, created_at, updated_at
		FROM assets
		WHERE symbol = $1
	`

	var asset models.Asset
	if err := r.db.GetContext(ctx, &asset, query, symbol); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &database.NotFoundError{Resource: "asset", Key: symbol}
		}
		return nil, database.WrapDBError("get asset", err)
	}

	return &asset, nil
}

// Promote marks the asset active and stores its description. Idempotent.
func (r *Repository) Promote(ctx context.Context, id uuid.UUID, description string) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
			UPDATE assets
			SET processing_status = 'active',
			    description = $2,
			    updated_at = NOW()
			WHERE id = $1
		`

		res, err := tx.ExecContext(ctx, query, id, description)
		if err != nil {
			return database.WrapDBError("promote asset", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return database.WrapDBError("promote asset", err)
		}
		if n == 0 {
			return &database.NotFoundError{Resource: "asset", Key: id.String()}
		}

		logger.Debug("asset promoted", zap.String("asset_id", id.String()))
		return nil
	})
}
