package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AssetStatus represents where an asset is in its ingestion lifecycle
type AssetStatus string

const (
	AssetPending AssetStatus = "pending"
	AssetActive  AssetStatus = "active"
)

// AssetCategory classifies a tracked instrument
type AssetCategory string

const (
	CategoryStock      AssetCategory = "stock"
	CategoryETF        AssetCategory = "etf"
	CategoryMutualFund AssetCategory = "mutual_fund"
	CategoryIndex      AssetCategory = "index"
	CategoryCurrency   AssetCategory = "currency"
	CategoryCrypto     AssetCategory = "crypto"
)

// PriceSource identifies the provider a bar came from
type PriceSource string

const (
	SourceYahooFinance PriceSource = "yahoo_finance"
	SourceAlphaVantage PriceSource = "alpha_vantage"
)

// PredictionType names the price field a prediction targets
type PredictionType string

const (
	PredictOpen          PredictionType = "open_price"
	PredictHigh          PredictionType = "high_price"
	PredictLow           PredictionType = "low_price"
	PredictClose         PredictionType = "close_price"
	PredictAdjustedClose PredictionType = "adjusted_close"
	PredictVolume        PredictionType = "volume"
)

// DescriptionPlaceholder is stored when provider metadata is unavailable
const DescriptionPlaceholder = "Description not available"

// Asset is a tracked ticker symbol
type Asset struct {
	ID          uuid.UUID      `db:"id" json:"id"`
	Symbol      string         `db:"symbol" json:"symbol"`
	Description *string        `db:"description" json:"description,omitempty"`
	Status      AssetStatus    `db:"processing_status" json:"processing_status"`
	Category    *AssetCategory `db:"category" json:"category,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// IsActive reports whether the asset has completed first ingestion
func (a *Asset) IsActive() bool {
	return a.Status == AssetActive
}

// PricePoint is one daily OHLCV bar
type PricePoint struct {
	ID            int64               `db:"id" json:"-"`
	AssetID       uuid.UUID           `db:"asset_id" json:"-"`
	Date          time.Time           `db:"date" json:"date"`
	Open          decimal.Decimal     `db:"open_price" json:"open_price"`
	High          decimal.Decimal     `db:"high_price" json:"high_price"`
	Low           decimal.Decimal     `db:"low_price" json:"low_price"`
	Close         decimal.Decimal     `db:"close_price" json:"close_price"`
	AdjustedClose decimal.NullDecimal `db:"adjusted_close" json:"adjusted_close"`
	Volume        *int64              `db:"volume" json:"volume"`
	Source        PriceSource         `db:"source" json:"source"`
}

// ForecastModel is the persisted per-asset model artifact
type ForecastModel struct {
	ID                uuid.UUID `db:"id"`
	AssetID           uuid.UUID `db:"asset_id"`
	ModelType         string    `db:"model_type"`
	SerializedWeights []byte    `db:"serialized_weights"`
	CreatedAt         time.Time `db:"created_at"`
	LastTrainedAt     time.Time `db:"last_trained_at"`
}

// Prediction is a model forecast for one future date
type Prediction struct {
	ID        int64           `db:"id"`
	AssetID   uuid.UUID       `db:"asset_id"`
	ModelID   uuid.UUID       `db:"model_id"`
	Date      time.Time       `db:"date"`
	Type      PredictionType  `db:"prediction_type"`
	Value     decimal.Decimal `db:"prediction_value"`
	CreatedAt time.Time       `db:"created_at"`
	Retrained bool            `db:"retrained"`
}

// DateOnly truncates t to a UTC calendar date
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
