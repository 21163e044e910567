package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/aldhinn/Fintel/internal/adapters/database"
	"github.com/aldhinn/Fintel/internal/assets"
	"github.com/aldhinn/Fintel/pkg/logger"
	"github.com/aldhinn/Fintel/pkg/models"
)

const dateLayout = "2006-01-02"

// DataResponse carries an asset description and its bars for a date range
type DataResponse struct {
	Description string     `json:"description"`
	Prices      []PriceRow `json:"prices"`
}

// PriceRow is one bar in a data response
type PriceRow struct {
	Date          string   `json:"date"`
	OpenPrice     float64  `json:"open_price"`
	ClosePrice    float64  `json:"close_price"`
	HighPrice     float64  `json:"high_price"`
	LowPrice      float64  `json:"low_price"`
	AdjustedClose *float64 `json:"adjusted_close"`
	Volume        *float64 `json:"volume"`
}

type dataQuery struct {
	symbol string
	start  time.Time
	end    time.Time
}

type dataHandler struct {
	assets AssetRegistry
	prices PriceReader
}

func (h *dataHandler) Process(ctx context.Context, method string, request any) (any, int) {
	if method != http.MethodGet && method != http.MethodPost {
		return nil, http.StatusNoContent
	}

	q, err := parseDataQuery(request)
	if err != nil {
		return errorBody(err.Error()), http.StatusBadRequest
	}

	asset, err := h.assets.GetBySymbol(ctx, q.symbol)
	if err != nil {
		if database.IsNotFound(err) {
			return errorBody("The symbol does not exist in the database."), http.StatusNotFound
		}
		logger.Error("failed to load asset", zap.String("symbol", q.symbol), zap.Error(err))
		return errorBody("Failed to retrieve asset entries."), http.StatusInternalServerError
	}

	points, err := h.prices.QueryRange(ctx, asset.ID, q.start, q.end)
	if err != nil {
		logger.Error("failed to query prices",
			zap.String("symbol", q.symbol),
			zap.Error(err),
		)
		return errorBody("Failed to retrieve price point entries."), http.StatusInternalServerError
	}

	description := models.DescriptionPlaceholder
	if asset.Description != nil {
		description = *asset.Description
	}

	rows := make([]PriceRow, 0, len(points))
	for _, p := range points {
		rows = append(rows, toPriceRow(p))
	}

	return DataResponse{Description: description, Prices: rows}, http.StatusOK
}

// parseDataQuery validates the symbol/start_date/end_date object
func parseDataQuery(request any) (*dataQuery, error) {
	params, ok := request.(map[string]any)
	if !ok {
		return nil, &ValidationError{Message: "Request should come as an object."}
	}

	raw := make(map[string]string, 3)
	for _, key := range []string{"symbol", "start_date", "end_date"} {
		v, present := params[key]
		if !present || v == nil {
			return nil, &ValidationError{Message: "The fields symbol, start_date, and end_date are required."}
		}
		s, ok := v.(string)
		if !ok {
			return nil, &ValidationError{Message: "Data provided should all be strings."}
		}
		raw[key] = s
	}

	symbol, err := assets.NormalizeSymbol(raw["symbol"])
	if err != nil {
		return nil, &ValidationError{Message: "Invalid asset symbol value."}
	}

	start, err := time.Parse(dateLayout, raw["start_date"])
	if err != nil {
		return nil, &ValidationError{Message: "start_date must be formatted as YYYY-MM-DD."}
	}
	end, err := time.Parse(dateLayout, raw["end_date"])
	if err != nil {
		return nil, &ValidationError{Message: "end_date must be formatted as YYYY-MM-DD."}
	}
	if start.After(end) {
		return nil, &ValidationError{Message: "start_date must not be after end_date."}
	}

	return &dataQuery{symbol: symbol, start: start, end: end}, nil
}

func toPriceRow(p models.PricePoint) PriceRow {
	row := PriceRow{
		Date:          p.Date.Format(dateLayout),
		OpenPrice:     models.ToFloat64(p.Open),
		ClosePrice:    models.ToFloat64(p.Close),
		HighPrice:     models.ToFloat64(p.High),
		LowPrice:      models.ToFloat64(p.Low),
		AdjustedClose: models.FloatPtr(p.AdjustedClose),
	}
	if p.Volume != nil {
		v := float64(*p.Volume)
		row.Volume = &v
	}
	return row
}
