package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aldhinn/Fintel/internal/adapters/database"
	"github.com/aldhinn/Fintel/internal/assets"
	"github.com/aldhinn/Fintel/pkg/models"
)

type mockRegistry struct {
	mock.Mock
}

func (m *mockRegistry) BeginBatch(ctx context.Context) (assets.RegistrationBatch, error) {
	args := m.Called(ctx)
	batch, _ := args.Get(0).(assets.RegistrationBatch)
	return batch, args.Error(1)
}

func (m *mockRegistry) ListActive(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	symbols, _ := args.Get(0).([]string)
	return symbols, args.Error(1)
}

func (m *mockRegistry) GetBySymbol(ctx context.Context, symbol string) (*models.Asset, error) {
	args := m.Called(ctx, symbol)
	asset, _ := args.Get(0).(*models.Asset)
	return asset, args.Error(1)
}

type mockBatch struct {
	mock.Mock
}

func (m *mockBatch) Register(ctx context.Context, symbol string) (bool, error) {
	args := m.Called(ctx, symbol)
	return args.Bool(0), args.Error(1)
}

func (m *mockBatch) Commit() error {
	return m.Called().Error(0)
}

func (m *mockBatch) Rollback() error {
	return m.Called().Error(0)
}

type mockPrices struct {
	mock.Mock
}

func (m *mockPrices) QueryRange(ctx context.Context, assetID uuid.UUID, start, end time.Time) ([]models.PricePoint, error) {
	args := m.Called(ctx, assetID, start, end)
	points, _ := args.Get(0).([]models.PricePoint)
	return points, args.Error(1)
}

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(symbols []string) {
	m.Called(symbols)
}

func TestNewHandler(t *testing.T) {
	for _, endpoint := range []string{EndpointSymbols, EndpointRequest, EndpointData} {
		h, err := NewHandler(endpoint, Deps{})
		require.NoError(t, err, endpoint)
		assert.NotNil(t, h)
	}

	_, err := NewHandler("append", Deps{})
	assert.ErrorIs(t, err, ErrUnknownEndpoint)

	assert.Panics(t, func() { MustHandler("nope", Deps{}) })
}

func TestSymbolsHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("lists active symbols only", func(t *testing.T) {
		registry := &mockRegistry{}
		// MSFT is pending and not returned by ListActive
		registry.On("ListActive", ctx).Return([]string{"AAPL", "GOOGL"}, nil)

		h := MustHandler(EndpointSymbols, Deps{Assets: registry})
		body, status := h.Process(ctx, http.MethodGet, nil)

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, SymbolsResponse{Symbols: []string{"AAPL", "GOOGL"}}, body)
	})

	t.Run("empty registry", func(t *testing.T) {
		registry := &mockRegistry{}
		registry.On("ListActive", ctx).Return(nil, nil)

		body, status := MustHandler(EndpointSymbols, Deps{Assets: registry}).Process(ctx, http.MethodGet, nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, SymbolsResponse{Symbols: []string{}}, body)
	})

	t.Run("non-GET returns no content", func(t *testing.T) {
		registry := &mockRegistry{}
		h := MustHandler(EndpointSymbols, Deps{Assets: registry})

		for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
			body, status := h.Process(ctx, method, nil)
			assert.Nil(t, body)
			assert.Equal(t, http.StatusNoContent, status)
		}
		registry.AssertNotCalled(t, "ListActive", mock.Anything)
	})

	t.Run("query error", func(t *testing.T) {
		registry := &mockRegistry{}
		registry.On("ListActive", ctx).Return(nil, errors.New("db down"))

		_, status := MustHandler(EndpointSymbols, Deps{Assets: registry}).Process(ctx, http.MethodGet, nil)
		assert.Equal(t, http.StatusInternalServerError, status)
	})
}

func TestRequestHandler_Success(t *testing.T) {
	ctx := context.Background()

	batch := &mockBatch{}
	batch.On("Register", ctx, "AAPL").Return(true, nil)
	batch.On("Register", ctx, "GOOGL").Return(false, nil)
	batch.On("Commit").Return(nil).Once()

	registry := &mockRegistry{}
	registry.On("BeginBatch", ctx).Return(batch, nil)

	dispatcher := &mockDispatcher{}
	dispatcher.On("Dispatch", []string{"AAPL", "GOOGL"}).Once()

	h := MustHandler(EndpointRequest, Deps{Assets: registry, Dispatcher: dispatcher})
	body, status := h.Process(ctx, http.MethodPost, []any{"aapl", " GOOGL ", "AAPL"})

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, SuccessResponse{Success: true}, body)
	batch.AssertNotCalled(t, "Rollback")
	batch.AssertNumberOfCalls(t, "Register", 3)
	dispatcher.AssertExpectations(t)
}

func TestRequestHandler_BadBodies(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		request any
	}{
		{"object", map[string]any{"symbol": "AAPL"}},
		{"string", "AAPL"},
		{"nil", nil},
		{"invalid json", invalidBody{}},
		{"empty list", []any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := &mockRegistry{}
			h := MustHandler(EndpointRequest, Deps{Assets: registry, Dispatcher: &mockDispatcher{}})

			body, status := h.Process(ctx, http.MethodPost, tt.request)
			assert.Equal(t, http.StatusBadRequest, status)
			require.IsType(t, ErrorResponse{}, body)
			assert.NotEmpty(t, body.(ErrorResponse).Error)
			registry.AssertNotCalled(t, "BeginBatch", mock.Anything)
		})
	}
}

func TestRequestHandler_InvalidElementRollsBack(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		request    []any
		registered int
	}{
		{"number", []any{"AAPL", 42.0, "GOOGL"}, 1},
		{"number first", []any{42.0, "AAPL"}, 0},
		{"nested list", []any{"AAPL", []any{"MSFT"}}, 1},
		{"blank symbol", []any{"AAPL", "   "}, 1},
		{"too long", []any{"AAPL", "ABCDEFGHIJKLMNOP"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch := &mockBatch{}
			batch.On("Register", ctx, "AAPL").Return(true, nil)
			batch.On("Rollback").Return(nil).Once()

			registry := &mockRegistry{}
			registry.On("BeginBatch", ctx).Return(batch, nil)

			dispatcher := &mockDispatcher{}
			h := MustHandler(EndpointRequest, Deps{Assets: registry, Dispatcher: dispatcher})

			_, status := h.Process(ctx, http.MethodPost, tt.request)

			assert.Equal(t, http.StatusBadRequest, status)
			batch.AssertNumberOfCalls(t, "Register", tt.registered)
			batch.AssertNumberOfCalls(t, "Rollback", 1)
			batch.AssertNotCalled(t, "Commit")
			dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything)
		})
	}
}

func TestRequestHandler_CommitErrorRollsBackOnce(t *testing.T) {
	ctx := context.Background()

	batch := &mockBatch{}
	batch.On("Register", ctx, "AAPL").Return(true, nil)
	batch.On("Commit").Return(errors.New("could not serialize access"))
	batch.On("Rollback").Return(nil)

	registry := &mockRegistry{}
	registry.On("BeginBatch", ctx).Return(batch, nil)

	dispatcher := &mockDispatcher{}
	h := MustHandler(EndpointRequest, Deps{Assets: registry, Dispatcher: dispatcher})

	body, status := h.Process(ctx, http.MethodPost, []any{"AAPL"})

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, body.(ErrorResponse).Error, "could not serialize access")
	batch.AssertNumberOfCalls(t, "Rollback", 1)
	dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything)
}

func TestRequestHandler_RegisterErrorRollsBack(t *testing.T) {
	ctx := context.Background()

	batch := &mockBatch{}
	batch.On("Register", ctx, "AAPL").Return(false, errors.New("connection reset"))
	batch.On("Rollback").Return(nil)

	registry := &mockRegistry{}
	registry.On("BeginBatch", ctx).Return(batch, nil)

	_, status := MustHandler(EndpointRequest, Deps{Assets: registry}).Process(ctx, http.MethodPost, []any{"AAPL"})

	assert.Equal(t, http.StatusInternalServerError, status)
	batch.AssertNumberOfCalls(t, "Rollback", 1)
}

func TestRequestHandler_NonPost(t *testing.T) {
	h := MustHandler(EndpointRequest, Deps{})
	body, status := h.Process(context.Background(), http.MethodGet, []any{"AAPL"})
	assert.Nil(t, body)
	assert.Equal(t, http.StatusNoContent, status)
}

func aaplPoints(assetID uuid.UUID) []models.PricePoint {
	points := make([]models.PricePoint, 0, 5)
	days := []int{2, 3, 4, 5, 8}
	for i, d := range days {
		base := decimal.NewFromFloat(185.5 + float64(i))
		vol := int64(50_000_000 + i)
		p := models.PricePoint{
			AssetID: assetID,
			Date:    time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC),
			Open:    base,
			High:    base.Add(decimal.NewFromInt(2)),
			Low:     base.Sub(decimal.NewFromInt(2)),
			Close:   base.Add(decimal.NewFromInt(1)),
			Volume:  &vol,
			Source:  models.SourceYahooFinance,
		}
		if i != 4 {
			p.AdjustedClose = decimal.NewNullDecimal(base.Add(decimal.NewFromFloat(0.5)))
		}
		points = append(points, p)
	}
	return points
}

func TestDataHandler_Success(t *testing.T) {
	ctx := context.Background()
	desc := "Apple Inc."
	asset := &models.Asset{ID: uuid.New(), Symbol: "AAPL", Status: models.AssetActive, Description: &desc}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	registry := &mockRegistry{}
	registry.On("GetBySymbol", ctx, "AAPL").Return(asset, nil)

	priceReader := &mockPrices{}
	priceReader.On("QueryRange", ctx, asset.ID, start, end).Return(aaplPoints(asset.ID), nil)

	h := MustHandler(EndpointData, Deps{Assets: registry, Prices: priceReader})

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		t.Run(method, func(t *testing.T) {
			body, status := h.Process(ctx, method, map[string]any{
				"symbol":     "aapl",
				"start_date": "2024-01-01",
				"end_date":   "2024-01-31",
			})
			require.Equal(t, http.StatusOK, status)

			resp := body.(DataResponse)
			assert.Equal(t, "Apple Inc.", resp.Description)
			require.Len(t, resp.Prices, 5)

			first := resp.Prices[0]
			assert.Equal(t, "2024-01-02", first.Date)
			assert.Equal(t, 185.5, first.OpenPrice)
			assert.Equal(t, 186.5, first.ClosePrice)
			assert.Equal(t, 187.5, first.HighPrice)
			assert.Equal(t, 183.5, first.LowPrice)
			require.NotNil(t, first.AdjustedClose)
			assert.Equal(t, 186.0, *first.AdjustedClose)
			require.NotNil(t, first.Volume)
			assert.Equal(t, 5e7, *first.Volume)

			assert.Nil(t, resp.Prices[4].AdjustedClose)
		})
	}
}

func TestDataHandler_Validation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		request any
	}{
		{"list body", []any{"AAPL"}},
		{"missing symbol", map[string]any{"start_date": "2024-01-01", "end_date": "2024-01-31"}},
		{"missing end", map[string]any{"symbol": "AAPL", "start_date": "2024-01-01"}},
		{"null start", map[string]any{"symbol": "AAPL", "start_date": nil, "end_date": "2024-01-31"}},
		{"numeric symbol", map[string]any{"symbol": 7.0, "start_date": "2024-01-01", "end_date": "2024-01-31"}},
		{"bad date", map[string]any{"symbol": "AAPL", "start_date": "01/01/2024", "end_date": "2024-01-31"}},
		{"reversed range", map[string]any{"symbol": "AAPL", "start_date": "2024-02-01", "end_date": "2024-01-31"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := &mockRegistry{}
			h := MustHandler(EndpointData, Deps{Assets: registry, Prices: &mockPrices{}})

			_, status := h.Process(ctx, http.MethodPost, tt.request)
			assert.Equal(t, http.StatusBadRequest, status)
			registry.AssertNotCalled(t, "GetBySymbol", mock.Anything, mock.Anything)
		})
	}
}

func TestDataHandler_UnknownSymbol(t *testing.T) {
	ctx := context.Background()

	registry := &mockRegistry{}
	registry.On("GetBySymbol", ctx, "NOPE").Return(nil, &database.NotFoundError{Resource: "asset", Key: "NOPE"})

	priceReader := &mockPrices{}
	h := MustHandler(EndpointData, Deps{Assets: registry, Prices: priceReader})

	body, status := h.Process(ctx, http.MethodPost, map[string]any{
		"symbol": "NOPE", "start_date": "2024-01-01", "end_date": "2024-01-31",
	})

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, ErrorResponse{Error: "The symbol does not exist in the database."}, body)
	priceReader.AssertNotCalled(t, "QueryRange", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDataHandler_StoreErrors(t *testing.T) {
	ctx := context.Background()
	req := map[string]any{"symbol": "AAPL", "start_date": "2024-01-01", "end_date": "2024-01-31"}

	t.Run("asset lookup", func(t *testing.T) {
		registry := &mockRegistry{}
		registry.On("GetBySymbol", ctx, "AAPL").Return(nil, errors.New("db down"))

		_, status := MustHandler(EndpointData, Deps{Assets: registry, Prices: &mockPrices{}}).Process(ctx, http.MethodPost, req)
		assert.Equal(t, http.StatusInternalServerError, status)
	})

	t.Run("price query", func(t *testing.T) {
		asset := &models.Asset{ID: uuid.New(), Symbol: "AAPL"}
		registry := &mockRegistry{}
		registry.On("GetBySymbol", ctx, "AAPL").Return(asset, nil)
		priceReader := &mockPrices{}
		priceReader.On("QueryRange", ctx, asset.ID, mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

		_, status := MustHandler(EndpointData, Deps{Assets: registry, Prices: priceReader}).Process(ctx, http.MethodPost, req)
		assert.Equal(t, http.StatusInternalServerError, status)
	})

	t.Run("pending asset has placeholder description", func(t *testing.T) {
		asset := &models.Asset{ID: uuid.New(), Symbol: "AAPL", Status: models.AssetPending}
		registry := &mockRegistry{}
		registry.On("GetBySymbol", ctx, "AAPL").Return(asset, nil)
		priceReader := &mockPrices{}
		priceReader.On("QueryRange", ctx, asset.ID, mock.Anything, mock.Anything).Return(nil, nil)

		body, status := MustHandler(EndpointData, Deps{Assets: registry, Prices: priceReader}).Process(ctx, http.MethodPost, req)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, DataResponse{Description: models.DescriptionPlaceholder, Prices: []PriceRow{}}, body)
	})
}

func TestDataHandler_OtherMethods(t *testing.T) {
	h := MustHandler(EndpointData, Deps{})
	body, status := h.Process(context.Background(), http.MethodDelete, nil)
	assert.Nil(t, body)
	assert.Equal(t, http.StatusNoContent, status)
}
