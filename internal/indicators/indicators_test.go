package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aldhinn/Fintel/pkg/models"
)

func TestCalculator_Features(t *testing.T) {
	calc := NewCalculator()

	bars := generateTestBars(40, 100, 0.01)
	fs := calc.Features(bars, nil)

	if fs.Len() != 40 {
		t.Fatalf("Expected 40 rows, got %d", fs.Len())
	}

	for i, row := range fs.Rows {
		if len(row) != NumFeatures {
			t.Fatalf("Row %d has %d columns, want %d", i, len(row), NumFeatures)
		}
	}

	// RSI needs 14 changes before it is defined
	if !math.IsNaN(fs.Rows[13][ColRSI14]) {
		t.Error("RSI warm-up row should be NaN")
	}
	rsi := fs.Rows[14][ColRSI14]
	if rsi < 0 || rsi > 100 {
		t.Errorf("RSI should be between 0-100, got %.2f", rsi)
	}

	if !math.IsNaN(fs.Rows[3][ColSMA5]) {
		t.Error("SMA5 warm-up row should be NaN")
	}
	if math.IsNaN(fs.Rows[4][ColSMA5]) {
		t.Error("SMA5 should be defined from row 4")
	}

	if !math.IsNaN(fs.Rows[0][ColPctChange]) {
		t.Error("First percent change should be NaN")
	}

	if fs.Targets[20] != fs.Rows[20][ColAdjClose] {
		t.Error("Target should equal adjusted close")
	}
}

func TestCalculator_AdjustedCloseFallback(t *testing.T) {
	calc := NewCalculator()

	bars := generateTestBars(3, 50, 0)
	bars[1].AdjustedClose = decimal.NullDecimal{}

	fs := calc.Features(bars, nil)

	if fs.Rows[1][ColAdjClose] != fs.Rows[1][ColClose] {
		t.Errorf("Expected adjusted close to fall back to close, got %.4f", fs.Rows[1][ColAdjClose])
	}
}

func TestCalculator_PredictionError(t *testing.T) {
	calc := NewCalculator()

	bars := generateTestBars(5, 100, 0)
	day := models.DateOnly(bars[2].Date)
	actual := models.ToFloat64(bars[2].AdjustedClose.Decimal)

	fs := calc.Features(bars, map[time.Time]float64{day: actual + 1.5})

	if got := fs.Rows[2][ColPredictionError]; math.Abs(got-1.5) > 1e-9 {
		t.Errorf("Expected prediction error 1.5, got %.4f", got)
	}
	if got := fs.Rows[3][ColPredictionError]; got != 0 {
		t.Errorf("Expected zero prediction error without a forecast, got %.4f", got)
	}
}

func TestFeatureSet_DropNonFinite(t *testing.T) {
	calc := NewCalculator()

	bars := generateTestBars(30, 100, 0.01)
	fs := calc.Features(bars, nil).DropNonFinite()

	// rows 0..13 are warm-up
	if fs.Len() != 30-14 {
		t.Fatalf("Expected %d rows, got %d", 30-14, fs.Len())
	}

	for i, row := range fs.Rows {
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("Row %d column %d is not finite", i, j)
			}
		}
	}
	if !fs.Dates[0].Equal(models.DateOnly(bars[14].Date)) {
		t.Errorf("Expected first usable row at %s, got %s", bars[14].Date, fs.Dates[0])
	}
}

func TestCalculator_MissingVolumeKeepsRow(t *testing.T) {
	calc := NewCalculator()

	bars := generateTestBars(30, 100, 0.01)
	bars[20].Volume = nil
	bars[29].Volume = nil

	fs := calc.Features(bars, nil)
	if got := fs.Rows[20][ColVolume]; got != 0 {
		t.Errorf("Expected zero volume for a bar without volume, got %.2f", got)
	}

	usable := fs.DropNonFinite()
	if usable.Len() != 30-14 {
		t.Fatalf("Expected %d rows, got %d", 30-14, usable.Len())
	}
	if last := usable.Dates[usable.Len()-1]; !last.Equal(models.DateOnly(bars[29].Date)) {
		t.Errorf("Expected newest bar to stay usable, last row is %s", last)
	}
}

func TestCalculator_Empty(t *testing.T) {
	fs := NewCalculator().Features(nil, nil)
	if fs.Len() != 0 {
		t.Errorf("Expected no rows, got %d", fs.Len())
	}
	if fs.DropNonFinite().Len() != 0 {
		t.Error("Expected no rows after drop")
	}
}

// generateTestBars builds a zig-zag series drifting by trend per bar
func generateTestBars(count int, startPrice, trend float64) []models.PricePoint {
	bars := make([]models.PricePoint, count)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	price := startPrice

	for i := 0; i < count; i++ {
		swing := 1.0
		if i%2 == 1 {
			swing = -0.6
		}
		open := price
		closePrice := price * (1 + trend + swing*0.01)
		volume := int64(1_000_000 + i*1000)

		bars[i] = models.PricePoint{
			Date:          start.AddDate(0, 0, i),
			Open:          models.NewDecimal(open),
			High:          models.NewDecimal(max(open, closePrice) * 1.002),
			Low:           models.NewDecimal(min(open, closePrice) * 0.998),
			Close:         models.NewDecimal(closePrice),
			AdjustedClose: decimal.NewNullDecimal(models.NewDecimal(closePrice * 0.99)),
			Volume:        &volume,
			Source:        models.SourceYahooFinance,
		}
		price = closePrice
	}

	return bars
}
