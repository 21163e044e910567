package indicators

import (
	"math"
	"time"

	"github.com/cinar/indicator"

	"github.com/aldhinn/Fintel/pkg/models"
)

// Feature column order of every row produced by Calculator.Features
const (
	ColOpen = iota
	ColHigh
	ColLow
	ColClose
	ColAdjClose
	ColVolume
	ColSMA5
	ColSMA10
	ColRSI14
	ColPctChange
	ColVolatility
	ColPredictionError

	NumFeatures
)

const (
	smaShort         = 5
	smaLong          = 10
	rsiPeriod        = 14
	volatilityPeriod = 10
)

// FeatureSet is a per-bar feature matrix aligned with its dates and
// adjusted-close targets
type FeatureSet struct {
	Dates   []time.Time
	Rows    [][]float64
	Targets []float64
}

// Len returns the number of rows
func (fs *FeatureSet) Len() int {
	return len(fs.Rows)
}

// DropNonFinite returns a copy without rows holding NaN or Inf in any
// feature or target
func (fs *FeatureSet) DropNonFinite() *FeatureSet {
	out := &FeatureSet{
		Dates:   make([]time.Time, 0, len(fs.Rows)),
		Rows:    make([][]float64, 0, len(fs.Rows)),
		Targets: make([]float64, 0, len(fs.Rows)),
	}

	for i, row := range fs.Rows {
		if !finite(fs.Targets[i]) || !allFinite(row) {
			continue
		}
		out.Dates = append(out.Dates, fs.Dates[i])
		out.Rows = append(out.Rows, row)
		out.Targets = append(out.Targets, fs.Targets[i])
	}

	return out
}

// Calculator builds model features from daily bars
type Calculator struct{}

// NewCalculator creates new indicator calculator
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Features builds one row per bar. Bars must be ordered by date.
// predicted maps a date to an earlier forecast for it; the prediction error
// column is zero where no forecast exists, as is volume when the provider
// reported none. Warm-up rows of rolling statistics are NaN.
func (c *Calculator) Features(bars []models.PricePoint, predicted map[time.Time]float64) *FeatureSet {
	n := len(bars)
	fs := &FeatureSet{
		Dates:   make([]time.Time, n),
		Rows:    make([][]float64, n),
		Targets: make([]float64, n),
	}
	if n == 0 {
		return fs
	}

	adj := make([]float64, n)
	for i, bar := range bars {
		adj[i] = adjustedClose(bar)
	}

	sma5 := masked(indicator.Sma(smaShort, adj), smaShort-1)
	sma10 := masked(indicator.Sma(smaLong, adj), smaLong-1)

	_, rsi := indicator.Rsi(adj)
	rsi = masked(rsi, rsiPeriod)

	pct := percentChange(adj)
	vol := rollingStd(pct, volatilityPeriod)
	pct[0] = math.NaN()

	for i, bar := range bars {
		date := models.DateOnly(bar.Date)

		volume := 0.0
		if bar.Volume != nil {
			volume = float64(*bar.Volume)
		}

		predErr := 0.0
		if p, ok := predicted[date]; ok {
			predErr = math.Abs(p - adj[i])
		}

		row := make([]float64, NumFeatures)
		row[ColOpen] = models.ToFloat64(bar.Open)
		row[ColHigh] = models.ToFloat64(bar.High)
		row[ColLow] = models.ToFloat64(bar.Low)
		row[ColClose] = models.ToFloat64(bar.Close)
		row[ColAdjClose] = adj[i]
		row[ColVolume] = volume
		row[ColSMA5] = sma5[i]
		row[ColSMA10] = sma10[i]
		row[ColRSI14] = rsi[i]
		row[ColPctChange] = pct[i]
		row[ColVolatility] = vol[i]
		row[ColPredictionError] = predErr

		fs.Dates[i] = date
		fs.Rows[i] = row
		fs.Targets[i] = adj[i]
	}

	return fs
}

// adjustedClose falls back to close when the provider gave no adjusted value
func adjustedClose(bar models.PricePoint) float64 {
	if bar.AdjustedClose.Valid {
		return models.ToFloat64(bar.AdjustedClose.Decimal)
	}
	return models.ToFloat64(bar.Close)
}

// percentChange returns step-over-step relative change; index 0 is 0
func percentChange(values []float64) []float64 {
	out := make([]float64, len(values))
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = (values[i] - values[i-1]) / values[i-1]
	}
	return out
}

// rollingStd is the population standard deviation of the trailing period
// values, computed from two moving averages. The first period entries of
// a change series cover fewer than period changes and are NaN.
func rollingStd(values []float64, period int) []float64 {
	squares := make([]float64, len(values))
	clean := make([]float64, len(values))
	for i, v := range values {
		if finite(v) {
			clean[i] = v
			squares[i] = v * v
		}
	}

	mean := indicator.Sma(period, clean)
	meanSq := indicator.Sma(period, squares)

	out := make([]float64, len(values))
	for i := range values {
		variance := meanSq[i] - mean[i]*mean[i]
		if variance < 0 {
			variance = 0
		}
		out[i] = math.Sqrt(variance)
	}

	return masked(out, period)
}

// masked overwrites the first warmup entries with NaN
func masked(values []float64, warmup int) []float64 {
	for i := 0; i < warmup && i < len(values); i++ {
		values[i] = math.NaN()
	}
	return values
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(row []float64) bool {
	for _, v := range row {
		if !finite(v) {
			return false
		}
	}
	return true
}
