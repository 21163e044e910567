package forecast

import "errors"

var errEmptyFit = errors.New("scaler: no rows to fit")

// MinMaxScaler maps each column onto [0, 1] using the range seen in Fit.
// A constant column maps to 0 and inverts back to its constant.
type MinMaxScaler struct {
	Min []float64 `msgpack:"min"`
	Max []float64 `msgpack:"max"`
}

// Fit records per-column min and max
func (s *MinMaxScaler) Fit(rows [][]float64) error {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return errEmptyFit
	}

	cols := len(rows[0])
	s.Min = make([]float64, cols)
	s.Max = make([]float64, cols)
	copy(s.Min, rows[0])
	copy(s.Max, rows[0])

	for _, row := range rows[1:] {
		for j, v := range row {
			if v < s.Min[j] {
				s.Min[j] = v
			}
			if v > s.Max[j] {
				s.Max[j] = v
			}
		}
	}

	return nil
}

// FitValues fits a single-column scaler
func (s *MinMaxScaler) FitValues(values []float64) error {
	rows := make([][]float64, len(values))
	for i, v := range values {
		rows[i] = []float64{v}
	}
	return s.Fit(rows)
}

// Transform scales rows into new slices
func (s *MinMaxScaler) Transform(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = s.Scale(j, v)
		}
		out[i] = scaled
	}
	return out
}

// TransformValues scales a single column
func (s *MinMaxScaler) TransformValues(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = s.Scale(0, v)
	}
	return out
}

// Scale maps v from column col onto [0, 1]
func (s *MinMaxScaler) Scale(col int, v float64) float64 {
	span := s.Max[col] - s.Min[col]
	if span == 0 {
		return 0
	}
	return (v - s.Min[col]) / span
}

// Inverse maps a scaled value of column col back to its original units
func (s *MinMaxScaler) Inverse(col int, v float64) float64 {
	return s.Min[col] + v*(s.Max[col]-s.Min[col])
}

// Columns returns the fitted column count
func (s *MinMaxScaler) Columns() int {
	return len(s.Min)
}
