package forecast

// DefaultWindow is the number of consecutive rows fed to the model
const DefaultWindow = 10

// Windowize slices rows into overlapping windows of length w. Window i covers
// rows[i:i+w] and is labelled with targets[i+w], so a series of length L
// yields max(0, L-w) samples.
func Windowize(rows [][]float64, targets []float64, w int) ([][][]float64, []float64) {
	n := len(rows) - w
	if w < 1 || n <= 0 || len(targets) < len(rows) {
		return nil, nil
	}

	X := make([][][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		X[i] = rows[i : i+w]
		y[i] = targets[i+w]
	}

	return X, y
}
