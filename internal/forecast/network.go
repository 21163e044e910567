package forecast

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/vmihailenco/msgpack/v5"
)

// ModelType is stored alongside serialized weights
const ModelType = "mlp_tanh_v1"

const blobVersion = 1

// TrainOptions controls one Fit call
type TrainOptions struct {
	Epochs       int
	LearningRate float64
	BatchSize    int
}

// Network is a feed-forward regressor with one tanh hidden layer over a
// flattened window of feature rows. The feature and target scalers fitted
// for the last training travel with the weights.
type Network struct {
	Window   int `msgpack:"window"`
	Features int `msgpack:"features"`
	Hidden   int `msgpack:"hidden"`

	W1 [][]float64 `msgpack:"w1"`
	B1 []float64   `msgpack:"b1"`
	W2 []float64   `msgpack:"w2"`
	B2 float64     `msgpack:"b2"`

	FeatureScaler MinMaxScaler `msgpack:"feature_scaler"`
	TargetScaler  MinMaxScaler `msgpack:"target_scaler"`
}

type networkBlob struct {
	Version int      `msgpack:"version"`
	Type    string   `msgpack:"type"`
	Network *Network `msgpack:"network"`
}

// NewNetwork creates a network with Xavier-initialized weights
func NewNetwork(window, features, hidden int, rng *rand.Rand) *Network {
	in := window * features
	n := &Network{
		Window:   window,
		Features: features,
		Hidden:   hidden,
		W1:       make([][]float64, hidden),
		B1:       make([]float64, hidden),
		W2:       make([]float64, hidden),
	}

	scale1 := math.Sqrt(2.0 / float64(in+hidden))
	scale2 := math.Sqrt(2.0 / float64(hidden+1))
	for j := 0; j < hidden; j++ {
		n.W1[j] = make([]float64, in)
		for k := range n.W1[j] {
			n.W1[j][k] = rng.NormFloat64() * scale1
		}
		n.W2[j] = rng.NormFloat64() * scale2
	}

	return n
}

// Matches reports whether the network accepts windows of the given shape
func (n *Network) Matches(window, features, hidden int) bool {
	return n.Window == window && n.Features == features && n.Hidden == hidden
}

// Fit runs mini-batch SGD on already scaled samples and returns the final
// epoch's mean squared error
func (n *Network) Fit(X [][][]float64, y []float64, opts TrainOptions, rng *rand.Rand) float64 {
	if len(X) == 0 {
		return 0
	}

	batch := opts.BatchSize
	if batch < 1 || batch > len(X) {
		batch = len(X)
	}

	in := n.Window * n.Features
	gW1 := make([][]float64, n.Hidden)
	for j := range gW1 {
		gW1[j] = make([]float64, in)
	}
	gB1 := make([]float64, n.Hidden)
	gW2 := make([]float64, n.Hidden)
	hidden := make([]float64, n.Hidden)

	order := make([]int, len(X))
	for i := range order {
		order[i] = i
	}

	var loss float64
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		rng.Shuffle(len(order), func(a, b int) { order[a], order[b] = order[b], order[a] })
		loss = 0

		for startIdx := 0; startIdx < len(order); startIdx += batch {
			end := min(startIdx+batch, len(order))

			for j := range gW1 {
				clear(gW1[j])
			}
			clear(gB1)
			clear(gW2)
			gB2 := 0.0

			for _, idx := range order[startIdx:end] {
				x := flatten(X[idx])
				out := n.forward(x, hidden)
				d := out - y[idx]
				loss += d * d

				gB2 += d
				for j := 0; j < n.Hidden; j++ {
					gW2[j] += d * hidden[j]
					dh := d * n.W2[j] * (1 - hidden[j]*hidden[j])
					gB1[j] += dh
					row := gW1[j]
					for k, v := range x {
						row[k] += dh * v
					}
				}
			}

			step := opts.LearningRate / float64(end-startIdx)
			n.B2 -= step * gB2
			for j := 0; j < n.Hidden; j++ {
				n.W2[j] -= step * gW2[j]
				n.B1[j] -= step * gB1[j]
				w := n.W1[j]
				for k := range w {
					w[k] -= step * gW1[j][k]
				}
			}
		}

		loss /= float64(len(X))
	}

	return loss
}

// Predict returns the scaled output for one window
func (n *Network) Predict(window [][]float64) float64 {
	return n.forward(flatten(window), make([]float64, n.Hidden))
}

func (n *Network) forward(x, hidden []float64) float64 {
	out := n.B2
	for j := 0; j < n.Hidden; j++ {
		sum := n.B1[j]
		for k, v := range x {
			sum += n.W1[j][k] * v
		}
		hidden[j] = math.Tanh(sum)
		out += n.W2[j] * hidden[j]
	}
	return out
}

func flatten(window [][]float64) []float64 {
	if len(window) == 0 {
		return nil
	}
	x := make([]float64, 0, len(window)*len(window[0]))
	for _, row := range window {
		x = append(x, row...)
	}
	return x
}

// Save serializes the network with msgpack
func (n *Network) Save() ([]byte, error) {
	data, err := msgpack.Marshal(&networkBlob{
		Version: blobVersion,
		Type:    ModelType,
		Network: n,
	})
	if err != nil {
		return nil, fmt.Errorf("encode network: %w", err)
	}
	return data, nil
}

// Load decodes a network produced by Save
func Load(data []byte) (*Network, error) {
	var blob networkBlob
	if err := msgpack.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("decode network: %w", err)
	}

	if blob.Version != blobVersion || blob.Type != ModelType {
		return nil, fmt.Errorf("unsupported model blob %s v%d", blob.Type, blob.Version)
	}

	n := blob.Network
	if n == nil {
		return nil, errors.New("model blob has no network")
	}
	if err := n.validate(); err != nil {
		return nil, err
	}

	return n, nil
}

func (n *Network) validate() error {
	in := n.Window * n.Features
	if n.Window < 1 || n.Features < 1 || n.Hidden < 1 {
		return fmt.Errorf("invalid network shape %dx%d hidden %d", n.Window, n.Features, n.Hidden)
	}
	if len(n.W1) != n.Hidden || len(n.B1) != n.Hidden || len(n.W2) != n.Hidden {
		return errors.New("hidden layer size mismatch")
	}
	for _, row := range n.W1 {
		if len(row) != in {
			return errors.New("input layer size mismatch")
		}
	}
	return nil
}
