// Package nn implements the small feed-forward classifier used by the
// training pipeline: two ReLU hidden layers of 10 and 8 units followed by
// a softmax output, trained with mini-batch SGD on the sparse categorical
// cross-entropy loss.
package nn

import (
	"fmt"
	"math"
	"math/rand"
)

// hiddenSizes fixes the width of the hidden layers.
var hiddenSizes = []int{10, 8}

// lossEpsilon keeps the cross-entropy finite when a predicted probability
// underflows to zero.
const lossEpsilon = 1e-7

// Config carries the training hyperparameters.
type Config struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	Seed         int64
}

func (c Config) validate() error {
	if c.Epochs < 1 {
		return fmt.Errorf("epochs must be at least 1, got %d", c.Epochs)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", c.BatchSize)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %g", c.LearningRate)
	}
	return nil
}

// LayerWeights is the persistable form of one dense layer. W is indexed
// [output][input].
type LayerWeights struct {
	W [][]float64 `json:"w"`
	B []float64   `json:"b"`
}

// History records the loss and accuracy measured on the training data at
// the end of every epoch.
type History struct {
	Loss     []float64
	Accuracy []float64
}

// FinalLoss returns the loss after the last epoch.
func (h *History) FinalLoss() float64 {
	if h == nil || len(h.Loss) == 0 {
		return math.NaN()
	}
	return h.Loss[len(h.Loss)-1]
}

// FinalAccuracy returns the accuracy after the last epoch.
func (h *History) FinalAccuracy() float64 {
	if h == nil || len(h.Accuracy) == 0 {
		return math.NaN()
	}
	return h.Accuracy[len(h.Accuracy)-1]
}

type dense struct {
	weights [][]float64
	biases  []float64
}

// Network is a feed-forward classifier. It is not safe for concurrent use.
type Network struct {
	cfg    Config
	layers []*dense
	rng    *rand.Rand
}

// New builds a network for the given input width and class count. Weights
// are initialized with Glorot uniform sampling from the seeded generator,
// so the same configuration always starts from the same point.
func New(inputWidth, classes int, cfg Config) (*Network, error) {
	if inputWidth < 1 {
		return nil, fmt.Errorf("input width must be at least 1, got %d", inputWidth)
	}
	if classes < 2 {
		return nil, fmt.Errorf("need at least 2 classes, got %d", classes)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	sizes := append([]int{inputWidth}, hiddenSizes...)
	sizes = append(sizes, classes)

	layers := make([]*dense, 0, len(sizes)-1)
	for l := 0; l < len(sizes)-1; l++ {
		layers = append(layers, newDense(sizes[l], sizes[l+1], rng))
	}

	return &Network{cfg: cfg, layers: layers, rng: rng}, nil
}

func newDense(in, out int, rng *rand.Rand) *dense {
	limit := math.Sqrt(6.0 / float64(in+out))
	weights := make([][]float64, out)
	for o := range weights {
		weights[o] = make([]float64, in)
		for i := range weights[o] {
			weights[o][i] = (rng.Float64()*2 - 1) * limit
		}
	}
	return &dense{weights: weights, biases: make([]float64, out)}
}

// InputWidth returns the number of features the network expects.
func (n *Network) InputWidth() int {
	return len(n.layers[0].weights[0])
}

// Classes returns the number of output classes.
func (n *Network) Classes() int {
	return len(n.layers[len(n.layers)-1].biases)
}

// Predict returns the class probabilities for a single feature row.
func (n *Network) Predict(features []float64) ([]float64, error) {
	if len(features) != n.InputWidth() {
		return nil, fmt.Errorf("expected %d features, got %d", n.InputWidth(), len(features))
	}
	activations, _ := n.forward(features)
	return activations[len(activations)-1], nil
}

// Evaluate computes the mean loss and the accuracy over a labeled set.
func (n *Network) Evaluate(x [][]float64, y []int) (float64, float64, error) {
	if err := n.checkSet(x, y); err != nil {
		return 0, 0, err
	}

	var lossSum float64
	correct := 0
	for i, features := range x {
		activations, _ := n.forward(features)
		probs := activations[len(activations)-1]
		lossSum += -math.Log(math.Max(probs[y[i]], lossEpsilon))
		if argmax(probs) == y[i] {
			correct++
		}
	}
	return lossSum / float64(len(x)), float64(correct) / float64(len(x)), nil
}

// Weights returns a deep copy of the layer parameters.
func (n *Network) Weights() []LayerWeights {
	weights := make([]LayerWeights, len(n.layers))
	for l, layer := range n.layers {
		w := make([][]float64, len(layer.weights))
		for o := range layer.weights {
			w[o] = append([]float64(nil), layer.weights[o]...)
		}
		weights[l] = LayerWeights{W: w, B: append([]float64(nil), layer.biases...)}
	}
	return weights
}

// SetWeights replaces the layer parameters with a copy of the given ones.
// The shapes must match the network architecture exactly.
func (n *Network) SetWeights(weights []LayerWeights) error {
	if len(weights) != len(n.layers) {
		return fmt.Errorf("expected %d layers, got %d", len(n.layers), len(weights))
	}
	for l, layer := range n.layers {
		if len(weights[l].W) != len(layer.weights) || len(weights[l].B) != len(layer.biases) {
			return fmt.Errorf("layer %d expects %d units, got %d weights and %d biases",
				l, len(layer.biases), len(weights[l].W), len(weights[l].B))
		}
		for o := range layer.weights {
			if len(weights[l].W[o]) != len(layer.weights[o]) {
				return fmt.Errorf("layer %d unit %d expects %d inputs, got %d",
					l, o, len(layer.weights[o]), len(weights[l].W[o]))
			}
		}
	}
	for l, layer := range n.layers {
		for o := range layer.weights {
			copy(layer.weights[o], weights[l].W[o])
		}
		copy(layer.biases, weights[l].B)
	}
	return nil
}

// forward runs one row through the network. It returns the activations of
// every layer (index 0 is the input itself) and the pre-activation sums,
// which the backward pass needs.
func (n *Network) forward(features []float64) ([][]float64, [][]float64) {
	activations := make([][]float64, 0, len(n.layers)+1)
	preActs := make([][]float64, 0, len(n.layers))
	activations = append(activations, features)

	current := features
	for l, layer := range n.layers {
		z := make([]float64, len(layer.biases))
		for o := range z {
			sum := layer.biases[o]
			for i, v := range current {
				sum += layer.weights[o][i] * v
			}
			z[o] = sum
		}
		preActs = append(preActs, z)

		var out []float64
		if l == len(n.layers)-1 {
			out = softmax(z)
		} else {
			out = relu(z)
		}
		activations = append(activations, out)
		current = out
	}
	return activations, preActs
}

func (n *Network) checkSet(x [][]float64, y []int) error {
	if len(x) == 0 {
		return fmt.Errorf("empty training set")
	}
	if len(x) != len(y) {
		return fmt.Errorf("got %d feature rows but %d labels", len(x), len(y))
	}
	for i, row := range x {
		if len(row) != n.InputWidth() {
			return fmt.Errorf("row %d has %d features, expected %d", i, len(row), n.InputWidth())
		}
	}
	for i, label := range y {
		if label < 0 || label >= n.Classes() {
			return fmt.Errorf("label %d at row %d out of range for %d classes", label, i, n.Classes())
		}
	}
	return nil
}

func relu(z []float64) []float64 {
	out := make([]float64, len(z))
	for i, v := range z {
		if v > 0 {
			out[i] = v
		}
	}
	return out
}

func softmax(z []float64) []float64 {
	max := z[0]
	for _, v := range z[1:] {
		if v > max {
			max = v
		}
	}
	var sum float64
	out := make([]float64, len(z))
	for i, v := range z {
		out[i] = math.Exp(v - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
