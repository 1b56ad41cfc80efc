package nn

// Fit trains the network with mini-batch SGD. The training rows are
// reshuffled before every epoch using the network's seeded generator, so
// runs with the same configuration and data are reproducible. The returned
// history holds the loss and accuracy measured on the full training set
// after each epoch.
func (n *Network) Fit(x [][]float64, y []int) (*History, error) {
	if err := n.checkSet(x, y); err != nil {
		return nil, err
	}

	history := &History{
		Loss:     make([]float64, 0, n.cfg.Epochs),
		Accuracy: make([]float64, 0, n.cfg.Epochs),
	}

	indices := make([]int, len(x))
	for i := range indices {
		indices[i] = i
	}

	for epoch := 0; epoch < n.cfg.Epochs; epoch++ {
		n.rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})

		for start := 0; start < len(indices); start += n.cfg.BatchSize {
			end := start + n.cfg.BatchSize
			if end > len(indices) {
				end = len(indices)
			}
			n.trainBatch(x, y, indices[start:end])
		}

		loss, accuracy, err := n.Evaluate(x, y)
		if err != nil {
			return nil, err
		}
		history.Loss = append(history.Loss, loss)
		history.Accuracy = append(history.Accuracy, accuracy)
	}
	return history, nil
}

// trainBatch accumulates the gradients of every sample in the batch and
// applies one SGD update scaled by the batch mean.
func (n *Network) trainBatch(x [][]float64, y []int, batch []int) {
	gradW := make([][][]float64, len(n.layers))
	gradB := make([][]float64, len(n.layers))
	for l, layer := range n.layers {
		gradW[l] = make([][]float64, len(layer.weights))
		for o := range layer.weights {
			gradW[l][o] = make([]float64, len(layer.weights[o]))
		}
		gradB[l] = make([]float64, len(layer.biases))
	}

	for _, row := range batch {
		activations, preActs := n.forward(x[row])

		// Softmax combined with cross-entropy reduces the output gradient
		// to probabilities minus the one-hot target.
		delta := append([]float64(nil), activations[len(activations)-1]...)
		delta[y[row]]--

		for l := len(n.layers) - 1; l >= 0; l-- {
			input := activations[l]
			for o := range delta {
				gradB[l][o] += delta[o]
				for i, v := range input {
					gradW[l][o][i] += delta[o] * v
				}
			}
			if l == 0 {
				break
			}

			prev := make([]float64, len(input))
			for i := range prev {
				var sum float64
				for o := range delta {
					sum += n.layers[l].weights[o][i] * delta[o]
				}
				// ReLU passes the gradient only where the unit fired.
				if preActs[l-1][i] > 0 {
					prev[i] = sum
				}
			}
			delta = prev
		}
	}

	step := n.cfg.LearningRate / float64(len(batch))
	for l, layer := range n.layers {
		for o := range layer.weights {
			for i := range layer.weights[o] {
				layer.weights[o][i] -= step * gradW[l][o][i]
			}
			layer.biases[o] -= step * gradB[l][o]
		}
	}
}
