package dataset

import "gorgonia.org/tensor"

// Batch pairs one minibatch of flattened images with its labels. Inputs is a
// batch × inputDim float64 matrix, Labels an int vector of the same length.
// Batches are immutable once built.
type Batch struct {
	Inputs *tensor.Dense
	Labels *tensor.Dense
}

// Splits owns the three ordered batch sequences of a run.
type Splits struct {
	Train []Batch
	Valid []Batch
	Test  []Batch
}

// MakeBatches chunks examples into fixed-size batches. A trailing remainder
// smaller than batchSize is dropped so every batch has identical size, which
// keeps the mean of per-batch error rates equal to the overall error rate.
func MakeBatches(images [][]float64, labels []int, batchSize int) []Batch {
	if batchSize <= 0 || len(images) < batchSize || len(images) != len(labels) {
		return nil
	}
	inputDim := len(images[0])
	n := len(images) / batchSize
	batches := make([]Batch, 0, n)
	for b := 0; b < n; b++ {
		backing := make([]float64, 0, batchSize*inputDim)
		batchLabels := make([]int, batchSize)
		for i := 0; i < batchSize; i++ {
			backing = append(backing, images[b*batchSize+i]...)
			batchLabels[i] = labels[b*batchSize+i]
		}
		batches = append(batches, Batch{
			Inputs: tensor.New(tensor.WithShape(batchSize, inputDim), tensor.WithBacking(backing)),
			Labels: tensor.New(tensor.WithShape(batchSize), tensor.WithBacking(batchLabels)),
		})
	}
	return batches
}
