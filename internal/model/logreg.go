// Package model implements a multinomial logistic-regression classifier on a
// Gorgonia expression graph. The graph is built once for a fixed batch size
// and compiled to a tape machine; gradients and the SGD update are handled by
// Gorgonia rather than by hand.
package model

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// ErrTypeMismatch is returned when a label vector cannot be compared against
// the predictions: wrong rank, wrong length, or a non-integer element type.
var ErrTypeMismatch = errors.New("model: label/prediction type mismatch")

// LogReg classifies flattened images with softmax(x·W + b). W and b are
// zero-initialized and mutated only by Step.
type LogReg struct {
	g *gorgonia.ExprGraph

	w *gorgonia.Node
	b *gorgonia.Node
	x *gorgonia.Node
	y *gorgonia.Node

	probsVal gorgonia.Value
	lossVal  gorgonia.Value

	vm     gorgonia.VM
	solver gorgonia.Solver

	zeroLabels *tensor.Dense

	nIn       int
	nOut      int
	batchSize int
}

// New builds and compiles the classifier graph for a fixed batch size.
func New(nIn, nOut, batchSize int, learningRate float64) (*LogReg, error) {
	if nIn <= 0 || nOut <= 0 || batchSize <= 0 {
		return nil, errors.Errorf("model: invalid dimensions nIn=%d nOut=%d batchSize=%d", nIn, nOut, batchSize)
	}
	if learningRate <= 0 {
		return nil, errors.Errorf("model: learning rate must be > 0 (got %g)", learningRate)
	}

	g := gorgonia.NewGraph()
	w := gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(nIn, nOut), gorgonia.WithName("w"), gorgonia.WithInit(gorgonia.Zeroes()))
	b := gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(1, nOut), gorgonia.WithName("b"), gorgonia.WithInit(gorgonia.Zeroes()))
	x := gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(batchSize, nIn), gorgonia.WithName("x"))
	// one-hot encoded true labels
	y := gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(batchSize, nOut), gorgonia.WithName("y"))

	xw, err := gorgonia.Mul(x, w)
	if err != nil {
		return nil, errors.Wrap(err, "model: x·W")
	}
	logits, err := gorgonia.BroadcastAdd(xw, b, nil, []byte{0})
	if err != nil {
		return nil, errors.Wrap(err, "model: add bias")
	}
	probs, err := gorgonia.SoftMax(logits, 1)
	if err != nil {
		return nil, errors.Wrap(err, "model: softmax")
	}
	// The loss takes its own log-softmax path from the logits. The softmax
	// node must stay free of in-place consumers: the value read from it
	// aliases the op's buffer, and a downstream log would overwrite it.
	expLogits, err := gorgonia.Exp(logits)
	if err != nil {
		return nil, errors.Wrap(err, "model: exp logits")
	}
	sumExp, err := gorgonia.Sum(expLogits, 1)
	if err != nil {
		return nil, errors.Wrap(err, "model: partition sum")
	}
	logZ, err := gorgonia.Log(sumExp)
	if err != nil {
		return nil, errors.Wrap(err, "model: log partition")
	}
	logZCol, err := gorgonia.Reshape(logZ, tensor.Shape{batchSize, 1})
	if err != nil {
		return nil, errors.Wrap(err, "model: reshape log partition")
	}
	logProbs, err := gorgonia.BroadcastSub(logits, logZCol, nil, []byte{1})
	if err != nil {
		return nil, errors.Wrap(err, "model: log probabilities")
	}
	picked, err := gorgonia.HadamardProd(y, logProbs)
	if err != nil {
		return nil, errors.Wrap(err, "model: select true-label log probabilities")
	}
	perExample, err := gorgonia.Sum(picked, 1)
	if err != nil {
		return nil, errors.Wrap(err, "model: per-example log likelihood")
	}
	meanLL, err := gorgonia.Mean(perExample)
	if err != nil {
		return nil, errors.Wrap(err, "model: mean log likelihood")
	}
	loss, err := gorgonia.Neg(meanLL)
	if err != nil {
		return nil, errors.Wrap(err, "model: negate log likelihood")
	}

	m := &LogReg{
		g:          g,
		w:          w,
		b:          b,
		x:          x,
		y:          y,
		zeroLabels: tensor.New(tensor.WithShape(batchSize, nOut), tensor.Of(tensor.Float64)),
		nIn:        nIn,
		nOut:       nOut,
		batchSize:  batchSize,
	}
	gorgonia.Read(probs, &m.probsVal)
	gorgonia.Read(loss, &m.lossVal)

	if _, err := gorgonia.Grad(loss, w, b); err != nil {
		return nil, errors.Wrap(err, "model: gradient")
	}

	m.vm = gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(w, b))
	m.solver = gorgonia.NewVanillaSolver(gorgonia.WithLearnRate(learningRate))
	return m, nil
}

// BatchSize reports the batch size the graph was compiled for.
func (m *LogReg) BatchSize() int { return m.batchSize }

// Close releases the compiled machine.
func (m *LogReg) Close() error {
	return m.vm.Close()
}

// PredictProba returns the batch × nOut class-probability matrix. Rows sum to
// 1 and every entry lies in [0, 1]. Parameters are not modified.
func (m *LogReg) PredictProba(inputs *tensor.Dense) (*tensor.Dense, error) {
	if err := m.run(inputs, m.zeroLabels); err != nil {
		return nil, err
	}
	defer m.vm.Reset()
	probs, ok := m.probsVal.(*tensor.Dense)
	if !ok {
		return nil, errors.Errorf("model: unexpected probability value %T", m.probsVal)
	}
	return probs.Clone().(*tensor.Dense), nil
}

// PredictLabel returns the most probable class per example. Ties resolve to
// the lowest index, the argmax convention.
func (m *LogReg) PredictLabel(inputs *tensor.Dense) ([]int, error) {
	probs, err := m.PredictProba(inputs)
	if err != nil {
		return nil, err
	}
	am, err := tensor.Argmax(probs, 1)
	if err != nil {
		return nil, errors.Wrap(err, "model: argmax")
	}
	preds, ok := am.Data().([]int)
	if !ok {
		return nil, errors.Errorf("model: unexpected argmax backing %T", am.Data())
	}
	return preds, nil
}

// Loss returns the mean categorical cross-entropy of the batch.
func (m *LogReg) Loss(inputs, labels *tensor.Dense) (float64, error) {
	oneHot, err := m.oneHot(labels)
	if err != nil {
		return 0, err
	}
	if err := m.run(inputs, oneHot); err != nil {
		return 0, err
	}
	defer m.vm.Reset()
	return scalarFloat(m.lossVal)
}

// ErrorRate returns the fraction of examples whose predicted label differs
// from the true label. Labels are validated before any comparison: they must
// form an integer vector with exactly one entry per prediction, otherwise the
// call fails with ErrTypeMismatch.
func (m *LogReg) ErrorRate(inputs, labels *tensor.Dense) (float64, error) {
	truth, err := m.labelInts(labels)
	if err != nil {
		return 0, err
	}
	preds, err := m.PredictLabel(inputs)
	if err != nil {
		return 0, err
	}
	wrong := 0
	for i, p := range preds {
		if p != truth[i] {
			wrong++
		}
	}
	return float64(wrong) / float64(len(preds)), nil
}

// Step performs one gradient-descent update, W ← W − lr·∂loss/∂W and
// b ← b − lr·∂loss/∂b applied together, and returns the batch loss measured
// before the update.
func (m *LogReg) Step(inputs, labels *tensor.Dense) (float64, error) {
	oneHot, err := m.oneHot(labels)
	if err != nil {
		return 0, err
	}
	if err := m.run(inputs, oneHot); err != nil {
		return 0, err
	}
	defer m.vm.Reset()
	loss, err := scalarFloat(m.lossVal)
	if err != nil {
		return 0, err
	}
	if err := m.solver.Step(gorgonia.NodesToValueGrads(gorgonia.Nodes{m.w, m.b})); err != nil {
		return 0, errors.Wrap(err, "model: apply update")
	}
	return loss, nil
}

func (m *LogReg) run(inputs *tensor.Dense, oneHot *tensor.Dense) error {
	if inputs == nil {
		return errors.New("model: nil input batch")
	}
	shape := inputs.Shape()
	if len(shape) != 2 || shape[0] != m.batchSize || shape[1] != m.nIn {
		return errors.Errorf("model: input shape %v does not match compiled (%d, %d)", shape, m.batchSize, m.nIn)
	}
	if err := gorgonia.Let(m.x, inputs); err != nil {
		return errors.Wrap(err, "model: bind inputs")
	}
	if err := gorgonia.Let(m.y, oneHot); err != nil {
		return errors.Wrap(err, "model: bind labels")
	}
	if err := m.vm.RunAll(); err != nil {
		// leave the machine rewound rather than mid-program
		m.vm.Reset()
		return errors.Wrap(err, "model: run graph")
	}
	return nil
}

// labelInts validates the label tensor against the prediction contract and
// converts it to a plain int slice.
func (m *LogReg) labelInts(labels *tensor.Dense) ([]int, error) {
	if labels == nil {
		return nil, errors.Wrap(ErrTypeMismatch, "nil labels")
	}
	if labels.Dims() != 1 {
		return nil, errors.Wrapf(ErrTypeMismatch, "labels have rank %d, predictions have rank 1", labels.Dims())
	}
	if n := labels.Shape()[0]; n != m.batchSize {
		return nil, errors.Wrapf(ErrTypeMismatch, "got %d labels for %d predictions", n, m.batchSize)
	}
	return convertToIntSlice(labels.Data())
}

func (m *LogReg) oneHot(labels *tensor.Dense) (*tensor.Dense, error) {
	truth, err := m.labelInts(labels)
	if err != nil {
		return nil, err
	}
	backing := make([]float64, m.batchSize*m.nOut)
	for i, class := range truth {
		if class < 0 || class >= m.nOut {
			return nil, errors.Errorf("model: label %d outside [0, %d)", class, m.nOut)
		}
		backing[i*m.nOut+class] = 1
	}
	return tensor.New(tensor.WithShape(m.batchSize, m.nOut), tensor.WithBacking(backing)), nil
}

func convertNumberSlice[T constraints.Integer](in []T) []int {
	out := make([]int, len(in))
	for i := range in {
		out[i] = int(in[i])
	}
	return out
}

func convertToIntSlice(data interface{}) ([]int, error) {
	switch v := data.(type) {
	case []int:
		return v, nil
	case []int8:
		return convertNumberSlice(v), nil
	case []int16:
		return convertNumberSlice(v), nil
	case []int32:
		return convertNumberSlice(v), nil
	case []int64:
		return convertNumberSlice(v), nil
	case []uint8:
		return convertNumberSlice(v), nil
	case []uint16:
		return convertNumberSlice(v), nil
	case []uint32:
		return convertNumberSlice(v), nil
	case []uint64:
		return convertNumberSlice(v), nil
	case []uint:
		return convertNumberSlice(v), nil
	default:
		return nil, errors.Wrapf(ErrTypeMismatch, "labels must be integer-typed, got %T", data)
	}
}

func scalarFloat(v gorgonia.Value) (float64, error) {
	if v == nil {
		return 0, errors.New("model: loss was not computed")
	}
	switch data := v.Data().(type) {
	case float64:
		return data, nil
	case []float64:
		if len(data) == 1 {
			return data[0], nil
		}
	}
	return 0, errors.Errorf("model: unexpected loss value %T", v.Data())
}
