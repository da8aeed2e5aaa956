package trainer

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"mnist-logreg/internal/dataset"
)

// fakeModel returns scripted error rates so the loop's stopping behavior can
// be exercised without touching a real graph.
type fakeModel struct {
	stepCalls int
	evalCalls int
	rate      float64
	decay     float64
}

func (f *fakeModel) Step(_, _ *tensor.Dense) (float64, error) {
	f.stepCalls++
	return 1.0, nil
}

func (f *fakeModel) Loss(_, _ *tensor.Dense) (float64, error) {
	return 1.0, nil
}

func (f *fakeModel) ErrorRate(_, _ *tensor.Dense) (float64, error) {
	f.evalCalls++
	if f.decay != 0 {
		f.rate *= f.decay
	}
	return f.rate, nil
}

func makeBatch() dataset.Batch {
	return dataset.Batch{
		Inputs: tensor.New(tensor.WithShape(1, 1), tensor.WithBacking([]float64{0})),
		Labels: tensor.New(tensor.WithShape(1), tensor.WithBacking([]int{0})),
	}
}

func makeSplits(nTrain int) dataset.Splits {
	splits := dataset.Splits{
		Valid: []dataset.Batch{makeBatch()},
		Test:  []dataset.Batch{makeBatch()},
	}
	for i := 0; i < nTrain; i++ {
		splits.Train = append(splits.Train, makeBatch())
	}
	return splits
}

func TestRunStopsAtInitialPatience(t *testing.T) {
	mdl := &fakeModel{rate: 0.25}
	cfg := RunConfig{
		NEpochs:              100,
		Patience:             6,
		PatienceIncrease:     2,
		ImprovementThreshold: 1.0,
		ValidationFrequency:  2,
	}

	res, err := Run(context.Background(), cfg, mdl, makeSplits(4), zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// Flat validation error never beats the best, so patience never extends
	// past its initial value and the loop stops once iter reaches it.
	if want := cfg.Patience + 1; mdl.stepCalls != want {
		t.Fatalf("expected %d update steps, got %d", want, mdl.stepCalls)
	}
	// Validations at iters 1, 3, 5; only the first improves on +Inf and
	// triggers a test evaluation.
	if mdl.evalCalls != 4 {
		t.Fatalf("expected 4 evaluation calls, got %d", mdl.evalCalls)
	}
	if res.BestValidationLoss != 0.25 || res.BestTestScore != 0.25 {
		t.Fatalf("unexpected best scores: %+v", res)
	}
}

func TestRunExtendsPatienceOnImprovement(t *testing.T) {
	mdl := &fakeModel{rate: 1.0, decay: 0.9}
	cfg := RunConfig{
		NEpochs:              3,
		Patience:             2,
		PatienceIncrease:     3,
		ImprovementThreshold: 0.995,
		ValidationFrequency:  2,
	}

	res, err := Run(context.Background(), cfg, mdl, makeSplits(4), zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// Every validation improves, so patience keeps extending and the loop
	// only stops when the epoch budget is exhausted.
	if want := cfg.NEpochs * 4; mdl.stepCalls != want {
		t.Fatalf("expected %d update steps, got %d", want, mdl.stepCalls)
	}
	if res.BestValidationLoss >= 1.0 {
		t.Fatalf("best validation loss should have improved, got %g", res.BestValidationLoss)
	}
}

func TestRunValidatesConfig(t *testing.T) {
	cfg := RunConfig{
		NEpochs:              0,
		Patience:             10,
		PatienceIncrease:     2,
		ImprovementThreshold: 0.995,
		ValidationFrequency:  2,
	}
	if _, err := Run(context.Background(), cfg, &fakeModel{}, makeSplits(2), zap.NewNop().Sugar()); err == nil {
		t.Fatal("expected error for zero epochs")
	}

	cfg.NEpochs = 1
	if _, err := Run(context.Background(), cfg, &fakeModel{}, dataset.Splits{}, zap.NewNop().Sugar()); err == nil {
		t.Fatal("expected error for empty splits")
	}
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := RunConfig{
		NEpochs:              1,
		Patience:             10,
		PatienceIncrease:     2,
		ImprovementThreshold: 0.995,
		ValidationFrequency:  2,
	}
	if _, err := Run(ctx, cfg, &fakeModel{}, makeSplits(2), zap.NewNop().Sugar()); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
