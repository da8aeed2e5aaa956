// Package trainer drives mini-batch SGD with early stopping.
package trainer

import (
	"context"
	"math"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"mnist-logreg/internal/dataset"
	"mnist-logreg/internal/metrics"
	"mnist-logreg/internal/model"
)

// RunConfig captures the knobs required by the training loop.
type RunConfig struct {
	NEpochs              int
	Patience             int
	PatienceIncrease     int
	ImprovementThreshold float64
	ValidationFrequency  int
}

// Result reports the best scores of a run.
type Result struct {
	BestValidationLoss float64
	BestTestScore      float64
	Elapsed            time.Duration
}

// Run executes the early-stopping training loop over pre-batched splits.
//
// One pass per iteration: pick the training batch at iter mod nBatches and
// perform an update step. Every ValidationFrequency iterations the validation
// error is measured; a relative improvement below ImprovementThreshold
// extends the patience budget, and a strict improvement additionally records
// the test error. The loop stops once patience is consumed or NEpochs passes
// complete.
func Run(ctx context.Context, cfg RunConfig, mdl model.Model, splits dataset.Splits, logger *zap.SugaredLogger) (Result, error) {
	if err := validate(cfg, splits); err != nil {
		return Result{}, err
	}

	nBatches := len(splits.Train)
	maxIter := cfg.NEpochs * nBatches
	patience := cfg.Patience
	bestValidationLoss := math.Inf(1)
	bestTestScore := 0.0

	var window metrics.Window
	start := time.Now()

	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return Result{}, errors.Wrap(err, "trainer: interrupted")
		}

		epoch := iter / nBatches
		batchIndex := iter % nBatches
		batch := splits.Train[batchIndex]

		stepStart := time.Now()
		loss, err := mdl.Step(batch.Inputs, batch.Labels)
		if err != nil {
			return Result{}, errors.Wrapf(err, "trainer: update step %d", iter)
		}
		window.Record(batch.Inputs.Shape()[0], time.Since(stepStart), loss)

		if (iter+1)%cfg.ValidationFrequency == 0 {
			validationLoss, err := meanErrorRate(mdl, splits.Valid)
			if err != nil {
				return Result{}, errors.Wrap(err, "trainer: validation")
			}
			snap := window.Snapshot()
			logger.Infof("epoch %d, minibatch %d/%d, validation error %.4f%% (%.0f examples/sec, mean training loss %.4f)",
				epoch, batchIndex+1, nBatches, validationLoss*100, snap.ExamplesPerSec, snap.MeanLoss)

			if validationLoss < bestValidationLoss*cfg.ImprovementThreshold {
				patience = max(patience, iter*cfg.PatienceIncrease)
			}
			if validationLoss < bestValidationLoss {
				bestValidationLoss = validationLoss
				testScore, err := meanErrorRate(mdl, splits.Test)
				if err != nil {
					return Result{}, errors.Wrap(err, "trainer: test evaluation")
				}
				bestTestScore = testScore
				logger.Infof("epoch %d, minibatch %d/%d, test error of best model %.4f%%",
					epoch, batchIndex+1, nBatches, testScore*100)
			}
		}

		if patience <= iter {
			break
		}
	}

	res := Result{
		BestValidationLoss: bestValidationLoss,
		BestTestScore:      bestTestScore,
		Elapsed:            time.Since(start),
	}
	logger.Infof("optimization complete: best validation error %.4f%%, test error %.4f%%",
		res.BestValidationLoss*100, res.BestTestScore*100)
	logger.Infof("the run took %.2f minutes", res.Elapsed.Minutes())
	return res, nil
}

func validate(cfg RunConfig, splits dataset.Splits) error {
	if cfg.NEpochs <= 0 {
		return errors.Errorf("trainer: n_epochs must be > 0 (got %d)", cfg.NEpochs)
	}
	if cfg.Patience <= 0 {
		return errors.Errorf("trainer: patience must be > 0 (got %d)", cfg.Patience)
	}
	if cfg.PatienceIncrease < 1 {
		return errors.Errorf("trainer: patience_increase must be >= 1 (got %d)", cfg.PatienceIncrease)
	}
	if cfg.ImprovementThreshold <= 0 || cfg.ImprovementThreshold > 1 {
		return errors.Errorf("trainer: improvement_threshold must be in (0, 1] (got %g)", cfg.ImprovementThreshold)
	}
	if cfg.ValidationFrequency <= 0 {
		return errors.Errorf("trainer: validation_frequency must be > 0 (got %d)", cfg.ValidationFrequency)
	}
	if len(splits.Train) == 0 || len(splits.Valid) == 0 || len(splits.Test) == 0 {
		return errors.New("trainer: all three dataset splits must be non-empty")
	}
	return nil
}

// meanErrorRate averages the per-batch error rates. Batches are equal size by
// construction, so the mean of per-batch means equals the overall rate.
func meanErrorRate(mdl model.Model, batches []dataset.Batch) (float64, error) {
	rates := make([]float64, 0, len(batches))
	for _, b := range batches {
		rate, err := mdl.ErrorRate(b.Inputs, b.Labels)
		if err != nil {
			return 0, err
		}
		rates = append(rates, rate)
	}
	mean, err := stats.Mean(rates)
	if err != nil {
		return 0, errors.Wrap(err, "mean error rate")
	}
	return mean, nil
}
