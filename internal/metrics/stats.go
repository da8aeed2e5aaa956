package metrics

import (
	"time"

	"github.com/montanaflynn/stats"
)

// Window accumulates per-step timing and loss between log lines.
type Window struct {
	examples int
	compute  time.Duration
	losses   []float64
}

// Record adds one update step to the window.
func (w *Window) Record(batchSize int, computeTime time.Duration, loss float64) {
	w.examples += batchSize
	w.compute += computeTime
	w.losses = append(w.losses, loss)
}

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{}
	if w.compute > 0 {
		snap.ExamplesPerSec = float64(w.examples) / w.compute.Seconds()
	}
	if steps := len(w.losses); steps > 0 {
		snap.AvgStepMS = (w.compute.Seconds() * 1000) / float64(steps)
		snap.LastLoss = w.losses[steps-1]
		if mean, err := stats.Mean(w.losses); err == nil {
			snap.MeanLoss = mean
		}
	}

	*w = Window{}
	return snap
}

// Snapshot represents loggable training metrics.
type Snapshot struct {
	ExamplesPerSec float64
	AvgStepMS      float64
	LastLoss       float64
	MeanLoss       float64
}
