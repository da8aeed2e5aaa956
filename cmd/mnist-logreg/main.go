package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"mnist-logreg/internal/config"
	"mnist-logreg/internal/dataset"
	"mnist-logreg/internal/logging"
	"mnist-logreg/internal/model"
	"mnist-logreg/internal/trainer"
)

func main() {
	cfgPath := flag.String("config", "", "Path to YAML config (defaults apply when empty)")
	dataDir := flag.String("data-dir", "", "Directory holding the gzipped MNIST IDX files")
	learningRate := flag.Float64("learning-rate", 0, "SGD learning rate")
	epochs := flag.Int("epochs", 0, "Maximum passes over the training set")
	batchSize := flag.Int("batch-size", 0, "Minibatch size")
	patience := flag.Int("patience", 0, "Initial early-stopping budget in iterations")
	patienceIncrease := flag.Int("patience-increase", 0, "Patience multiplier applied on significant improvement")
	improvementThreshold := flag.Float64("improvement-threshold", 0, "Relative validation improvement considered significant")
	validationFrequency := flag.Int("validation-frequency", 0, "Iterations between validation passes")

	flag.Parse()

	logger := logging.NewLogger("mnist-logreg")

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			logger.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}

	cfg.ApplyOverrides(config.Overrides{
		DataDir:              *dataDir,
		LearningRate:         *learningRate,
		NEpochs:              *epochs,
		BatchSize:            *batchSize,
		Patience:             *patience,
		PatienceIncrease:     *patienceIncrease,
		ImprovementThreshold: *improvementThreshold,
		ValidationFrequency:  *validationFrequency,
	})

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	splits, err := dataset.Load(cfg.DataDir, cfg.BatchSize)
	if err != nil {
		logger.Fatalf("failed to load dataset: %v", err)
	}
	logger.Infof("loaded %d train, %d validation, %d test batches of size %d",
		len(splits.Train), len(splits.Valid), len(splits.Test), cfg.BatchSize)

	mdl, err := model.New(dataset.InputDim, dataset.NumClasses, cfg.BatchSize, cfg.LearningRate)
	if err != nil {
		logger.Fatalf("failed to build classifier: %v", err)
	}
	defer mdl.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCfg := trainer.RunConfig{
		NEpochs:              cfg.NEpochs,
		Patience:             cfg.Patience,
		PatienceIncrease:     cfg.PatienceIncrease,
		ImprovementThreshold: cfg.ImprovementThreshold,
		ValidationFrequency:  cfg.ValidationFrequency,
	}

	if _, err := trainer.Run(ctx, runCfg, mdl, splits, logger); err != nil {
		logger.Fatalf("training failed: %v", err)
	}
}
