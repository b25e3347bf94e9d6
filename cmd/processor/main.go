package main

import (
	"context"
	"flag"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"codex-pipeline/internal/app"
	"codex-pipeline/internal/infrastructure"
)

func main() {
	dataDir := flag.String("data-dir", "", "Directory containing raw acquisition tiles")
	outputDir := flag.String("output-dir", "", "Directory to save results in")
	configPath := flag.String("config", "", "Experiment config file or directory (defaults to data-dir)")

	regionArg := flag.String("region-indexes", "", "1-based region indexes: scalar, a-b range, or comma list")
	tileArg := flag.String("tile-indexes", "", "1-based tile indexes: scalar, a-b range, or comma list")
	gpuArg := flag.String("gpus", "", "0-based gpu indexes: scalar, a-b range, or comma list")

	workers := flag.Int("workers", 0, "Number of parallel tasks (defaults to gpu count, else 1)")
	memoryLimit := flag.Int64("memory-limit", app.DefaultMemoryLimit, "Memory limit per worker in bytes")
	prefetch := flag.Int("tile-prefetch-capacity", app.DefaultPrefetchCapacity, "Number of input tiles to buffer for processing")

	runDriftComp := flag.Bool("run-drift-comp", true, "Run drift compensation")
	runBestFocus := flag.Bool("run-best-focus", true, "Run best focal plane selection")
	runSummary := flag.Bool("run-summary", true, "Compute tile summary statistics")
	nIterDecon := flag.Int("n-iter-decon", app.DefaultNIterDecon, "Deconvolution iterations (0 disables deconvolution)")
	scaleDecon := flag.Float64("scale-factor-decon", app.DefaultScaleFactorDecon, "Deconvolution scale factor")

	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logFile := flag.String("log-file", "", "Optional log file path")
	recordExecution := flag.Bool("record-execution", true, "Save execution arguments and environment to the output directory")
	recordData := flag.Bool("record-data", true, "Save aggregated monitor data to the output directory")
	flag.Parse()

	logger := initLogger(*logLevel, *logFile)
	defer logger.Sync()

	if *dataDir == "" || *outputDir == "" {
		logger.Fatal("Both -data-dir and -output-dir are required")
	}
	if *configPath == "" {
		*configPath = *dataDir
	}

	configReader := infrastructure.NewYAMLConfigReader(logger)
	expConfig, err := configReader.ReadConfig(*configPath)
	if err != nil {
		logger.Fatal("Failed to read experiment config", zap.Error(err))
	}

	regionIndexes, err := resolveIndexes(*regionArg)
	if err != nil {
		logger.Fatal("Failed to resolve region indexes", zap.Error(err))
	}
	tileIndexes, err := resolveIndexes(*tileArg)
	if err != nil {
		logger.Fatal("Failed to resolve tile indexes", zap.Error(err))
	}
	gpus, err := resolveIndexes(*gpuArg)
	if err != nil {
		logger.Fatal("Failed to resolve gpu indexes", zap.Error(err))
	}

	nWorkers := *workers
	if nWorkers == 0 {
		nWorkers = 1
		if len(gpus) > 0 {
			nWorkers = len(gpus)
		}
	}

	cfg, err := app.NewPipelineConfig(expConfig, app.PipelineParams{
		RegionIndexes:    regionIndexes,
		TileIndexes:      tileIndexes,
		ConfigDir:        *configPath,
		DataDir:          *dataDir,
		OutputDir:        *outputDir,
		NWorkers:         nWorkers,
		GPUs:             gpus,
		MemoryLimit:      *memoryLimit,
		PrefetchCapacity: *prefetch,
		Flags: app.TaskFlags{
			RunDriftComp: *runDriftComp,
			RunBestFocus: *runBestFocus,
			RunSummary:   *runSummary,
		},
		NIterDecon:       *nIterDecon,
		ScaleFactorDecon: *scaleDecon,
	})
	if err != nil {
		logger.Fatal("Invalid pipeline configuration", zap.Error(err))
	}

	if *recordExecution {
		args := map[string]string{}
		flag.VisitAll(func(f *flag.Flag) {
			args[f.Name] = f.Value.String()
		})
		path, err := infrastructure.RecordExecution(*outputDir, args)
		if err != nil {
			logger.Fatal("Failed to record execution", zap.Error(err))
		}
		logger.Info("Execution arguments and environment saved", zap.String("path", path))
	}

	deps := app.RunDeps{
		Logger:   logger,
		Source:   infrastructure.NewBinaryTileReader(logger, expConfig, *dataDir),
		Writer:   infrastructure.NewBinaryTileWriter(logger),
		Executor: app.NewLocalExecutor(logger, cfg.NWorkers, nil),
	}

	data, err := app.Run(context.Background(), cfg, deps)
	if err != nil {
		logger.Fatal("Pipeline execution failed", zap.Error(err))
	}

	if *recordData {
		path, err := infrastructure.RecordMonitorData(*outputDir, data)
		if err != nil {
			logger.Fatal("Failed to record monitor data", zap.Error(err))
		}
		logger.Info("Operation summary data saved", zap.String("path", path))
	}

	logger.Info("Processing pipeline completed successfully")
}

// resolveIndexes parses and resolves one CLI index argument; nil means the
// argument was absent.
func resolveIndexes(arg string) ([]int, error) {
	parsed, err := app.ParseIndexArg(arg)
	if err != nil {
		return nil, err
	}
	return parsed.Resolve()
}

// initLogger initializes the logger with the specified level and log file name.
func initLogger(level string, logfileName ...string) *zap.Logger {
	config := zap.NewProductionConfig()

	switch level {
	case "debug":
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		config.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	outputPaths := []string{"stderr"}
	for _, item := range logfileName {
		if item != "" {
			outputPaths = append(outputPaths, item)
		}
	}

	config.OutputPaths = outputPaths
	config.ErrorOutputPaths = outputPaths
	config.EncoderConfig.TimeKey = "t"
	config.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	config.DisableCaller = false

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	return logger
}
