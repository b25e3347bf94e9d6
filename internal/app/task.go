package app

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"codex-pipeline/internal/domain"
)

// GPUContext is the explicit per-task device binding. Binding is
// assign-once for the task's lifetime: a second bind to a different device
// logs and keeps the existing binding.
type GPUContext struct {
	logger *zap.Logger
	device *int
}

func newGPUContext(logger *zap.Logger) *GPUContext {
	return &GPUContext{logger: logger}
}

// Bind assigns the device if none is bound yet. Idempotent.
func (g *GPUContext) Bind(device int) {
	if g.device == nil {
		g.logger.Debug("Setting gpu device", zap.Int("device", device))
		d := device
		g.device = &d
		return
	}
	g.logger.Debug("GPU device already set", zap.Int("device", *g.device))
}

// Device returns the bound device, or nil when none is bound.
func (g *GPUContext) Device() *int {
	return g.device
}

// TaskDeps are the external collaborators a task needs.
type TaskDeps struct {
	Logger *zap.Logger
	Source domain.TileSource
	Writer domain.TileWriter
}

// RunTask executes one worker's task: it starts the tile loader, opens the
// operator set as a scoped resource, then dequeues and processes exactly
// NTiles tiles, persisting each result and accumulating monitor data. A
// mid-loop failure aborts the task; outputs already on disk and monitor
// data already merged are retained.
func RunTask(ctx context.Context, cfg *TaskConfig, deps TaskDeps) (domain.MonitorData, error) {
	logger := deps.Logger

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("initialize output directory: %w", err)
	}

	gpu := newGPUContext(logger)
	if cfg.GPU != nil {
		gpu.Bind(*cfg.GPU)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := NewTileQueue(cfg.PrefetchCapacity)
	loadErr := make(chan error, 1)
	go func() {
		if err := loadTiles(ctx, logger, queue, cfg, deps.Source); err != nil {
			loadErr <- err
			cancel()
		}
	}()

	operators := newOperatorSet(logger, cfg, gpu)
	if err := operators.Setup(); err != nil {
		return nil, err
	}
	defer operators.Teardown()

	monitorData := domain.MonitorData{}
	nTiles := cfg.NTiles()
	for i := 0; i < nTiles; i++ {
		item, err := queue.Get(ctx)
		if err != nil {
			// Prefer the loader's error over the cancellation it caused.
			select {
			case lerr := <-loadErr:
				err = lerr
			default:
			}
			return monitorData, err
		}

		tileX, tileY := cfg.ExpConfig.TileCoordinates(item.TileIndex)
		log := stageLogFn(logger, i, nTiles, item.RegionIndex, tileX, tileY)

		monitor := newMonitor(item.TileIndex, item.RegionIndex, tileX, tileY)
		err = func() error {
			// Monitoring survives stage and save failures of this tile.
			defer func() {
				monitorData = Concat(monitorData, monitor.Data())
			}()

			resTile, focusData, err := processTile(item.Tile, operators, monitor, log)
			if err != nil {
				return err
			}

			if focusData != nil {
				path, err := deps.Writer.WriteBestFocusTile(
					cfg.OutputDir, item.RegionIndex, tileX, tileY, focusData.ZPlane, focusData.Tile)
				if err != nil {
					return fmt.Errorf("save best focus tile: %w", err)
				}
				log(fmt.Sprintf("Saved best focus tile to path %q", path), focusData.Tile)
			}

			path, err := deps.Writer.WriteProcessedTile(
				cfg.OutputDir, item.RegionIndex, tileX, tileY, resTile)
			if err != nil {
				return fmt.Errorf("save result tile: %w", err)
			}
			log(fmt.Sprintf("Saved result to path %q", path), resTile)

			log("Processing complete", nil)
			return nil
		}()
		if err != nil {
			return monitorData, fmt.Errorf("tile %d of region %d: %w",
				item.TileIndex+1, item.RegionIndex+1, err)
		}
	}

	return monitorData, nil
}
