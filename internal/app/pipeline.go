package app

import (
	"fmt"

	"go.uber.org/zap"

	"codex-pipeline/internal/domain"
	"codex-pipeline/pkg/ops"
)

// OperatorSet holds the stage operators for one task. Crop is always bound;
// every other stage is nil when disabled.
type OperatorSet struct {
	Align   domain.Operator
	Crop    domain.Operator
	Decon   domain.Operator
	Focus   domain.FocusOperator
	Summary domain.SummaryOperator
}

// newOperatorSet binds the enabled operators for a task. GPU-backed
// operators receive the task's device context.
func newOperatorSet(logger *zap.Logger, cfg *TaskConfig, gpu *GPUContext) *OperatorSet {
	set := &OperatorSet{
		Crop: ops.NewTileCrop(logger, cfg.ExpConfig),
	}
	if cfg.Flags.RunDriftComp {
		set.Align = ops.NewDriftCompensator(logger, cfg.ExpConfig)
	}
	if cfg.RunDeconvolution() {
		set.Decon = ops.NewDeconvolver(logger, cfg.ExpConfig, cfg.NIterDecon, cfg.ScaleFactorDecon, gpu.Device())
	}
	if cfg.Flags.RunBestFocus {
		set.Focus = ops.NewFocalPlaneSelector(logger, cfg.ExpConfig, gpu.Device())
	}
	if cfg.Flags.RunSummary {
		set.Summary = ops.NewTileSummary(logger, cfg.ExpConfig)
	}
	return set
}

func (s *OperatorSet) each() []any {
	return []any{s.Align, s.Crop, s.Decon, s.Focus, s.Summary}
}

// Setup initializes any operator holding resources. Called once before the
// task's tile loop.
func (s *OperatorSet) Setup() error {
	for _, op := range s.each() {
		if lc, ok := op.(domain.LifecycleOperator); ok && lc != nil {
			if err := lc.Setup(); err != nil {
				return fmt.Errorf("operator setup: %w", err)
			}
		}
	}
	return nil
}

// Teardown releases operator resources. Guaranteed to run after the tile
// loop, on success or failure.
func (s *OperatorSet) Teardown() {
	for _, op := range s.each() {
		if lc, ok := op.(domain.LifecycleOperator); ok && lc != nil {
			lc.Teardown()
		}
	}
}

// FocusData pairs the selected best-focus tile with its z-plane.
type FocusData struct {
	Tile   *domain.Tile
	ZPlane int
}

// logFunc emits one structured stage log entry, with the stage's array
// result when it produced one.
type logFunc func(msg string, res *domain.Tile)

// stageLogFn builds the per-tile stage logger: every entry names the tile's
// position in the task, its progress percentage and its reg/x/y coordinates
// (all 1-based).
func stageLogFn(logger *zap.Logger, i, nTiles, regionIndex, tileX, tileY int) logFunc {
	position := fmt.Sprintf("%d of %d (%.2f%%)", i+1, nTiles, 100*float64(i+1)/float64(nTiles))
	coords := fmt.Sprintf("%d/%d/%d", regionIndex+1, tileX+1, tileY+1)
	return func(msg string, res *domain.Tile) {
		fields := []zap.Field{
			zap.String("tile", position),
			zap.String("reg/x/y", coords),
		}
		if res != nil {
			fields = append(fields,
				zap.String("shape", res.Shape()),
				zap.String("dtype", "float64"))
		}
		logger.Info(msg, fields...)
	}
}

// processTile runs one tile through the operator stages in fixed order:
// alignment, crop, deconvolution, focal-plane selection, summary. Every
// stage except crop is skippable. Returns the fully processed tile and,
// when focal-plane selection ran, the selected focus tile and z-plane.
func processTile(tile *domain.Tile, operators *OperatorSet, monitor *Monitor, log logFunc) (*domain.Tile, *FocusData, error) {
	// Drift compensation
	alignTile := tile
	if operators.Align != nil {
		var err error
		alignTile, err = operators.Align.Run(tile)
		if err != nil {
			return nil, nil, fmt.Errorf("drift compensation: %w", err)
		}
		log("Drift compensation complete", alignTile)
	} else {
		log("Skipping drift compensation", nil)
	}

	// Tile overlap cropping (required)
	cropTile, err := operators.Crop.Run(alignTile)
	if err != nil {
		return nil, nil, fmt.Errorf("tile overlap crop: %w", err)
	}
	log("Tile overlap crop complete", cropTile)

	// Deconvolution
	deconTile := cropTile
	if operators.Decon != nil {
		deconTile, err = operators.Decon.Run(cropTile)
		if err != nil {
			return nil, nil, fmt.Errorf("deconvolution: %w", err)
		}
		log("Deconvolution complete", deconTile)
	} else {
		log("Skipping deconvolution", nil)
	}

	// Best focal plane selection. The plane is scored on the original
	// (pre-deconvolution) tile but applied to the deconvolved volume.
	var focusData *FocusData
	if operators.Focus != nil {
		focus, err := operators.Focus.Run(tile)
		if err != nil {
			return nil, nil, fmt.Errorf("focal plane selection: %w", err)
		}
		focusTile, err := deconTile.SliceZ(focus.ZPlane)
		if err != nil {
			return nil, nil, fmt.Errorf("focal plane selection: %w", err)
		}
		focusData = &FocusData{Tile: focusTile, ZPlane: focus.ZPlane}
		monitor.Add("focus_z_plane", float64(focus.ZPlane))
		monitor.Add("focus_classifications", focus.Classifications...)
		monitor.Add("focus_probabilities", focus.Probabilities...)
		log("Focal plane selection complete", focusTile)
	} else {
		log("Skipping focal plane selection", nil)
	}

	// Tile summary statistic operations (side effect only)
	if operators.Summary != nil {
		stats, err := operators.Summary.Run(deconTile)
		if err != nil {
			return nil, nil, fmt.Errorf("tile statistic summary: %w", err)
		}
		monitor.Merge(stats)
		log("Tile statistic summary complete", nil)
	} else {
		log("Skipping tile statistic summary", nil)
	}

	return deconTile, focusData, nil
}
