package ops

import (
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"codex-pipeline/internal/domain"
)

// FocalPlaneSelector scores every z-plane of a tile by intensity variance
// (a sharpness proxy) and selects the best-scoring plane. It is run on the
// raw tile: deconvolution can flatten the sharpness profile, so scoring
// happens before it even though the selection is applied after.
type FocalPlaneSelector struct {
	logger *zap.Logger
	exp    *domain.ExperimentConfig
	device *int
}

func NewFocalPlaneSelector(logger *zap.Logger, exp *domain.ExperimentConfig, device *int) *FocalPlaneSelector {
	return &FocalPlaneSelector{logger: logger, exp: exp, device: device}
}

func (o *FocalPlaneSelector) Setup() error {
	if o.device != nil {
		o.logger.Debug("Focal plane selection bound to gpu device", zap.Int("device", *o.device))
	}
	return nil
}

func (o *FocalPlaneSelector) Teardown() {}

func (o *FocalPlaneSelector) Run(tile *domain.Tile) (domain.FocusResult, error) {
	scores := make([]float64, tile.ZPlanes)
	planeSize := tile.Height * tile.Width

	for z := 0; z < tile.ZPlanes; z++ {
		var score float64
		for cycle := 0; cycle < tile.Cycles; cycle++ {
			for channel := 0; channel < tile.Channels; channel++ {
				start := ((cycle*tile.ZPlanes+z)*tile.Channels + channel) * planeSize
				score += stat.Variance(tile.Data[start:start+planeSize], nil)
			}
		}
		scores[z] = score
	}

	probabilities := make([]float64, len(scores))
	copy(probabilities, scores)
	if total := floats.Sum(probabilities); total > 0 {
		floats.Scale(1/total, probabilities)
	}

	best := floats.MaxIdx(scores)
	o.logger.Debug("Selected best focal plane",
		zap.Int("z", best),
		zap.Float64("probability", probabilities[best]))

	return domain.FocusResult{
		ZPlane:          best,
		Classifications: scores,
		Probabilities:   probabilities,
	}, nil
}
