package ops

import (
	"math"

	"go.uber.org/zap"

	"codex-pipeline/internal/domain"
)

// DriftCompensator shifts the tile's later acquisition cycles so their
// intensity centroids match the first cycle, compensating stage drift
// between cycles.
type DriftCompensator struct {
	logger *zap.Logger
	exp    *domain.ExperimentConfig
}

func NewDriftCompensator(logger *zap.Logger, exp *domain.ExperimentConfig) *DriftCompensator {
	return &DriftCompensator{logger: logger, exp: exp}
}

func (o *DriftCompensator) Run(tile *domain.Tile) (*domain.Tile, error) {
	if tile.Cycles < 2 {
		return tile, nil
	}

	refY, refX := o.centroid(tile, 0)
	aligned := tile.Clone()
	for cycle := 1; cycle < tile.Cycles; cycle++ {
		cy, cx := o.centroid(tile, cycle)
		dy, dx := int(math.Round(cy-refY)), int(math.Round(cx-refX))
		if dy == 0 && dx == 0 {
			continue
		}
		o.logger.Debug("Compensating cycle drift",
			zap.Int("cycle", cycle),
			zap.Int("dy", dy),
			zap.Int("dx", dx))
		o.shiftCycle(aligned, tile, cycle, dy, dx)
	}
	return aligned, nil
}

// centroid computes the intensity-weighted center of mass of one cycle,
// summed over all z-planes and channels.
func (o *DriftCompensator) centroid(tile *domain.Tile, cycle int) (float64, float64) {
	var total, sumY, sumX float64
	for z := 0; z < tile.ZPlanes; z++ {
		for channel := 0; channel < tile.Channels; channel++ {
			for y := 0; y < tile.Height; y++ {
				for x := 0; x < tile.Width; x++ {
					v := tile.At(cycle, z, channel, y, x)
					total += v
					sumY += v * float64(y)
					sumX += v * float64(x)
				}
			}
		}
	}
	if total == 0 {
		return 0, 0
	}
	return sumY / total, sumX / total
}

// shiftCycle writes the source cycle into dst translated by (-dy, -dx),
// zero-filling pixels shifted in from outside the tile.
func (o *DriftCompensator) shiftCycle(dst, src *domain.Tile, cycle, dy, dx int) {
	for z := 0; z < src.ZPlanes; z++ {
		for channel := 0; channel < src.Channels; channel++ {
			for y := 0; y < src.Height; y++ {
				for x := 0; x < src.Width; x++ {
					sy, sx := y+dy, x+dx
					v := 0.0
					if sy >= 0 && sy < src.Height && sx >= 0 && sx < src.Width {
						v = src.At(cycle, z, channel, sy, sx)
					}
					dst.Set(cycle, z, channel, y, x, v)
				}
			}
		}
	}
}
