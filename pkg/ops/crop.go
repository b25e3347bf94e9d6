package ops

import (
	"go.uber.org/zap"

	"codex-pipeline/internal/domain"
)

// TileCrop removes the configured overlap margins from a raw tile. It is
// the one mandatory stage of the pipeline.
type TileCrop struct {
	logger *zap.Logger
	exp    *domain.ExperimentConfig
}

func NewTileCrop(logger *zap.Logger, exp *domain.ExperimentConfig) *TileCrop {
	return &TileCrop{logger: logger, exp: exp}
}

// Run crops TileOverlapX columns from each side and TileOverlapY rows from
// top and bottom. A tile that already fits the cropped geometry passes
// through unchanged.
func (o *TileCrop) Run(tile *domain.Tile) (*domain.Tile, error) {
	ox, oy := o.exp.TileOverlapX, o.exp.TileOverlapY
	if ox == 0 && oy == 0 {
		return tile, nil
	}
	if tile.Width <= o.exp.TileWidth && tile.Height <= o.exp.TileHeight {
		o.logger.Warn("Tile appears to be cropped already, skipping overlap crop",
			zap.String("shape", tile.Shape()))
		return tile, nil
	}

	cropped := domain.NewTile(tile.Cycles, tile.ZPlanes, tile.Channels, tile.Height-2*oy, tile.Width-2*ox)
	for cycle := 0; cycle < tile.Cycles; cycle++ {
		for z := 0; z < tile.ZPlanes; z++ {
			for channel := 0; channel < tile.Channels; channel++ {
				for y := 0; y < cropped.Height; y++ {
					for x := 0; x < cropped.Width; x++ {
						cropped.Set(cycle, z, channel, y, x, tile.At(cycle, z, channel, y+oy, x+ox))
					}
				}
			}
		}
	}
	return cropped, nil
}
