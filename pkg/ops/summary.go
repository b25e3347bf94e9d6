package ops

import (
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"codex-pipeline/internal/domain"
)

// TileSummary computes descriptive statistics over a processed tile. The
// result feeds the monitor only; no image output is carried forward.
type TileSummary struct {
	logger *zap.Logger
	exp    *domain.ExperimentConfig
}

func NewTileSummary(logger *zap.Logger, exp *domain.ExperimentConfig) *TileSummary {
	return &TileSummary{logger: logger, exp: exp}
}

func (o *TileSummary) Run(tile *domain.Tile) (domain.MonitorData, error) {
	mean, std := stat.MeanStdDev(tile.Data, nil)
	return domain.MonitorData{
		"tile_mean":   {mean},
		"tile_stddev": {std},
		"tile_min":    {floats.Min(tile.Data)},
		"tile_max":    {floats.Max(tile.Data)},
	}, nil
}
