package domain

import (
	"errors"
	"fmt"
)

// ExperimentConfig describes one acquisition experiment: the regions imaged,
// the tile grid within each region, and the raw tile geometry.
type ExperimentConfig struct {
	Name         string   `yaml:"name"`
	RegionNames  []string `yaml:"region_names"`
	RegionWidth  int      `yaml:"region_width"`
	RegionHeight int      `yaml:"region_height"`
	TileWidth    int      `yaml:"tile_width"`
	TileHeight   int      `yaml:"tile_height"`
	TileOverlapX int      `yaml:"tile_overlap_x"`
	TileOverlapY int      `yaml:"tile_overlap_y"`
	NCycles      int      `yaml:"n_cycles"`
	NZPlanes     int      `yaml:"n_z_planes"`
	NChannels    int      `yaml:"n_channels"`
}

// RegionIndexes returns the 0-based indexes of all configured regions.
func (c *ExperimentConfig) RegionIndexes() []int {
	indexes := make([]int, len(c.RegionNames))
	for i := range indexes {
		indexes[i] = i
	}
	return indexes
}

// NTilesPerRegion returns the number of tiles in each region's grid.
func (c *ExperimentConfig) NTilesPerRegion() int {
	return c.RegionWidth * c.RegionHeight
}

// TileCoordinates maps a 0-based tile index to its (x, y) grid position
// within a region. Tiles are laid out row-major.
func (c *ExperimentConfig) TileCoordinates(tileIndex int) (int, int) {
	return tileIndex % c.RegionWidth, tileIndex / c.RegionWidth
}

// Tile is one spatial image block: a dense float64 volume with axes
// (cycle, z, channel, y, x), matching acquisition order.
type Tile struct {
	Cycles   int
	ZPlanes  int
	Channels int
	Height   int
	Width    int
	Data     []float64
}

// FocusResult carries the output of focal-plane selection: the chosen
// z-plane plus the per-plane classification scores and probabilities it
// was derived from.
type FocusResult struct {
	ZPlane          int
	Classifications []float64
	Probabilities   []float64
}

// MonitorData maps a metric name to the list of values collected for it.
// Values from separate tiles or tasks are merged by list concatenation.
type MonitorData map[string][]float64

var (
	ErrConfiguration     = errors.New("invalid pipeline configuration")
	ErrQueueTimeout      = errors.New("tile queue operation timed out")
	ErrTaskCountMismatch = errors.New("task result count mismatch")
	ErrInvalidTileFormat = errors.New("invalid tile file format")
)

// ConfigurationErrorf wraps ErrConfiguration with a formatted description
// of the offending values.
func ConfigurationErrorf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrConfiguration)...)
}
