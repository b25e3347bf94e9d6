package infrastructure

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"codex-pipeline/internal/domain"
)

// RawTileName is the file name of an assembled tile in the data directory,
// keyed by 1-based region and grid coordinates.
func RawTileName(regionIndex, tileX, tileY int) string {
	return fmt.Sprintf("R%03d_X%02d_Y%02d.tile", regionIndex+1, tileX+1, tileY+1)
}

// BinaryTileReader reads assembled tiles from a data directory. Each read
// opens and closes its file, so no handle outlives the acquisition.
type BinaryTileReader struct {
	logger  *zap.Logger
	exp     *domain.ExperimentConfig
	dataDir string
}

func NewBinaryTileReader(logger *zap.Logger, exp *domain.ExperimentConfig, dataDir string) *BinaryTileReader {
	return &BinaryTileReader{logger: logger, exp: exp, dataDir: dataDir}
}

func (r *BinaryTileReader) ReadTile(regionIndex, tileIndex int) (*domain.Tile, error) {
	tileX, tileY := r.exp.TileCoordinates(tileIndex)
	path := filepath.Join(r.dataDir, RawTileName(regionIndex, tileX, tileY))

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	tile, err := decodeTile(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("decode tile %q: %w", path, err)
	}

	if tile.ZPlanes != r.exp.NZPlanes || tile.Channels != r.exp.NChannels {
		r.logger.Warn("Tile geometry differs from experiment config",
			zap.String("path", path),
			zap.String("shape", tile.Shape()))
	}
	return tile, nil
}
