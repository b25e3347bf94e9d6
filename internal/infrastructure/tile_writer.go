package infrastructure

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"codex-pipeline/internal/domain"
)

// ProcessedTilePath is the result-tile location relative to the output
// directory, keyed by 1-based region and grid coordinates.
func ProcessedTilePath(regionIndex, tileX, tileY int) string {
	return filepath.Join("processor", "tile",
		fmt.Sprintf("R%03d_X%02d_Y%02d.tile", regionIndex+1, tileX+1, tileY+1))
}

// BestFocusTilePath is the best-focus tile location relative to the output
// directory, additionally keyed by the selected 1-based z-plane.
func BestFocusTilePath(regionIndex, tileX, tileY, zPlane int) string {
	return filepath.Join("processor", "bestFocus",
		fmt.Sprintf("R%03d_X%02d_Y%02d_Z%02d.tile", regionIndex+1, tileX+1, tileY+1, zPlane+1))
}

// BinaryTileWriter persists tiles under the run's output directory.
type BinaryTileWriter struct {
	logger *zap.Logger
}

func NewBinaryTileWriter(logger *zap.Logger) *BinaryTileWriter {
	return &BinaryTileWriter{logger: logger}
}

func (w *BinaryTileWriter) WriteProcessedTile(outputDir string, regionIndex, tileX, tileY int, tile *domain.Tile) (string, error) {
	rel := ProcessedTilePath(regionIndex, tileX, tileY)
	return rel, w.write(filepath.Join(outputDir, rel), tile)
}

func (w *BinaryTileWriter) WriteBestFocusTile(outputDir string, regionIndex, tileX, tileY, zPlane int, tile *domain.Tile) (string, error) {
	rel := BestFocusTilePath(regionIndex, tileX, tileY, zPlane)
	return rel, w.write(filepath.Join(outputDir, rel), tile)
}

func (w *BinaryTileWriter) write(path string, tile *domain.Tile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := encodeTile(writer, tile); err != nil {
		return fmt.Errorf("encode tile %q: %w", path, err)
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	w.logger.Debug("Written tile", zap.String("path", path), zap.String("shape", tile.Shape()))
	return nil
}
