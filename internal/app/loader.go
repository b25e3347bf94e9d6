package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"codex-pipeline/internal/domain"
)

// loadTiles is the producer side of one task: it reads the task's tiles
// sequentially in assignment order and feeds them into the queue, running
// concurrently with processing. The first read or enqueue error stops it.
func loadTiles(ctx context.Context, logger *zap.Logger, q *TileQueue, cfg *TaskConfig, source domain.TileSource) error {
	for i := range cfg.RegionIndexes {
		regionIndex := cfg.RegionIndexes[i]
		tileIndex := cfg.TileIndexes[i]

		tile, err := source.ReadTile(regionIndex, tileIndex)
		if err != nil {
			return fmt.Errorf("load tile %d for region %d: %w", tileIndex+1, regionIndex+1, err)
		}
		logger.Info("Loaded tile",
			zap.Int("tile", tileIndex+1),
			zap.Int("region", regionIndex+1),
			zap.String("shape", tile.Shape()))

		if err := q.Put(ctx, tileItem{Tile: tile, RegionIndex: regionIndex, TileIndex: tileIndex}); err != nil {
			return err
		}
	}
	return nil
}
