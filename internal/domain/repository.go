package domain

// TileSource reads one assembled tile for a 0-based (region, tile) pair.
// Implementations acquire and release any underlying resource around the read.
type TileSource interface {
	ReadTile(regionIndex, tileIndex int) (*Tile, error)
}

// TileWriter persists processed and best-focus tiles to deterministic paths
// under an output directory, returning the path written relative to it.
type TileWriter interface {
	WriteProcessedTile(outputDir string, regionIndex, tileX, tileY int, tile *Tile) (string, error)
	WriteBestFocusTile(outputDir string, regionIndex, tileX, tileY, zPlane int, tile *Tile) (string, error)
}

// ConfigReader loads an experiment configuration.
type ConfigReader interface {
	ReadConfig(path string) (*ExperimentConfig, error)
}
