package domain

// Operator is one image-correction stage with a uniform run contract:
// it consumes a tile and produces a (possibly identical) tile.
type Operator interface {
	Run(tile *Tile) (*Tile, error)
}

// FocusOperator selects the best focal plane of a tile.
type FocusOperator interface {
	Run(tile *Tile) (FocusResult, error)
}

// SummaryOperator computes descriptive statistics over a tile. The result
// is diagnostic data only; no image output is carried forward.
type SummaryOperator interface {
	Run(tile *Tile) (MonitorData, error)
}

// LifecycleOperator is implemented by operators holding resources that need
// explicit setup before the tile loop and teardown after it.
type LifecycleOperator interface {
	Setup() error
	Teardown()
}
