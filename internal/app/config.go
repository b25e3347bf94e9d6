package app

import (
	"codex-pipeline/internal/domain"
)

// Defaults applied when the corresponding run parameter is unset.
const (
	DefaultPrefetchCapacity = 1
	DefaultNIterDecon       = 25
	DefaultScaleFactorDecon = 0.5
	DefaultMemoryLimit      = int64(48e9)
)

// TaskFlags toggles the optional operator stages. Deconvolution is gated
// separately by the iteration count (see TaskConfig.RunDeconvolution).
type TaskFlags struct {
	RunDriftComp bool
	RunBestFocus bool
	RunSummary   bool
}

// PipelineParams carries the resolved user inputs for one run. Region and
// tile indexes are 1-based; nil means "infer from the experiment config".
type PipelineParams struct {
	RegionIndexes    []int
	TileIndexes      []int
	ConfigDir        string
	DataDir          string
	OutputDir        string
	NWorkers         int
	GPUs             []int
	MemoryLimit      int64
	PrefetchCapacity int
	Flags            TaskFlags
	NIterDecon       int
	ScaleFactorDecon float64
}

// PipelineConfig is the immutable description of one run. The public index
// lists stay 1-based; 0-based derivations are exposed through methods.
type PipelineConfig struct {
	regionIdx []int
	tileIdx   []int

	ConfigDir        string
	DataDir          string
	OutputDir        string
	NWorkers         int
	GPUs             []int
	MemoryLimit      int64
	PrefetchCapacity int
	Flags            TaskFlags
	NIterDecon       int
	ScaleFactorDecon float64

	ExpConfig *domain.ExperimentConfig
}

// NewPipelineConfig validates the run parameters against the experiment
// configuration, defaulting absent index lists from it.
func NewPipelineConfig(exp *domain.ExperimentConfig, p PipelineParams) (*PipelineConfig, error) {
	if exp == nil {
		return nil, domain.ConfigurationErrorf("experiment configuration is required")
	}
	if p.NWorkers < 1 {
		return nil, domain.ConfigurationErrorf("worker count must be at least 1 (got %d)", p.NWorkers)
	}

	// Copy caller slices so the config stays immutable after construction.
	regionIdx := append([]int(nil), p.RegionIndexes...)
	if p.RegionIndexes == nil {
		// Convert back to the 1-based convention used on the config surface.
		for _, i := range exp.RegionIndexes() {
			regionIdx = append(regionIdx, i+1)
		}
	}
	tileIdx := append([]int(nil), p.TileIndexes...)
	if p.TileIndexes == nil {
		for i := 1; i <= exp.NTilesPerRegion(); i++ {
			tileIdx = append(tileIdx, i)
		}
	}

	for _, i := range regionIdx {
		if i <= 0 {
			return nil, domain.ConfigurationErrorf(
				"region indexes must be specified as 1-based index (indexes given = %v)", regionIdx)
		}
	}
	for _, i := range tileIdx {
		if i <= 0 {
			return nil, domain.ConfigurationErrorf(
				"tile indexes must be specified as 1-based index (indexes given = %v)", tileIdx)
		}
	}

	prefetch := p.PrefetchCapacity
	if prefetch == 0 {
		prefetch = DefaultPrefetchCapacity
	}
	if prefetch < 1 {
		return nil, domain.ConfigurationErrorf("tile prefetch capacity must be at least 1 (got %d)", prefetch)
	}

	return &PipelineConfig{
		regionIdx:        regionIdx,
		tileIdx:          tileIdx,
		ConfigDir:        p.ConfigDir,
		DataDir:          p.DataDir,
		OutputDir:        p.OutputDir,
		NWorkers:         p.NWorkers,
		GPUs:             append([]int(nil), p.GPUs...),
		MemoryLimit:      p.MemoryLimit,
		PrefetchCapacity: prefetch,
		Flags:            p.Flags,
		NIterDecon:       p.NIterDecon,
		ScaleFactorDecon: p.ScaleFactorDecon,
		ExpConfig:        exp,
	}, nil
}

// RegionIndexes returns the 0-based region index list.
func (c *PipelineConfig) RegionIndexes() []int {
	return toZeroBased(c.regionIdx)
}

// TileIndexes returns the 0-based tile index list.
func (c *PipelineConfig) TileIndexes() []int {
	return toZeroBased(c.tileIdx)
}

// RegionTiles returns the 0-based cartesian product of region and tile
// indexes, region-major. This is the full set of pairs to process.
func (c *PipelineConfig) RegionTiles() [][2]int {
	regions := c.RegionIndexes()
	tiles := c.TileIndexes()
	pairs := make([][2]int, 0, len(regions)*len(tiles))
	for _, r := range regions {
		for _, t := range tiles {
			pairs = append(pairs, [2]int{r, t})
		}
	}
	return pairs
}

// TaskConfigs partitions the pair list into NWorkers contiguous batches and
// builds one task per batch with round-robin GPU assignment. Worker count
// may exceed GPU count; GPUs are reused in order.
func (c *PipelineConfig) TaskConfigs() ([]*TaskConfig, error) {
	pairs := c.RegionTiles()
	batches := splitBatches(len(pairs), c.NWorkers)

	tasks := make([]*TaskConfig, 0, len(batches))
	for i, batch := range batches {
		regionIndexes := make([]int, 0, batch.stop-batch.start)
		tileIndexes := make([]int, 0, batch.stop-batch.start)
		for _, pair := range pairs[batch.start:batch.stop] {
			regionIndexes = append(regionIndexes, pair[0])
			tileIndexes = append(tileIndexes, pair[1])
		}

		var gpu *int
		if len(c.GPUs) > 0 {
			g := c.GPUs[i%len(c.GPUs)]
			gpu = &g
		}

		task, err := c.NewTaskConfig(regionIndexes, tileIndexes, gpu)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// NewTaskConfig builds the task for one worker's slice of 0-based,
// pairwise-associated region and tile indexes.
func (c *PipelineConfig) NewTaskConfig(regionIndexes, tileIndexes []int, gpu *int) (*TaskConfig, error) {
	return newTaskConfig(c, regionIndexes, tileIndexes, gpu)
}

// TaskConfig is one worker's unit of work. Region and tile index lists are
// 0-based and pairwise-associated, not a cross product. Owned exclusively by
// the executing worker; never mutated after creation.
type TaskConfig struct {
	RegionIndexes []int
	TileIndexes   []int

	ConfigDir string
	DataDir   string
	OutputDir string

	GPU              *int
	PrefetchCapacity int
	Flags            TaskFlags
	NIterDecon       int
	ScaleFactorDecon float64

	ExpConfig *domain.ExperimentConfig
}

func newTaskConfig(c *PipelineConfig, regionIndexes, tileIndexes []int, gpu *int) (*TaskConfig, error) {
	if len(regionIndexes) != len(tileIndexes) {
		return nil, domain.ConfigurationErrorf(
			"region and tile index lists must have same length (region indexes = %v, tile indexes = %v)",
			regionIndexes, tileIndexes)
	}
	return &TaskConfig{
		RegionIndexes:    regionIndexes,
		TileIndexes:      tileIndexes,
		ConfigDir:        c.ConfigDir,
		DataDir:          c.DataDir,
		OutputDir:        c.OutputDir,
		GPU:              gpu,
		PrefetchCapacity: c.PrefetchCapacity,
		Flags:            c.Flags,
		NIterDecon:       c.NIterDecon,
		ScaleFactorDecon: c.ScaleFactorDecon,
		ExpConfig:        c.ExpConfig,
	}, nil
}

// RunDeconvolution reports whether the deconvolution stage is enabled.
func (t *TaskConfig) RunDeconvolution() bool {
	return t.NIterDecon > 0
}

// NTiles returns the number of tiles assigned to this task.
func (t *TaskConfig) NTiles() int {
	return len(t.TileIndexes)
}

type batchRange struct {
	start, stop int
}

// splitBatches divides the index range [0, m) into n nearly-equal contiguous
// batches. The first m mod n batches are one element longer, so batch sizes
// never differ by more than one. Trailing batches may be empty when n > m.
func splitBatches(m, n int) []batchRange {
	base := m / n
	extra := m % n
	batches := make([]batchRange, 0, n)
	start := 0
	for i := 0; i < n; i++ {
		size := base
		if i < extra {
			size++
		}
		batches = append(batches, batchRange{start: start, stop: start + size})
		start += size
	}
	return batches
}

func toZeroBased(indexes []int) []int {
	out := make([]int, len(indexes))
	for i, v := range indexes {
		out[i] = v - 1
	}
	return out
}
