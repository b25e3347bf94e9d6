package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"codex-pipeline/internal/domain"
)

func testExpConfig() *domain.ExperimentConfig {
	return &domain.ExperimentConfig{
		Name:         "ex1",
		RegionNames:  []string{"R1", "R2", "R3"},
		RegionWidth:  2,
		RegionHeight: 2,
		TileWidth:    8,
		TileHeight:   8,
		NCycles:      1,
		NZPlanes:     3,
		NChannels:    1,
	}
}

func testParams() PipelineParams {
	return PipelineParams{
		NWorkers:   1,
		DataDir:    "data",
		OutputDir:  "out",
		NIterDecon: 2,
		Flags:      TaskFlags{RunDriftComp: true, RunBestFocus: true, RunSummary: true},
	}
}

func TestPipelineConfigDefaultsIndexesFromExperiment(t *testing.T) {
	cfg, err := NewPipelineConfig(testExpConfig(), testParams())
	require.NoError(t, err)

	// Defaults are converted to the 1-based public convention, exposed 0-based.
	require.Equal(t, []int{0, 1, 2}, cfg.RegionIndexes())
	require.Equal(t, []int{0, 1, 2, 3}, cfg.TileIndexes())
}

func TestPipelineConfigRejectsZeroBasedIndexes(t *testing.T) {
	p := testParams()
	p.RegionIndexes = []int{0}
	_, err := NewPipelineConfig(testExpConfig(), p)
	require.ErrorIs(t, err, domain.ErrConfiguration)

	p = testParams()
	p.TileIndexes = []int{1, -2}
	_, err = NewPipelineConfig(testExpConfig(), p)
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestPipelineConfigCopiesCallerSlices(t *testing.T) {
	p := testParams()
	p.RegionIndexes = []int{1, 2}
	p.TileIndexes = []int{1, 2}
	p.GPUs = []int{0, 1}
	cfg, err := NewPipelineConfig(testExpConfig(), p)
	require.NoError(t, err)

	// Mutating the caller's slices after construction must not leak into
	// the immutable config.
	p.RegionIndexes[0] = 99
	p.TileIndexes[1] = 99
	p.GPUs[0] = 99

	require.Equal(t, []int{0, 1}, cfg.RegionIndexes())
	require.Equal(t, []int{0, 1}, cfg.TileIndexes())
	require.Equal(t, []int{0, 1}, cfg.GPUs)
}

func TestRegionTilesIsCartesianProduct(t *testing.T) {
	p := testParams()
	p.RegionIndexes = []int{1, 3}
	p.TileIndexes = []int{2, 4}
	cfg, err := NewPipelineConfig(testExpConfig(), p)
	require.NoError(t, err)

	pairs := cfg.RegionTiles()
	require.Len(t, pairs, len(cfg.RegionIndexes())*len(cfg.TileIndexes()))
	require.Equal(t, [][2]int{{0, 1}, {0, 3}, {2, 1}, {2, 3}}, pairs)
}

func TestTaskConfigsPartitionPairsExactly(t *testing.T) {
	p := testParams()
	p.NWorkers = 5
	cfg, err := NewPipelineConfig(testExpConfig(), p)
	require.NoError(t, err)

	tasks, err := cfg.TaskConfigs()
	require.NoError(t, err)
	require.Len(t, tasks, 5)

	// The union of task assignments must be exactly the pair set, in order,
	// with no overlap and no omission.
	var got [][2]int
	for _, task := range tasks {
		require.Equal(t, len(task.RegionIndexes), len(task.TileIndexes))
		for i := range task.RegionIndexes {
			got = append(got, [2]int{task.RegionIndexes[i], task.TileIndexes[i]})
		}
	}
	require.Equal(t, cfg.RegionTiles(), got)
}

func TestTaskConfigsBatchSizesAreBalanced(t *testing.T) {
	// 12 pairs over 5 workers: the first two batches get the extra element.
	p := testParams()
	p.NWorkers = 5
	cfg, err := NewPipelineConfig(testExpConfig(), p)
	require.NoError(t, err)

	tasks, err := cfg.TaskConfigs()
	require.NoError(t, err)

	var sizes []int
	for _, task := range tasks {
		sizes = append(sizes, task.NTiles())
	}
	require.Equal(t, []int{3, 3, 2, 2, 2}, sizes)
}

func TestTaskConfigsRoundRobinGPUAssignment(t *testing.T) {
	p := testParams()
	p.NWorkers = 5
	p.GPUs = []int{0, 1}
	cfg, err := NewPipelineConfig(testExpConfig(), p)
	require.NoError(t, err)

	tasks, err := cfg.TaskConfigs()
	require.NoError(t, err)

	var gpus []int
	for _, task := range tasks {
		require.NotNil(t, task.GPU)
		gpus = append(gpus, *task.GPU)
	}
	require.Equal(t, []int{0, 1, 0, 1, 0}, gpus)
}

func TestTaskConfigsWithoutGPUs(t *testing.T) {
	cfg, err := NewPipelineConfig(testExpConfig(), testParams())
	require.NoError(t, err)

	tasks, err := cfg.TaskConfigs()
	require.NoError(t, err)
	for _, task := range tasks {
		require.Nil(t, task.GPU)
	}
}

func TestNewTaskConfigRejectsMismatchedLengths(t *testing.T) {
	cfg, err := NewPipelineConfig(testExpConfig(), testParams())
	require.NoError(t, err)

	_, err = cfg.NewTaskConfig([]int{0, 0}, []int{1}, nil)
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestRunDeconvolutionGatedByIterationCount(t *testing.T) {
	p := testParams()
	p.NIterDecon = 0
	cfg, err := NewPipelineConfig(testExpConfig(), p)
	require.NoError(t, err)

	tasks, err := cfg.TaskConfigs()
	require.NoError(t, err)
	require.False(t, tasks[0].RunDeconvolution())
}

func TestSplitBatchesTrailingEmpty(t *testing.T) {
	batches := splitBatches(2, 4)
	require.Len(t, batches, 4)
	require.Equal(t, 1, batches[0].stop-batches[0].start)
	require.Equal(t, 1, batches[1].stop-batches[1].start)
	require.Equal(t, 0, batches[2].stop-batches[2].start)
	require.Equal(t, 0, batches[3].stop-batches[3].start)
}
