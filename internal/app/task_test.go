package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"codex-pipeline/internal/domain"
)

// memSource serves tiles from memory, keyed by (region, tile).
type memSource struct {
	exp   *domain.ExperimentConfig
	tiles map[[2]int]*domain.Tile
	fail  map[[2]int]error
}

func newMemSource(exp *domain.ExperimentConfig, regions, tiles []int) *memSource {
	s := &memSource{exp: exp, tiles: map[[2]int]*domain.Tile{}, fail: map[[2]int]error{}}
	for _, r := range regions {
		for _, ti := range tiles {
			tile := domain.NewTile(exp.NCycles, exp.NZPlanes, exp.NChannels,
				exp.TileHeight+2*exp.TileOverlapY, exp.TileWidth+2*exp.TileOverlapX)
			for i := range tile.Data {
				tile.Data[i] = float64(r*1000 + ti*10 + i%7)
			}
			s.tiles[[2]int{r, ti}] = tile
		}
	}
	return s
}

func (s *memSource) ReadTile(regionIndex, tileIndex int) (*domain.Tile, error) {
	key := [2]int{regionIndex, tileIndex}
	if err := s.fail[key]; err != nil {
		return nil, err
	}
	tile, ok := s.tiles[key]
	if !ok {
		return nil, fmt.Errorf("no tile for region %d tile %d", regionIndex, tileIndex)
	}
	return tile, nil
}

// memWriter records persisted tiles instead of touching disk. Safe for use
// from concurrent tasks.
type memWriter struct {
	mu          sync.Mutex
	processed   []string
	focus       []string
	failOnWrite int // fail the Nth processed-tile write (1-based), 0 disables
}

func (w *memWriter) WriteProcessedTile(outputDir string, regionIndex, tileX, tileY int, tile *domain.Tile) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failOnWrite > 0 && len(w.processed)+1 == w.failOnWrite {
		return "", errors.New("disk full")
	}
	path := fmt.Sprintf("processor/tile/R%d_X%d_Y%d", regionIndex+1, tileX+1, tileY+1)
	w.processed = append(w.processed, path)
	return path, nil
}

func (w *memWriter) WriteBestFocusTile(outputDir string, regionIndex, tileX, tileY, zPlane int, tile *domain.Tile) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	path := fmt.Sprintf("processor/bestFocus/R%d_X%d_Y%d_Z%d", regionIndex+1, tileX+1, tileY+1, zPlane+1)
	w.focus = append(w.focus, path)
	return path, nil
}

func taskExpConfig() *domain.ExperimentConfig {
	return &domain.ExperimentConfig{
		Name:         "ex1",
		RegionNames:  []string{"R1"},
		RegionWidth:  2,
		RegionHeight: 2,
		TileWidth:    4,
		TileHeight:   4,
		TileOverlapX: 1,
		TileOverlapY: 1,
		NCycles:      1,
		NZPlanes:     3,
		NChannels:    1,
	}
}

func buildTaskConfig(t *testing.T, exp *domain.ExperimentConfig, outputDir string) *TaskConfig {
	t.Helper()
	cfg, err := NewPipelineConfig(exp, PipelineParams{
		NWorkers:         1,
		DataDir:          "unused",
		OutputDir:        outputDir,
		NIterDecon:       1,
		ScaleFactorDecon: 0.5,
		Flags:            TaskFlags{RunDriftComp: true, RunBestFocus: true, RunSummary: true},
	})
	require.NoError(t, err)
	tasks, err := cfg.TaskConfigs()
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	return tasks[0]
}

func TestRunTaskProcessesAllAssignedTiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	exp := taskExpConfig()
	task := buildTaskConfig(t, exp, t.TempDir())
	source := newMemSource(exp, []int{0}, []int{0, 1, 2, 3})
	writer := &memWriter{}

	data, err := RunTask(context.Background(), task, TaskDeps{
		Logger: zap.NewNop(),
		Source: source,
		Writer: writer,
	})
	require.NoError(t, err)

	require.Len(t, writer.processed, 4)
	require.Len(t, writer.focus, 4)
	require.Len(t, data["tile"], 4)
	require.Len(t, data["region"], 4)
	require.Len(t, data["focus_z_plane"], 4)
	require.Len(t, data["tile_mean"], 4)
}

func TestRunTaskAbortsOnLoadFailureButKeepsMonitorData(t *testing.T) {
	defer goleak.VerifyNone(t)

	exp := taskExpConfig()
	task := buildTaskConfig(t, exp, t.TempDir())
	source := newMemSource(exp, []int{0}, []int{0, 1, 2, 3})
	source.fail[[2]int{0, 2}] = errors.New("corrupt file")
	writer := &memWriter{}

	data, err := RunTask(context.Background(), task, TaskDeps{
		Logger: zap.NewNop(),
		Source: source,
		Writer: writer,
	})
	require.Error(t, err)
	require.ErrorContains(t, err, "corrupt file")

	// Tiles processed before the failure keep their outputs and metrics.
	require.Len(t, writer.processed, 2)
	require.Len(t, data["tile"], 2)
}

func TestRunTaskMergesMonitorDataDespiteSaveFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	exp := taskExpConfig()
	task := buildTaskConfig(t, exp, t.TempDir())
	source := newMemSource(exp, []int{0}, []int{0, 1, 2, 3})
	writer := &memWriter{failOnWrite: 2}

	data, err := RunTask(context.Background(), task, TaskDeps{
		Logger: zap.NewNop(),
		Source: source,
		Writer: writer,
	})
	require.Error(t, err)
	require.ErrorContains(t, err, "disk full")

	// The failing tile's monitor data survives the partial I/O failure.
	require.Len(t, data["tile"], 2)
	require.Len(t, data["focus_z_plane"], 2)
}

func TestRunTaskWithEmptyAssignment(t *testing.T) {
	defer goleak.VerifyNone(t)

	exp := taskExpConfig()
	task, err := (&PipelineConfig{ExpConfig: exp, OutputDir: t.TempDir(), PrefetchCapacity: 1}).
		NewTaskConfig(nil, nil, nil)
	require.NoError(t, err)

	data, rerr := RunTask(context.Background(), task, TaskDeps{
		Logger: zap.NewNop(),
		Source: newMemSource(exp, nil, nil),
		Writer: &memWriter{},
	})
	require.NoError(t, rerr)
	require.Empty(t, data)
}

func TestGPUContextBindIsIdempotent(t *testing.T) {
	gpu := newGPUContext(zap.NewNop())
	require.Nil(t, gpu.Device())

	gpu.Bind(1)
	require.Equal(t, 1, *gpu.Device())

	// Rebinding to a different device keeps the existing binding.
	gpu.Bind(3)
	require.Equal(t, 1, *gpu.Device())
}

// slowSource delays each read, simulating I/O-bound acquisition.
type slowSource struct {
	*memSource
	delay time.Duration
}

func (s *slowSource) ReadTile(regionIndex, tileIndex int) (*domain.Tile, error) {
	time.Sleep(s.delay)
	return s.memSource.ReadTile(regionIndex, tileIndex)
}

func TestRunTaskOverlapsLoadAndProcess(t *testing.T) {
	defer goleak.VerifyNone(t)

	exp := taskExpConfig()
	task := buildTaskConfig(t, exp, t.TempDir())
	source := &slowSource{
		memSource: newMemSource(exp, []int{0}, []int{0, 1, 2, 3}),
		delay:     10 * time.Millisecond,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := RunTask(context.Background(), task, TaskDeps{
			Logger: zap.NewNop(),
			Source: source,
			Writer: &memWriter{},
		})
		require.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("task did not complete")
	}
}
