package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"codex-pipeline/internal/domain"
)

func TestConcatMergesByKey(t *testing.T) {
	a := domain.MonitorData{"a": {1}}
	b := domain.MonitorData{"a": {2}}

	require.Equal(t, domain.MonitorData{"a": {1, 2}}, Concat(a, b))
	require.Equal(t, domain.MonitorData{"a": {2, 1}}, Concat(b, a))
}

func TestConcatIsAssociative(t *testing.T) {
	a := domain.MonitorData{"a": {1}, "b": {10}}
	b := domain.MonitorData{"a": {2}}
	c := domain.MonitorData{"b": {20}, "c": {30}}

	left := Concat(Concat(a, b), c)
	right := Concat(a, Concat(b, c))
	require.Equal(t, left, right)
}

func TestConcatDoesNotMutateSources(t *testing.T) {
	a := domain.MonitorData{"a": {1}}
	b := domain.MonitorData{"a": {2}}
	Concat(a, b)

	require.Equal(t, domain.MonitorData{"a": {1}}, a)
	require.Equal(t, domain.MonitorData{"a": {2}}, b)
}

func TestMonitorCarriesTileContext(t *testing.T) {
	m := newMonitor(5, 1, 1, 2)
	m.Add("op_time", 0.5)
	m.Merge(domain.MonitorData{"op_time": {0.7}, "extra": {1}})

	data := m.Data()
	require.Equal(t, []float64{5}, data["tile"])
	require.Equal(t, []float64{1}, data["region"])
	require.Equal(t, []float64{1}, data["tile_x"])
	require.Equal(t, []float64{2}, data["tile_y"])
	require.Equal(t, []float64{0.5, 0.7}, data["op_time"])
	require.Equal(t, []float64{1}, data["extra"])
}
