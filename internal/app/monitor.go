package app

import "codex-pipeline/internal/domain"

// Monitor collects diagnostic values for one tile's processing scope. It is
// opened before the operator pipeline runs and its data is merged into the
// task aggregate on exit even when a stage or a save fails.
type Monitor struct {
	data domain.MonitorData
}

// newMonitor opens a monitor scoped to one tile, seeded with the tile's
// 0-based position context.
func newMonitor(tileIndex, regionIndex, tileX, tileY int) *Monitor {
	return &Monitor{
		data: domain.MonitorData{
			"tile":   {float64(tileIndex)},
			"region": {float64(regionIndex)},
			"tile_x": {float64(tileX)},
			"tile_y": {float64(tileY)},
		},
	}
}

// Add appends values under the given metric name.
func (m *Monitor) Add(key string, values ...float64) {
	m.data[key] = append(m.data[key], values...)
}

// Merge folds another dataset into this monitor's data.
func (m *Monitor) Merge(d domain.MonitorData) {
	for k, v := range d {
		m.data[k] = append(m.data[k], v...)
	}
}

// Data returns the collected mapping.
func (m *Monitor) Data() domain.MonitorData {
	return m.data
}

// Concat merges datasets by concatenating the value lists under matching
// keys. It is associative and commutative up to per-source list order, so
// unordered distributed results merge deterministically.
func Concat(datasets ...domain.MonitorData) domain.MonitorData {
	res := domain.MonitorData{}
	for _, dataset := range datasets {
		for k, v := range dataset {
			res[k] = append(res[k], v...)
		}
	}
	return res
}
