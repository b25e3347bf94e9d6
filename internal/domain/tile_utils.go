package domain

import "fmt"

// NewTile allocates a zeroed tile with the given axis sizes.
func NewTile(cycles, zPlanes, channels, height, width int) *Tile {
	return &Tile{
		Cycles:   cycles,
		ZPlanes:  zPlanes,
		Channels: channels,
		Height:   height,
		Width:    width,
		Data:     make([]float64, cycles*zPlanes*channels*height*width),
	}
}

// Len returns the number of elements in the tile volume.
func (t *Tile) Len() int {
	return t.Cycles * t.ZPlanes * t.Channels * t.Height * t.Width
}

func (t *Tile) offset(cycle, z, channel, y, x int) int {
	return (((cycle*t.ZPlanes+z)*t.Channels+channel)*t.Height+y)*t.Width + x
}

// At returns the value at (cycle, z, channel, y, x).
func (t *Tile) At(cycle, z, channel, y, x int) float64 {
	return t.Data[t.offset(cycle, z, channel, y, x)]
}

// Set stores a value at (cycle, z, channel, y, x).
func (t *Tile) Set(cycle, z, channel, y, x int, value float64) {
	t.Data[t.offset(cycle, z, channel, y, x)] = value
}

// Clone returns a deep copy of the tile.
func (t *Tile) Clone() *Tile {
	c := *t
	c.Data = make([]float64, len(t.Data))
	copy(c.Data, t.Data)
	return &c
}

// SliceZ extracts the single z-plane at index z, preserving all other axes.
func (t *Tile) SliceZ(z int) (*Tile, error) {
	if z < 0 || z >= t.ZPlanes {
		return nil, fmt.Errorf("z-plane %d out of range [0, %d)", z, t.ZPlanes)
	}
	s := NewTile(t.Cycles, 1, t.Channels, t.Height, t.Width)
	for cycle := 0; cycle < t.Cycles; cycle++ {
		for channel := 0; channel < t.Channels; channel++ {
			for y := 0; y < t.Height; y++ {
				src := t.offset(cycle, z, channel, y, 0)
				dst := s.offset(cycle, 0, channel, y, 0)
				copy(s.Data[dst:dst+t.Width], t.Data[src:src+t.Width])
			}
		}
	}
	return s, nil
}

// Shape formats the axis sizes as "(cycles, z, channels, height, width)".
func (t *Tile) Shape() string {
	return fmt.Sprintf("(%d, %d, %d, %d, %d)", t.Cycles, t.ZPlanes, t.Channels, t.Height, t.Width)
}
