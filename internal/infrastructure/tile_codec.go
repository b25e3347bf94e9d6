package infrastructure

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"codex-pipeline/internal/domain"
)

// Tile files carry a fixed header (magic + five axis sizes, little endian)
// followed by the float64 volume in (cycle, z, channel, y, x) order.
var tileMagic = [4]byte{'C', 'D', 'X', 'T'}

func encodeTile(w io.Writer, tile *domain.Tile) error {
	if _, err := w.Write(tileMagic[:]); err != nil {
		return err
	}
	dims := []uint32{
		uint32(tile.Cycles), uint32(tile.ZPlanes), uint32(tile.Channels),
		uint32(tile.Height), uint32(tile.Width),
	}
	if err := binary.Write(w, binary.LittleEndian, dims); err != nil {
		return err
	}

	buf := make([]byte, 8*len(tile.Data))
	for i, v := range tile.Data {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	_, err := w.Write(buf)
	return err
}

func decodeTile(r io.Reader) (*domain.Tile, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("read tile header: %w", err)
	}
	if magic != tileMagic {
		return nil, fmt.Errorf("bad magic %q: %w", magic[:], domain.ErrInvalidTileFormat)
	}

	var dims [5]uint32
	if err := binary.Read(r, binary.LittleEndian, &dims); err != nil {
		return nil, fmt.Errorf("read tile dimensions: %w", err)
	}
	tile := domain.NewTile(int(dims[0]), int(dims[1]), int(dims[2]), int(dims[3]), int(dims[4]))
	if tile.Len() == 0 {
		return nil, fmt.Errorf("empty tile volume %s: %w", tile.Shape(), domain.ErrInvalidTileFormat)
	}

	buf := make([]byte, 8*len(tile.Data))
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read tile data: %w", err)
	}
	for i := range tile.Data {
		tile.Data[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return tile, nil
}
