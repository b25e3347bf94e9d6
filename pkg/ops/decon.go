package ops

import (
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"codex-pipeline/internal/domain"
)

// Deconvolver sharpens each 2D plane of a tile by iterative unsharp
// masking: per iteration the plane's box-blurred copy is subtracted and the
// scaled difference added back. Iteration count and scale come from the
// task configuration.
type Deconvolver struct {
	logger  *zap.Logger
	exp     *domain.ExperimentConfig
	nIter   int
	scale   float64
	device  *int
	scratch []float64
}

func NewDeconvolver(logger *zap.Logger, exp *domain.ExperimentConfig, nIter int, scale float64, device *int) *Deconvolver {
	return &Deconvolver{logger: logger, exp: exp, nIter: nIter, scale: scale, device: device}
}

// Setup allocates the blur scratch buffer for one plane.
func (o *Deconvolver) Setup() error {
	if o.device != nil {
		o.logger.Debug("Deconvolution bound to gpu device", zap.Int("device", *o.device))
	}
	o.scratch = make([]float64, o.exp.TileWidth*o.exp.TileHeight)
	return nil
}

// Teardown releases the scratch buffer.
func (o *Deconvolver) Teardown() {
	o.scratch = nil
}

func (o *Deconvolver) Run(tile *domain.Tile) (*domain.Tile, error) {
	decon := tile.Clone()
	planeSize := decon.Height * decon.Width
	if len(o.scratch) < planeSize {
		o.scratch = make([]float64, planeSize)
	}

	nPlanes := decon.Cycles * decon.ZPlanes * decon.Channels
	for p := 0; p < nPlanes; p++ {
		plane := decon.Data[p*planeSize : (p+1)*planeSize]
		for iter := 0; iter < o.nIter; iter++ {
			o.sharpen(plane, decon.Height, decon.Width)
		}
	}
	return decon, nil
}

// sharpen applies one unsharp-mask iteration to a plane in place.
func (o *Deconvolver) sharpen(plane []float64, height, width int) {
	blurred := o.scratch[:len(plane)]
	boxBlur(blurred, plane, height, width)

	// plane += scale * (plane - blurred), clamped at zero
	floats.Scale(-1, blurred)
	floats.Add(blurred, plane)
	floats.AddScaled(plane, o.scale, blurred)
	for i, v := range plane {
		if v < 0 {
			plane[i] = 0
		}
	}
}

// boxBlur writes the 3x3 box blur of src into dst, clamping at the edges.
func boxBlur(dst, src []float64, height, width int) {
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var sum float64
			var n int
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					sy, sx := y+dy, x+dx
					if sy < 0 || sy >= height || sx < 0 || sx >= width {
						continue
					}
					sum += src[sy*width+sx]
					n++
				}
			}
			dst[y*width+x] = sum / float64(n)
		}
	}
}
