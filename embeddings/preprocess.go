package embeddings

import (
	"image"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"
)

// preprocessor turns images into normalized CHW float32 planes.
type preprocessor struct {
	size       int
	numWorkers int
}

func newPreprocessor(size int) *preprocessor {
	workers := runtime.GOMAXPROCS(0)
	if workers > size {
		workers = size
	}
	if workers < 1 {
		workers = 1
	}
	return &preprocessor{size: size, numWorkers: workers}
}

func (p *preprocessor) tensorSize() int {
	return 3 * p.size * p.size
}

func (p *preprocessor) resize(img image.Image) *image.NRGBA {
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && b.Dx() == p.size && b.Dy() == p.size && b.Min == (image.Point{}) {
		return n
	}
	return imaging.Resize(img, p.size, p.size, imaging.CatmullRom)
}

// fill writes the normalized planes of a size×size image into dst.
func (p *preprocessor) fill(dst []float32, img *image.NRGBA) {
	channelSize := p.size * p.size
	rowsPerWorker := p.size / p.numWorkers

	var wg sync.WaitGroup
	wg.Add(p.numWorkers)

	for w := 0; w < p.numWorkers; w++ {
		startRow := w * rowsPerWorker
		endRow := startRow + rowsPerWorker
		if w == p.numWorkers-1 {
			endRow = p.size
		}

		go func(start, end int) {
			defer wg.Done()
			for y := start; y < end; y++ {
				src := img.Pix[y*img.Stride:]
				offset := y * p.size
				for x := 0; x < p.size; x++ {
					i := offset + x
					for c := 0; c < 3; c++ {
						v := float32(src[x*4+c]) / 255.0
						dst[c*channelSize+i] = (v - ImageMean[c]) / ImageStd[c]
					}
				}
			}
		}(startRow, endRow)
	}

	wg.Wait()
}
