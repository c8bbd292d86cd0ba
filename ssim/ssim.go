// Package ssim computes the structural similarity index between two
// equally sized images on their luma channel.
package ssim

import (
	"errors"
	"fmt"
	"image"
)

const (
	// WindowSize is the side of the square uniform window.
	WindowSize = 7
	DataRange  = 255.0
	K1         = 0.01
	K2         = 0.03
)

var ErrImageTooSmall = errors.New("image is smaller than the ssim window")

// Luma weights, ITU-R BT.709.
const (
	lumaR = 0.2126
	lumaG = 0.7152
	lumaB = 0.0722
)

// Luma is a single-channel float raster stored row-major.
type Luma struct {
	Width, Height int
	Pix           []float64
}

func ToLuma(img *image.NRGBA) *Luma {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := &Luma{Width: w, Height: h, Pix: make([]float64, w*h)}
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			p := row[x*4 : x*4+3]
			out.Pix[y*w+x] = lumaR*float64(p[0]) + lumaG*float64(p[1]) + lumaB*float64(p[2])
		}
	}
	return out
}

// Score returns the mean structural similarity of a and b clamped to [0, 1].
func Score(a, b *image.NRGBA) (float64, error) {
	if a.Bounds().Size() != b.Bounds().Size() {
		return 0, fmt.Errorf("image sizes differ: %v vs %v", a.Bounds().Size(), b.Bounds().Size())
	}
	mssim, err := Index(ToLuma(a), ToLuma(b))
	if err != nil {
		return 0, err
	}
	return clamp01(mssim), nil
}

// Index computes the unclamped mean SSIM between two luma rasters using a
// uniform window, sample covariance and the border of half a window
// excluded from the mean.
func Index(x, y *Luma) (float64, error) {
	if x.Width != y.Width || x.Height != y.Height {
		return 0, fmt.Errorf("luma sizes differ: %dx%d vs %dx%d", x.Width, x.Height, y.Width, y.Height)
	}
	if x.Width < WindowSize || x.Height < WindowSize {
		return 0, fmt.Errorf("%w: %dx%d < %d", ErrImageTooSmall, x.Width, x.Height, WindowSize)
	}

	w, h := x.Width, x.Height
	xx := make([]float64, w*h)
	yy := make([]float64, w*h)
	xy := make([]float64, w*h)
	for i := range x.Pix {
		xx[i] = x.Pix[i] * x.Pix[i]
		yy[i] = y.Pix[i] * y.Pix[i]
		xy[i] = x.Pix[i] * y.Pix[i]
	}

	sx := newIntegral(x.Pix, w, h)
	sy := newIntegral(y.Pix, w, h)
	sxx := newIntegral(xx, w, h)
	syy := newIntegral(yy, w, h)
	sxy := newIntegral(xy, w, h)

	const np = WindowSize * WindowSize
	covNorm := float64(np) / float64(np-1)
	c1 := (K1 * DataRange) * (K1 * DataRange)
	c2 := (K2 * DataRange) * (K2 * DataRange)

	var total float64
	var count int
	for y0 := 0; y0+WindowSize <= h; y0++ {
		for x0 := 0; x0+WindowSize <= w; x0++ {
			ux := sx.sum(x0, y0, WindowSize) / np
			uy := sy.sum(x0, y0, WindowSize) / np
			uxx := sxx.sum(x0, y0, WindowSize) / np
			uyy := syy.sum(x0, y0, WindowSize) / np
			uxy := sxy.sum(x0, y0, WindowSize) / np

			vx := covNorm * (uxx - ux*ux)
			vy := covNorm * (uyy - uy*uy)
			vxy := covNorm * (uxy - ux*uy)

			a1 := 2*ux*uy + c1
			a2 := 2*vxy + c2
			b1 := ux*ux + uy*uy + c1
			b2 := vx + vy + c2

			total += (a1 * a2) / (b1 * b2)
			count++
		}
	}

	return total / float64(count), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
