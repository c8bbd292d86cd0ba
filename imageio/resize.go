package imageio

import (
	"image"

	"github.com/disintegration/imaging"
)

// EnsureSameSize resizes b to a's dimensions with a bicubic filter.
// Both images are returned untouched when their sizes already match.
func EnsureSameSize(a, b *image.NRGBA) (*image.NRGBA, *image.NRGBA) {
	sa, sb := a.Bounds().Size(), b.Bounds().Size()
	if sa == sb {
		return a, b
	}
	return a, imaging.Resize(b, sa.X, sa.Y, imaging.CatmullRom)
}
