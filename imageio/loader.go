// Package imageio turns the supported image inputs into a canonical raster
// and reconciles image sizes before pixel-level comparison.
package imageio

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

type DecodeError struct {
	Source string
	Cause  error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("decode image from %s: %v", e.Source, e.Cause)
	}
	return fmt.Sprintf("decode image from %s", e.Source)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// Load decodes src into an NRGBA raster. src may be a file path, a raw
// byte buffer or a reader positioned at the start of the encoded image.
func Load(src any) (*image.NRGBA, error) {
	var (
		img image.Image
		err error
	)

	switch v := src.(type) {
	case string:
		img, err = imaging.Open(v)
		if err != nil {
			return nil, &DecodeError{Source: v, Cause: err}
		}
	case []byte:
		img, err = imaging.Decode(bytes.NewReader(v))
		if err != nil {
			return nil, &DecodeError{Source: "bytes", Cause: err}
		}
	case io.Reader:
		img, err = imaging.Decode(v)
		if err != nil {
			return nil, &DecodeError{Source: "stream", Cause: err}
		}
	default:
		return nil, &DecodeError{Source: fmt.Sprintf("%T", src), Cause: fmt.Errorf("invalid image input type")}
	}

	return toNRGBA(img), nil
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Bounds().Min == (image.Point{}) {
		return n
	}
	return imaging.Clone(img)
}
