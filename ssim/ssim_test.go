package ssim

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
)

func solid(w, h int, v uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func checker(w, h, cell int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(30)
			if (x/cell+y/cell)%2 == 0 {
				v = 220
			}
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v / 2, B: 255 - v, A: 255})
		}
	}
	return img
}

func TestToLuma(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 100, G: 50, B: 200, A: 10})

	want := 0.2126*100 + 0.7152*50 + 0.0722*200
	if got := ToLuma(img).Pix[0]; math.Abs(got-want) > 1e-12 {
		t.Errorf("luma = %f, want %f", got, want)
	}
}

func TestScoreIdentical(t *testing.T) {
	img := checker(40, 30, 5)
	score, err := Score(img, img)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if math.Abs(score-1) > 1e-9 {
		t.Errorf("identical score = %f, want 1", score)
	}
}

func TestScoreConstantImages(t *testing.T) {
	a, b := solid(16, 16, 100), solid(16, 16, 110)
	score, err := Score(a, b)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}

	c1 := (K1 * DataRange) * (K1 * DataRange)
	want := (2*100*110 + c1) / (100*100 + 110*110 + c1)
	if math.Abs(score-want) > 1e-9 {
		t.Errorf("score = %.12f, want %.12f", score, want)
	}
}

func TestScoreOrdering(t *testing.T) {
	ref := checker(48, 48, 6)
	noisy := image.NewNRGBA(ref.Bounds())
	copy(noisy.Pix, ref.Pix)
	for i := 0; i < len(noisy.Pix); i += 12 {
		noisy.Pix[i] = uint8(min(int(noisy.Pix[i])+20, 255))
	}
	inverted := image.NewNRGBA(ref.Bounds())
	for i := range ref.Pix {
		inverted.Pix[i] = 255 - ref.Pix[i]
		if i%4 == 3 {
			inverted.Pix[i] = 255
		}
	}

	near, err := Score(ref, noisy)
	if err != nil {
		t.Fatal(err)
	}
	far, err := Score(ref, inverted)
	if err != nil {
		t.Fatal(err)
	}

	if near <= far {
		t.Errorf("expected similar pattern to score higher: near=%f far=%f", near, far)
	}
	for _, s := range []float64{near, far} {
		if s < 0 || s > 1 {
			t.Errorf("score %f outside [0, 1]", s)
		}
	}
}

func TestScoreErrors(t *testing.T) {
	if _, err := Score(solid(8, 8, 1), solid(9, 8, 1)); err == nil {
		t.Error("expected an error for mismatched sizes")
	}
	if _, err := Score(solid(6, 20, 1), solid(6, 20, 1)); !errors.Is(err, ErrImageTooSmall) {
		t.Errorf("error = %v, want ErrImageTooSmall", err)
	}
}

func TestIntegralSum(t *testing.T) {
	w, h := 5, 4
	src := make([]float64, w*h)
	for i := range src {
		src[i] = float64(i)
	}
	s := newIntegral(src, w, h)

	var want float64
	for y := 1; y < 4; y++ {
		for x := 2; x < 5; x++ {
			want += src[y*w+x]
		}
	}
	if got := s.sum(2, 1, 3); got != want {
		t.Errorf("sum = %f, want %f", got, want)
	}
}
