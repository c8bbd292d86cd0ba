package ssim

// integral is a summed-area table with a zero first row and column.
type integral struct {
	stride int
	data   []float64
}

func newIntegral(src []float64, w, h int) integral {
	stride := w + 1
	data := make([]float64, stride*(h+1))
	for y := 0; y < h; y++ {
		var row float64
		for x := 0; x < w; x++ {
			row += src[y*w+x]
			data[(y+1)*stride+x+1] = data[y*stride+x+1] + row
		}
	}
	return integral{stride: stride, data: data}
}

// sum returns the sum of the size×size block whose top-left corner is (x, y).
func (s integral) sum(x, y, size int) float64 {
	x1, y1 := x+size, y+size
	return s.data[y1*s.stride+x1] - s.data[y*s.stride+x1] - s.data[y1*s.stride+x] + s.data[y*s.stride+x]
}
