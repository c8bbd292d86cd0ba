package similarity

import "math"

// Normalize returns v scaled to unit L2 norm. A zero vector is returned as
// a zero vector.
func Normalize(v []float32) []float64 {
	out := make([]float64, len(v))
	var norm float64
	for i, x := range v {
		out[i] = float64(x)
		norm += out[i] * out[i]
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return out
	}
	for i := range out {
		out[i] /= norm
	}
	return out
}

// CosineSimilarity is the dot product of the normalized vectors, in [-1, 1].
// Vectors of different or zero length have similarity 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	na, nb := Normalize(a), Normalize(b)
	var dot float64
	for i := range na {
		dot += na[i] * nb[i]
	}
	return math.Max(-1, math.Min(1, dot))
}

// UnitScore maps a cosine similarity from [-1, 1] onto [0, 1].
func UnitScore(cos float64) float64 {
	return (cos + 1) / 2
}
