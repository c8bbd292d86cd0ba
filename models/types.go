package models

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type Metric string

const (
	MetricSiglip Metric = "siglip"
	MetricSSIM   Metric = "ssim"
	MetricBoth   Metric = "both"
)

func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case MetricSiglip, MetricSSIM, MetricBoth:
		return m, nil
	default:
		return "", fmt.Errorf("invalid metric %q (choose from siglip, ssim, both)", s)
	}
}

func (m Metric) WantsSemantic() bool {
	return m == MetricSiglip || m == MetricBoth
}

func (m Metric) WantsStructural() bool {
	return m == MetricSSIM || m == MetricBoth
}

// ScoreResult holds the scores of one comparison. Field order is the
// order keys are printed and serialized in.
type ScoreResult struct {
	Siglip               *float64 `json:"siglip,omitempty"`
	SSIM                 *float64 `json:"ssim,omitempty"`
	Combined             *float64 `json:"combined,omitempty"`
	SimilarityPercentage *float64 `json:"similarity_percentage,omitempty"`
}

type NamedScore struct {
	Name  string
	Value float64
}

// Entries returns the present scores in key order.
func (r ScoreResult) Entries() []NamedScore {
	var out []NamedScore
	add := func(name string, v *float64) {
		if v != nil {
			out = append(out, NamedScore{Name: name, Value: *v})
		}
	}
	add("siglip", r.Siglip)
	add("ssim", r.SSIM)
	add("combined", r.Combined)
	add("similarity_percentage", r.SimilarityPercentage)
	return out
}

// MarshalJSON writes the present scores in key order. Whole numbers keep a
// trailing ".0" so files read 1.0 and 100.0 rather than 1 and 100.
func (r ScoreResult) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range r.Entries() {
		if math.IsNaN(e.Value) || math.IsInf(e.Value, 0) {
			return nil, fmt.Errorf("score %s is not a finite number: %v", e.Name, e.Value)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(e.Name))
		buf.WriteByte(':')
		buf.WriteString(formatFloat(e.Value))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func formatFloat(v float64) string {
	if abs := math.Abs(v); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

type ProcessingTimings struct {
	ImageDecode time.Duration
	Resize      time.Duration
	Preprocess  time.Duration
	Inference   time.Duration
	Structural  time.Duration
	Total       time.Duration
}
