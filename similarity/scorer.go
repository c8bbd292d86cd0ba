// Package similarity scores a candidate image against a ground truth with
// a semantic embedding metric, a structural metric, or a weighted blend.
package similarity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/Tutortoise/image-similarity/config"
	"github.com/Tutortoise/image-similarity/imageio"
	"github.com/Tutortoise/image-similarity/models"
	"github.com/Tutortoise/image-similarity/ssim"
	log "github.com/sirupsen/logrus"
)

// Weights of the combined score. Semantic similarity dominates.
const (
	SemanticWeight   = 0.7
	StructuralWeight = 0.3
)

const DefaultModel = "google/siglip-so400m-patch14-384"

// Embedder maps images to embedding vectors with the named model.
type Embedder interface {
	Embed(ctx context.Context, modelID string, images []*image.NRGBA, timings *models.ProcessingTimings) ([][]float32, error)
}

// StructuralScorer compares two images of equal size.
type StructuralScorer interface {
	Score(a, b *image.NRGBA) (float64, error)
}

type StructuralFunc func(a, b *image.NRGBA) (float64, error)

func (f StructuralFunc) Score(a, b *image.NRGBA) (float64, error) {
	return f(a, b)
}

// SSIM is the structural backend built on the ssim package.
var SSIM StructuralScorer = StructuralFunc(ssim.Score)

type Scorer struct {
	embedder     Embedder
	structural   StructuralScorer
	model        string
	destinations *config.Destinations
}

type Option func(*Scorer)

func WithEmbedder(e Embedder) Option {
	return func(s *Scorer) { s.embedder = e }
}

func WithStructural(st StructuralScorer) Option {
	return func(s *Scorer) { s.structural = st }
}

func WithModel(model string) Option {
	return func(s *Scorer) {
		if model != "" {
			s.model = model
		}
	}
}

func WithDestinations(d *config.Destinations) Option {
	return func(s *Scorer) { s.destinations = d }
}

// New builds a Scorer. Backends that are not supplied stay absent and
// surface as *models.MissingDependencyError when a metric needs them.
func New(opts ...Option) *Scorer {
	s := &Scorer{model: DefaultModel}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scorer) Model() string {
	return s.model
}

// Run loads gt and test, computes the metrics selected by metric and writes
// the result to outPath when it is not empty.
func (s *Scorer) Run(ctx context.Context, gt, test any, metric models.Metric, outPath string) (models.ScoreResult, error) {
	var result models.ScoreResult
	timings := &models.ProcessingTimings{}
	start := time.Now()

	if !metric.WantsSemantic() && !metric.WantsStructural() {
		return result, fmt.Errorf("invalid metric %q", metric)
	}

	decodeStart := time.Now()
	gtImg, err := imageio.Load(gt)
	if err != nil {
		return result, err
	}
	testImg, err := imageio.Load(test)
	if err != nil {
		return result, err
	}
	timings.ImageDecode = time.Since(decodeStart)

	if metric.WantsSemantic() {
		score, err := s.semanticScore(ctx, gtImg, testImg, timings)
		if err != nil {
			return result, err
		}
		result.Siglip = &score
	}

	if metric.WantsStructural() {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		structStart := time.Now()
		score, err := s.structuralScore(gtImg, testImg, timings)
		if err != nil {
			return result, err
		}
		timings.Structural = time.Since(structStart)
		result.SSIM = &score
	}

	Combine(&result)

	timings.Total = time.Since(start)
	logTimings(timings)

	if outPath != "" {
		if err := WriteJSON(outPath, result); err != nil {
			return result, err
		}
	}
	return result, nil
}

// SemanticScore returns the embedding similarity of a and b mapped to [0, 1].
func (s *Scorer) SemanticScore(ctx context.Context, a, b *image.NRGBA) (float64, error) {
	return s.semanticScore(ctx, a, b, &models.ProcessingTimings{})
}

func (s *Scorer) semanticScore(ctx context.Context, a, b *image.NRGBA, timings *models.ProcessingTimings) (float64, error) {
	if s.embedder == nil {
		return 0, &models.MissingDependencyError{
			Component: "semantic embedding backend",
			Install:   "Install the ONNX Runtime library and export the model (see embeddings.ONNXEmbedder)",
		}
	}

	vecs, err := s.embedder.Embed(ctx, s.model, []*image.NRGBA{a, b}, timings)
	if err != nil {
		return 0, fmt.Errorf("embed images: %w", err)
	}
	if len(vecs) != 2 {
		return 0, fmt.Errorf("embedder returned %d embeddings, want 2", len(vecs))
	}
	if len(vecs[0]) == 0 || len(vecs[0]) != len(vecs[1]) {
		return 0, fmt.Errorf("embedding lengths %d and %d are not comparable", len(vecs[0]), len(vecs[1]))
	}

	return UnitScore(CosineSimilarity(vecs[0], vecs[1])), nil
}

// StructuralScore reconciles the sizes of a and b and returns their
// structural similarity clamped to [0, 1].
func (s *Scorer) StructuralScore(a, b *image.NRGBA) (float64, error) {
	return s.structuralScore(a, b, &models.ProcessingTimings{})
}

func (s *Scorer) structuralScore(a, b *image.NRGBA, timings *models.ProcessingTimings) (float64, error) {
	if s.structural == nil {
		return 0, &models.MissingDependencyError{
			Component: "structural similarity backend",
			Install:   "Construct the scorer with similarity.WithStructural(similarity.SSIM)",
		}
	}

	resizeStart := time.Now()
	a, b = imageio.EnsureSameSize(a, b)
	timings.Resize += time.Since(resizeStart)

	score, err := s.structural.Score(a, b)
	if err != nil {
		return 0, fmt.Errorf("structural similarity: %w", err)
	}
	return clamp01(score), nil
}

// Combine fills the combined score and the percentage from the metrics
// present in r.
func Combine(r *models.ScoreResult) {
	var pct float64
	switch {
	case r.Siglip != nil && r.SSIM != nil:
		combined := *r.Siglip*SemanticWeight + *r.SSIM*StructuralWeight
		r.Combined = &combined
		pct = combined * 100
	case r.Siglip != nil:
		pct = *r.Siglip * 100
	case r.SSIM != nil:
		pct = *r.SSIM * 100
	default:
		return
	}
	r.SimilarityPercentage = &pct
}

// WriteJSON writes r as indented JSON, creating parent directories.
func WriteJSON(path string, r models.ScoreResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

var errNoDestinations = errors.New("no destination table configured")

// ScoreFromBytes scores an encoded candidate image against the ground truth
// registered for destination and returns the similarity percentage.
// Unknown destinations fall back to the default one with a warning.
func (s *Scorer) ScoreFromBytes(ctx context.Context, data []byte, destination string) (float64, error) {
	if s.destinations == nil {
		return 0, errNoDestinations
	}

	gtPath, known := s.destinations.Resolve(destination)
	if !known {
		log.WithField("destination", destination).
			Warnf("Unknown anchor destination %q, defaulting to %s", destination, s.destinations.Default)
	}

	result, err := s.Run(ctx, gtPath, data, models.MetricBoth, "")
	if err != nil {
		return 0, err
	}
	if result.SimilarityPercentage == nil {
		return 0, nil
	}
	return *result.SimilarityPercentage, nil
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

func logTimings(t *models.ProcessingTimings) {
	log.WithFields(log.Fields{
		"decode":     t.ImageDecode,
		"resize":     t.Resize,
		"preprocess": t.Preprocess,
		"inference":  t.Inference,
		"structural": t.Structural,
		"total":      t.Total,
	}).Debug("Processing times")
}
