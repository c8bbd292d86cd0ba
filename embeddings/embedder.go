// Package embeddings runs exported SigLIP-style vision towers through ONNX
// Runtime to turn images into embedding vectors.
package embeddings

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/Tutortoise/image-similarity/models"
	log "github.com/sirupsen/logrus"
)

// ONNXEmbedder loads the requested model on every call and releases it
// before returning.
type ONNXEmbedder struct {
	// ModelsDir holds one directory per model identifier.
	ModelsDir string
	// LibraryPath overrides the ONNX Runtime library lookup.
	LibraryPath string
	// Device is "", "cpu", "cuda" or "cuda:N". Empty selects automatically.
	Device string
	// Threads bounds intra- and inter-op parallelism. Zero uses every CPU.
	Threads int
}

func (e *ONNXEmbedder) Embed(ctx context.Context, modelID string, images []*image.NRGBA, timings *models.ProcessingTimings) ([][]float32, error) {
	if len(images) == 0 {
		return nil, nil
	}
	if timings == nil {
		timings = &models.ProcessingTimings{}
	}

	device, err := ParseDevice(e.Device)
	if err != nil {
		return nil, err
	}

	libPath, err := LocateLibrary(e.LibraryPath, e.ModelsDir, ".")
	if err != nil {
		return nil, err
	}
	if err := ensureEnvironment(libPath); err != nil {
		return nil, err
	}

	modelPath, err := ResolveModelPath(e.ModelsDir, modelID)
	if err != nil {
		return nil, err
	}

	layout, err := inspectModel(modelPath, modelID)
	if err != nil {
		return nil, err
	}

	batch := len(images)
	if layout.fixedBatch > 0 {
		if batch%layout.fixedBatch != 0 {
			return nil, fmt.Errorf("model batch size %d does not divide %d images", layout.fixedBatch, batch)
		}
		batch = layout.fixedBatch
	}

	session, err := openSession(modelPath, layout, batch, device, e.Threads)
	if err != nil {
		return nil, err
	}
	defer session.Destroy()

	log.WithFields(log.Fields{
		"model":  modelID,
		"device": session.Device.String(),
		"cpu":    cpuFeatures(),
		"input":  layout.inputSize,
		"dim":    layout.dim,
	}).Debug("Loaded embedding model")

	prep := newPreprocessor(layout.inputSize)
	per := prep.tensorSize()
	embeddings := make([][]float32, 0, len(images))

	for start := 0; start < len(images); start += batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		input := session.Input.GetData()
		for i, img := range images[start : start+batch] {
			resizeStart := time.Now()
			resized := prep.resize(img)
			timings.Resize += time.Since(resizeStart)

			prepStart := time.Now()
			prep.fill(input[i*per:(i+1)*per], resized)
			timings.Preprocess += time.Since(prepStart)
		}

		inferStart := time.Now()
		if err := session.Session.Run(); err != nil {
			return nil, fmt.Errorf("model inference: %w", err)
		}
		timings.Inference += time.Since(inferStart)

		output := session.Output.GetData()
		for i := 0; i < batch; i++ {
			vec := make([]float32, layout.dim)
			copy(vec, output[i*layout.dim:(i+1)*layout.dim])
			embeddings = append(embeddings, vec)
		}
	}

	return embeddings, nil
}
