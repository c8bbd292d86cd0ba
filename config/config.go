// Package config resolves runtime settings from the environment and loads
// the destination table used by label-based scoring.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	EnvModelsDir    = "SIMILARITY_MODELS_DIR"
	EnvRuntimeLib   = "ONNXRUNTIME_LIB"
	EnvDestinations = "SIMILARITY_DESTINATIONS"
	EnvDebug        = "DEBUG"

	DefaultModelsDir = "models"
)

// Runtime holds the settings read from the environment at startup.
type Runtime struct {
	ModelsDir        string
	RuntimeLibrary   string
	DestinationsPath string
	Debug            bool
}

func FromEnv() Runtime {
	r := Runtime{
		ModelsDir:        os.Getenv(EnvModelsDir),
		RuntimeLibrary:   os.Getenv(EnvRuntimeLib),
		DestinationsPath: os.Getenv(EnvDestinations),
		Debug:            strings.EqualFold(os.Getenv(EnvDebug), "true"),
	}
	if r.ModelsDir == "" {
		r.ModelsDir = DefaultModelsDir
	}
	return r
}

// GroundTruthDir is where the built-in destination images are looked up
// when no destinations file is configured.
func (r Runtime) GroundTruthDir() string {
	return filepath.Join(r.ModelsDir, "ground_truth")
}
