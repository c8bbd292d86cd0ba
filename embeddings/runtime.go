package embeddings

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/Tutortoise/image-similarity/models"
	ort "github.com/yalue/onnxruntime_go"
)

const installRuntime = "Install the ONNX Runtime shared library (https://github.com/microsoft/onnxruntime/releases) " +
	"and point ONNXRUNTIME_LIB at it"

var envMu sync.Mutex

// LibraryName returns the platform file name of the ONNX Runtime library.
func LibraryName() string {
	switch runtime.GOOS {
	case "darwin":
		return "libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}

// LocateLibrary returns explicit when it exists, otherwise the first
// directory in searchDirs holding the runtime library.
func LocateLibrary(explicit string, searchDirs ...string) (string, error) {
	if explicit != "" {
		if fileExists(explicit) {
			return explicit, nil
		}
		return "", &models.MissingDependencyError{
			Component: "ONNX Runtime",
			Install:   installRuntime,
			Cause:     fmt.Errorf("library not found: %s", explicit),
		}
	}

	for _, dir := range searchDirs {
		candidate := filepath.Join(dir, LibraryName())
		if fileExists(candidate) {
			return candidate, nil
		}
	}

	return "", &models.MissingDependencyError{
		Component: "ONNX Runtime",
		Install:   installRuntime,
		Cause:     fmt.Errorf("%s not found in %s", LibraryName(), strings.Join(searchDirs, ", ")),
	}
}

func ensureEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return &models.MissingDependencyError{
			Component: "ONNX Runtime",
			Install:   installRuntime,
			Cause:     err,
		}
	}
	return nil
}

// DestroyEnvironment releases the runtime if it was initialized.
func DestroyEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// ResolveModelPath maps a model identifier to its exported vision tower.
// An identifier that already names an .onnx file is used as is.
func ResolveModelPath(modelsDir, modelID string) (string, error) {
	if strings.EqualFold(filepath.Ext(modelID), ".onnx") && fileExists(modelID) {
		return modelID, nil
	}

	path := filepath.Join(modelsDir, filepath.FromSlash(modelID), ModelFileName)
	if !fileExists(path) {
		return "", &models.MissingDependencyError{
			Component: fmt.Sprintf("model %s", modelID),
			Install: fmt.Sprintf("Export its vision tower with `optimum-cli export onnx --model %s` and copy %s to %s",
				modelID, ModelFileName, filepath.Dir(path)),
			Cause: fmt.Errorf("model file not found: %s", path),
		}
	}
	return path, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
