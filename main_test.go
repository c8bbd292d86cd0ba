package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Tutortoise/image-similarity/config"
	"github.com/Tutortoise/image-similarity/models"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// constantEmbedder gives every image the same embedding.
type constantEmbedder struct {
	calls int
}

func (e *constantEmbedder) Embed(_ context.Context, _ string, images []*image.NRGBA, _ *models.ProcessingTimings) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(images))
	for i := range out {
		out[i] = []float32{0.2, 0.5, 0.1}
	}
	return out, nil
}

func writeTestPNG(t *testing.T, path string, shade uint8) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x*16) + shade, G: uint8(y * 16), B: shade, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	orig := os.Stdout
	os.Stdout = w
	runErr := fn()
	os.Stdout = orig
	w.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(out), runErr
}

func TestParseFlags(t *testing.T) {
	env := config.Runtime{ModelsDir: "models"}

	opts, err := parseFlags([]string{"--gt", "a.png", "--test", "b.png", "--metric", "both", "--output_json", "out/r.json"}, env)
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if opts.gt != "a.png" || opts.test != "b.png" || opts.metric != "both" || opts.outputJSON != "out/r.json" {
		t.Errorf("unexpected options: %+v", opts)
	}
	if opts.model != "google/siglip-so400m-patch14-384" {
		t.Errorf("default model = %q", opts.model)
	}
	if opts.modelsDir != "models" {
		t.Errorf("models dir = %q", opts.modelsDir)
	}

	if _, err := parseFlags([]string{"--test", "b.png"}, env); err == nil || !strings.Contains(err.Error(), "--gt") {
		t.Errorf("missing --gt: error = %v", err)
	}
	if _, err := parseFlags([]string{"--test", "b.png", "--destination", "Kitchen"}, env); err != nil {
		t.Errorf("--destination should replace --gt: %v", err)
	}
	if _, err := parseFlags([]string{"--gt", "a.png"}, env); err == nil {
		t.Error("missing --test should fail")
	}
}

func TestParseFlagsDestinationConflicts(t *testing.T) {
	env := config.Runtime{ModelsDir: "models"}
	base := []string{"--test", "b.png", "--destination", "Kitchen"}

	tests := []struct {
		name  string
		extra []string
		flag  string
	}{
		{"gt", []string{"--gt", "a.png"}, "--gt"},
		{"metric", []string{"--metric", "ssim"}, "--metric"},
		{"default metric spelled out", []string{"--metric", "siglip"}, "--metric"},
		{"output json", []string{"--output_json", "o.json"}, "--output_json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFlags(append(append([]string{}, base...), tt.extra...), env)
			if err == nil || !strings.Contains(err.Error(), tt.flag) {
				t.Errorf("error = %v, want a conflict naming %s", err, tt.flag)
			}
		})
	}

	if _, err := parseFlags(append(base, "--model", "google/siglip-base-patch16-224", "--device", "cpu"), env); err != nil {
		t.Errorf("model and device apply to destination scoring: %v", err)
	}
}

func TestRunSSIM(t *testing.T) {
	dir := t.TempDir()
	gt := filepath.Join(dir, "gt.png")
	writeTestPNG(t, gt, 0)
	out := filepath.Join(dir, "results", "scores.json")

	opts := &options{gt: gt, test: gt, metric: "ssim", outputJSON: out, modelsDir: dir}
	stdout, err := captureStdout(t, func() error {
		return run(context.Background(), opts, config.Runtime{}, nil)
	})
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	want := "SSIM similarity: 1.0000\nSIMILARITY_PERCENTAGE similarity: 100.0000\nSaved JSON to: " + out + "\n"
	if stdout != want {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("json not written: %v", err)
	}
}

func TestRunInvalidMetric(t *testing.T) {
	opts := &options{gt: "a.png", test: "b.png", metric: "mse"}
	if err := run(context.Background(), opts, config.Runtime{}, nil); err == nil {
		t.Error("expected an error for an invalid metric")
	}
}

func TestLoadDestinations(t *testing.T) {
	env := config.Runtime{}
	dest, err := loadDestinations(&options{modelsDir: "m"}, env)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := dest.Paths["Window"], filepath.Join("m", "ground_truth", "window.png"); got != want {
		t.Errorf("Window = %q, want %q", got, want)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "d.json")
	if err := os.WriteFile(path, []byte(`{"destinations": {"Kitchen": "k.png"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	dest, err = loadDestinations(&options{destinationsPath: path}, env)
	if err != nil {
		t.Fatal(err)
	}
	if got := dest.Paths["Kitchen"]; got != filepath.Join(dir, "k.png") {
		t.Errorf("Kitchen = %q", got)
	}
}

func TestRunDestination(t *testing.T) {
	dir := t.TempDir()
	kitchen := filepath.Join(dir, "ground_truth", "kitchen.png")
	window := filepath.Join(dir, "ground_truth", "window.png")
	writeTestPNG(t, kitchen, 0)
	writeTestPNG(t, window, 90)
	writeTestPNG(t, filepath.Join(dir, "ground_truth", "meetingRoom.png"), 180)

	tests := []struct {
		label    string
		want     string
		wantWarn bool
	}{
		{"Kitchen", "SIMILARITY_PERCENTAGE similarity: 100.0000\n", false},
		{"Garage", "SIMILARITY_PERCENTAGE similarity: 100.0000\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			hook := test.NewGlobal()
			defer hook.Reset()

			embedder := &constantEmbedder{}
			opts := &options{test: kitchen, destination: tt.label, metric: "siglip", modelsDir: dir}
			stdout, err := captureStdout(t, func() error {
				return run(context.Background(), opts, config.Runtime{}, embedder)
			})
			if err != nil {
				t.Fatalf("run() error = %v", err)
			}
			if stdout != tt.want {
				t.Errorf("stdout = %q, want %q", stdout, tt.want)
			}
			if embedder.calls != 1 {
				t.Errorf("embedder calls = %d, want 1", embedder.calls)
			}

			var warned bool
			for _, entry := range hook.AllEntries() {
				if entry.Level == log.WarnLevel && strings.Contains(entry.Message, tt.label) {
					warned = true
				}
			}
			if warned != tt.wantWarn {
				t.Errorf("warned = %v, want %v", warned, tt.wantWarn)
			}
		})
	}

	t.Run("different ground truth", func(t *testing.T) {
		opts := &options{test: kitchen, destination: "Window", metric: "siglip", modelsDir: dir}
		stdout, err := captureStdout(t, func() error {
			return run(context.Background(), opts, config.Runtime{}, &constantEmbedder{})
		})
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
		if !strings.HasPrefix(stdout, "SIMILARITY_PERCENTAGE similarity: ") || stdout == tests[0].want {
			t.Errorf("stdout = %q, want a score below 100", stdout)
		}
	})

	t.Run("missing test image", func(t *testing.T) {
		opts := &options{test: filepath.Join(dir, "absent.png"), destination: "Kitchen", metric: "siglip", modelsDir: dir}
		if err := run(context.Background(), opts, config.Runtime{}, &constantEmbedder{}); err == nil {
			t.Error("expected an error for a missing test image")
		}
	})
}
