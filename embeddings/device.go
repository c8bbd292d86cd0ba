package embeddings

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/sys/cpu"
)

type DeviceKind string

const (
	DeviceAuto DeviceKind = "auto"
	DeviceCPU  DeviceKind = "cpu"
	DeviceCUDA DeviceKind = "cuda"
)

type Device struct {
	Kind DeviceKind
	ID   int
}

func (d Device) String() string {
	if d.Kind == DeviceCUDA {
		return fmt.Sprintf("cuda:%d", d.ID)
	}
	return string(d.Kind)
}

// ParseDevice accepts "", "auto", "cpu", "cuda" and "cuda:N".
func ParseDevice(s string) (Device, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", string(DeviceAuto):
		return Device{Kind: DeviceAuto}, nil
	case string(DeviceCPU):
		return Device{Kind: DeviceCPU}, nil
	case string(DeviceCUDA):
		return Device{Kind: DeviceCUDA}, nil
	}

	if idx, ok := strings.CutPrefix(s, "cuda:"); ok {
		id, err := strconv.Atoi(idx)
		if err != nil || id < 0 {
			return Device{}, fmt.Errorf("invalid cuda device index %q", idx)
		}
		return Device{Kind: DeviceCUDA, ID: id}, nil
	}

	return Device{}, fmt.Errorf("unsupported device %q (use cpu, cuda or cuda:N)", s)
}

// configureDevice registers the execution provider for d on options and
// returns the device that will actually run the model. Auto prefers CUDA
// and falls back to the CPU when the runtime has no usable CUDA provider.
func configureDevice(options *ort.SessionOptions, d Device) (Device, error) {
	if d.Kind == DeviceCPU {
		return d, nil
	}

	err := appendCUDA(options, d.ID)
	if err == nil {
		return Device{Kind: DeviceCUDA, ID: d.ID}, nil
	}
	if d.Kind == DeviceCUDA {
		return Device{}, fmt.Errorf("enable %s: %w", d, err)
	}

	log.WithError(err).Debug("CUDA execution provider unavailable, using cpu")
	return Device{Kind: DeviceCPU}, nil
}

func appendCUDA(options *ort.SessionOptions, id int) error {
	cudaOptions, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return err
	}
	defer cudaOptions.Destroy()

	if err := cudaOptions.Update(map[string]string{"device_id": strconv.Itoa(id)}); err != nil {
		return err
	}
	return options.AppendExecutionProviderCUDA(cudaOptions)
}

// cpuFeatures lists the vector extensions the CPU provider can use.
func cpuFeatures() []string {
	var features []string
	switch runtime.GOARCH {
	case "amd64", "386":
		if cpu.X86.HasAVX512F {
			features = append(features, "avx512")
		}
		if cpu.X86.HasAVX2 {
			features = append(features, "avx2")
		}
		if cpu.X86.HasSSE41 {
			features = append(features, "sse4.1")
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			features = append(features, "asimd")
		}
		if cpu.ARM64.HasSVE {
			features = append(features, "sve")
		}
	}
	return features
}
