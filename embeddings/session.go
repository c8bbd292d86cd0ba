package embeddings

import (
	"fmt"
	"regexp"
	"runtime"
	"strconv"

	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

type ModelSession struct {
	Session *ort.AdvancedSession
	Input   *ort.Tensor[float32]
	Output  *ort.Tensor[float32]
	Device  Device
}

func (m *ModelSession) Destroy() {
	if m.Session != nil {
		m.Session.Destroy()
	}
	if m.Input != nil {
		m.Input.Destroy()
	}
	if m.Output != nil {
		m.Output.Destroy()
	}
}

// modelLayout describes the tensors of an exported vision tower.
type modelLayout struct {
	inputName  string
	outputName string
	inputSize  int
	// fixedBatch is zero when the batch dimension is dynamic.
	fixedBatch int
	dim        int
}

var sizeSuffix = regexp.MustCompile(`-(\d{2,4})$`)

func inspectModel(modelPath, modelID string) (modelLayout, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return modelLayout{}, fmt.Errorf("read model info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return modelLayout{}, fmt.Errorf("model %s has no inputs or outputs", modelPath)
	}

	in := inputs[0]
	for _, info := range inputs {
		if info.Name == DefaultInputName {
			in = info
			break
		}
	}

	out := outputs[0]
pick:
	for _, name := range preferredOutputs {
		for _, info := range outputs {
			if info.Name == name {
				out = info
				break pick
			}
		}
	}

	if len(in.Dimensions) != 4 {
		return modelLayout{}, fmt.Errorf("input %q: want 4 dimensions, got %v", in.Name, in.Dimensions)
	}
	if len(out.Dimensions) != 2 || out.Dimensions[1] <= 0 {
		return modelLayout{}, fmt.Errorf("output %q: want a [batch, dim] embedding, got %v", out.Name, out.Dimensions)
	}

	layout := modelLayout{
		inputName:  in.Name,
		outputName: out.Name,
		inputSize:  int(in.Dimensions[3]),
		dim:        int(out.Dimensions[1]),
	}
	if in.Dimensions[0] > 0 {
		layout.fixedBatch = int(in.Dimensions[0])
	}
	if layout.inputSize <= 0 {
		layout.inputSize = inputSizeFromModelID(modelID)
	}
	return layout, nil
}

// inputSizeFromModelID reads the resolution suffix of identifiers such as
// "google/siglip-base-patch16-224".
func inputSizeFromModelID(modelID string) int {
	if m := sizeSuffix.FindStringSubmatch(modelID); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return DefaultInputSize
}

// newSession is swapped out in tests.
var newSession = initSession

// openSession creates a session on device. In auto mode a session that
// fails after the CUDA provider was accepted is retried on the CPU.
func openSession(modelPath string, layout modelLayout, batch int, device Device, threads int) (*ModelSession, error) {
	session, used, err := newSession(modelPath, layout, batch, device, threads)
	if err == nil {
		return session, nil
	}
	if device.Kind != DeviceAuto || used.Kind != DeviceCUDA {
		return nil, err
	}

	log.WithError(err).Debug("CUDA session failed, retrying on cpu")
	session, _, err = newSession(modelPath, layout, batch, Device{Kind: DeviceCPU}, threads)
	return session, err
}

// initSession returns the device it configured, also when it fails.
func initSession(modelPath string, layout modelLayout, batch int, device Device, threads int) (*ModelSession, Device, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, device, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	options.SetIntraOpNumThreads(threads)
	options.SetInterOpNumThreads(threads)

	used, err := configureDevice(options, device)
	if err != nil {
		return nil, device, err
	}

	size := int64(layout.inputSize)
	inputShape := ort.NewShape(int64(batch), 3, size, size)
	outputShape := ort.NewShape(int64(batch), int64(layout.dim))

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, used, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, used, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{layout.inputName},
		[]string{layout.outputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, used, fmt.Errorf("error creating session: %w", err)
	}

	return &ModelSession{
		Session: session,
		Input:   inputTensor,
		Output:  outputTensor,
		Device:  used,
	}, used, nil
}
