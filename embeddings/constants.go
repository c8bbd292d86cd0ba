package embeddings

const (
	DefaultInputSize = 224
	ModelFileName    = "vision_model.onnx"
	DefaultInputName = "pixel_values"
)

// SigLIP image processors normalize every channel with mean 0.5 and std 0.5.
var (
	ImageMean = [3]float32{0.5, 0.5, 0.5}
	ImageStd  = [3]float32{0.5, 0.5, 0.5}
)

var preferredOutputs = []string{"image_embeds", "pooler_output"}
