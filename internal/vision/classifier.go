package vision

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/andresmejia3/roverlink/internal/detect"
)

// ONNXClassifier runs a digit model exported to ONNX through OpenCV's dnn module.
type ONNXClassifier struct {
	mu  sync.Mutex
	net gocv.Net
}

func LoadONNX(path string) (*ONNXClassifier, error) {
	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load onnx model %s", path)
	}
	return &ONNXClassifier{net: net}, nil
}

// Classify returns the index of the largest output score.
func (c *ONNXClassifier) Classify(tensor []float32) (int, error) {
	if len(tensor) != detect.TensorSide*detect.TensorSide {
		return 0, fmt.Errorf("tensor has %d values, want %d", len(tensor), detect.TensorSide*detect.TensorSide)
	}

	img := gocv.NewMatWithSize(detect.TensorSide, detect.TensorSide, gocv.MatTypeCV32F)
	defer img.Close()
	for i, v := range tensor {
		img.SetFloatAt(i/detect.TensorSide, i%detect.TensorSide, v)
	}

	blob := gocv.BlobFromImage(img, 1.0, image.Pt(detect.TensorSide, detect.TensorSide), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.net.SetInput(blob, "")
	out := c.net.Forward("")
	defer out.Close()
	if out.Empty() {
		return 0, fmt.Errorf("model produced no output")
	}

	scores := out.Reshape(1, 1)
	defer scores.Close()
	_, _, _, maxLoc := gocv.MinMaxLoc(scores)
	return maxLoc.X, nil
}

func (c *ONNXClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.net.Close()
}
