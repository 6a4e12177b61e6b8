// Package onnx runs a pretrained general-purpose image classifier through
// onnxruntime. The model file and its metadata (class list, input shape)
// are supplied at startup; if either is missing the classifier reports
// itself unavailable rather than failing report scoring.
package onnx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sort"
	"sync"

	"github.com/nfnt/resize"
	ort "github.com/yalue/onnxruntime_go"
	_ "golang.org/x/image/webp"

	"report-scoring-pipeline/vision"
)

// topLabels is how many ranked predictions the classifier returns.
const topLabels = 5

// Metadata describes the model's classes and expected input geometry.
type Metadata struct {
	Classes     []string `json:"classes"`
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	ImageSize   int      `json:"image_size"`
}

// Classifier is an ONNX-backed vision.Classifier.
type Classifier struct {
	// mu serializes inference since the session reuses its input and
	// output tensors.
	mu           sync.Mutex
	session      *ort.AdvancedSession
	metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// NewClassifier loads the model and metadata from disk and prepares an
// inference session.
func NewClassifier(modelPath, metadataPath string) (*Classifier, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	metaFile, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse model metadata: %w", err)
	}
	if len(metadata.Classes) == 0 {
		return nil, fmt.Errorf("model metadata has no classes")
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Classifier{
		session:      session,
		metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// SourceName implements vision.Classifier.
func (c *Classifier) SourceName() string { return "ONNX" }

// Classify implements vision.Classifier. An undecodable image maps to
// vision.ErrUnavailable so the engine can fall through to the next
// strategy.
func (c *Classifier) Classify(imageData []byte) ([]vision.Label, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable image: %v", vision.ErrUnavailable, err)
	}

	inputData := c.preprocess(img)

	c.mu.Lock()
	defer c.mu.Unlock()

	copy(c.inputTensor.GetData(), inputData)

	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: inference failed: %v", vision.ErrUnavailable, err)
	}

	outputData := c.outputTensor.GetData()

	type scored struct {
		idx   int
		score float32
	}
	ranked := make([]scored, 0, len(c.metadata.Classes))
	for i, val := range outputData {
		if i < len(c.metadata.Classes) {
			ranked = append(ranked, scored{idx: i, score: val})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	n := topLabels
	if n > len(ranked) {
		n = len(ranked)
	}

	// The model's output layer is softmax, so values are already
	// probabilities; clamp anyway in case a model without one is loaded.
	labels := make([]vision.Label, 0, n)
	for rank := 0; rank < n; rank++ {
		score := float64(ranked[rank].score)
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		labels = append(labels, vision.Label{
			Name:  c.metadata.Classes[ranked[rank].idx],
			Score: score,
			Rank:  rank,
		})
	}
	return labels, nil
}

// preprocess resizes the image to the model's input size and lays pixels
// out as CHW float32 in [0,1].
func (c *Classifier) preprocess(img image.Image) []float32 {
	targetSize := uint(c.metadata.ImageSize)
	resized := resize.Resize(targetSize, targetSize, img, resize.Lanczos3)

	bounds := resized.Bounds()
	width, height := bounds.Max.X, bounds.Max.Y

	channels := 3
	inputData := make([]float32, channels*width*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()

			pixelIndex := y*width + x
			inputData[pixelIndex] = float32(r) / 65535.0
			inputData[width*height+pixelIndex] = float32(g) / 65535.0
			inputData[2*width*height+pixelIndex] = float32(b) / 65535.0
		}
	}

	return inputData
}

// Close releases the session and its tensors.
func (c *Classifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inputTensor != nil {
		c.inputTensor.Destroy()
	}
	if c.outputTensor != nil {
		c.outputTensor.Destroy()
	}
	if c.session != nil {
		c.session.Destroy()
	}
	ort.DestroyEnvironment()
}
