// Package stub is a deterministic, no-model classifier intended for CI and
// local end-to-end tests. It derives ranked labels from a hash of the image
// bytes so the pipeline exercises the full classifier scoring path without
// an ONNX runtime.
package stub

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"report-scoring-pipeline/vision"
)

// label pool the stub draws from; mixes environmental and unrelated
// classes so different images land on different scoring paths.
var labelPool = []string{
	"tree", "lakeside", "elephant", "oil_spill", "pollution",
	"desk", "keyboard", "coffee_mug", "flood", "mountain",
}

// Client is a deterministic vision.Classifier.
type Client struct{}

func NewClient() *Client { return &Client{} }

// SourceName implements vision.Classifier.
func (c *Client) SourceName() string { return "Stub" }

// Classify implements vision.Classifier. The image must still decode so
// the stub exercises the same unavailable-image behavior as the real
// backend.
func (c *Client) Classify(imageData []byte) ([]vision.Label, error) {
	if _, _, err := image.Decode(bytes.NewReader(imageData)); err != nil {
		return nil, fmt.Errorf("%w: undecodable image: %v", vision.ErrUnavailable, err)
	}

	sum := sha256.Sum256(imageData)

	labels := make([]vision.Label, 0, 3)
	for rank := 0; rank < 3; rank++ {
		idx := int(sum[rank]) % len(labelPool)
		// Scores decay with rank and stay in (0,1).
		score := 0.9 - 0.25*float64(rank) - float64(binary.BigEndian.Uint16(sum[8+2*rank:]))/65535.0*0.1
		labels = append(labels, vision.Label{
			Name:  labelPool[idx],
			Score: score,
			Rank:  rank,
		})
	}
	return labels, nil
}
