// Package colors derives a cheap color profile from a report image:
// how much of it is green (vegetation proxy), blue (water/sky proxy), or
// earth-tone brown (soil proxy). The profile backs both the confidence
// boost on the classifier path and the standalone color fallback.
package colors

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// ErrUnreadable is returned when pixel data cannot be read from the image.
var ErrUnreadable = errors.New("colors: image unreadable")

// maxSamplesPerAxis bounds sampling work for large images. The stride is
// derived from image size, so a given image always samples the same pixels.
const maxSamplesPerAxis = 256

// Brown band boundaries in 8-bit RGB.
const (
	brownRedLo   = 50
	brownRedHi   = 150
	brownGreenLo = 25
	brownGreenHi = 100
	brownBlueHi  = 50
)

// Profile holds per-channel dominance ratios. Each ratio is the fraction
// of sampled pixels attributed to that band; the three sum to at most 1.
type Profile struct {
	GreenRatio float64 `json:"green_ratio"`
	BlueRatio  float64 `json:"blue_ratio"`
	BrownRatio float64 `json:"brown_ratio"`
}

// Analyze decodes the image and computes its color profile. The sampling
// grid is deterministic for a given image.
func Analyze(imageData []byte) (Profile, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return analyzeImage(img)
}

func analyzeImage(img image.Image) (Profile, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return Profile{}, fmt.Errorf("%w: empty image", ErrUnreadable)
	}

	strideX := width / maxSamplesPerAxis
	if strideX < 1 {
		strideX = 1
	}
	strideY := height / maxSamplesPerAxis
	if strideY < 1 {
		strideY = 1
	}

	var total, green, blue, brown int
	for y := bounds.Min.Y; y < bounds.Max.Y; y += strideY {
		for x := bounds.Min.X; x < bounds.Max.X; x += strideX {
			r16, g16, b16, _ := img.At(x, y).RGBA()
			r := int(r16 >> 8)
			g := int(g16 >> 8)
			b := int(b16 >> 8)
			total++

			// Brown is checked first: earth tones have red as the
			// dominant channel but should not count toward a red bucket.
			if r >= brownRedLo && r <= brownRedHi &&
				g >= brownGreenLo && g <= brownGreenHi &&
				b <= brownBlueHi {
				brown++
				continue
			}
			if g > r && g > b {
				green++
			} else if b > r && b > g {
				blue++
			}
		}
	}

	if total == 0 {
		return Profile{}, fmt.Errorf("%w: no sampled pixels", ErrUnreadable)
	}

	return Profile{
		GreenRatio: float64(green) / float64(total),
		BlueRatio:  float64(blue) / float64(total),
		BrownRatio: float64(brown) / float64(total),
	}, nil
}
