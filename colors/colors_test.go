package colors

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func solidPNG(t *testing.T, c color.RGBA, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name      string
		color     color.RGBA
		wantGreen float64
		wantBlue  float64
		wantBrown float64
	}{
		{
			name:      "green dominant",
			color:     color.RGBA{R: 30, G: 200, B: 30, A: 255},
			wantGreen: 1,
		},
		{
			name:     "blue dominant",
			color:    color.RGBA{R: 30, G: 30, B: 200, A: 255},
			wantBlue: 1,
		},
		{
			name:      "earth tone brown",
			color:     color.RGBA{R: 100, G: 60, B: 30, A: 255},
			wantBrown: 1,
		},
		{
			name:  "neutral gray",
			color: color.RGBA{R: 128, G: 128, B: 128, A: 255},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile, err := Analyze(solidPNG(t, tt.color, 64, 64))
			if err != nil {
				t.Fatalf("Analyze() error = %v", err)
			}
			if profile.GreenRatio != tt.wantGreen {
				t.Errorf("GreenRatio = %v, want %v", profile.GreenRatio, tt.wantGreen)
			}
			if profile.BlueRatio != tt.wantBlue {
				t.Errorf("BlueRatio = %v, want %v", profile.BlueRatio, tt.wantBlue)
			}
			if profile.BrownRatio != tt.wantBrown {
				t.Errorf("BrownRatio = %v, want %v", profile.BrownRatio, tt.wantBrown)
			}
		})
	}
}

func TestAnalyzeBrownBeforeDominantChannel(t *testing.T) {
	// Red is the dominant channel here, but the pixel sits inside the brown
	// band and must count as brown, not fall through uncounted.
	profile, err := Analyze(solidPNG(t, color.RGBA{R: 140, G: 90, B: 40, A: 255}, 32, 32))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if profile.BrownRatio != 1 {
		t.Errorf("BrownRatio = %v, want 1", profile.BrownRatio)
	}
}

func TestAnalyzeMixedImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if x < 32 {
				img.Set(x, y, color.RGBA{R: 30, G: 200, B: 30, A: 255})
			} else {
				img.Set(x, y, color.RGBA{R: 30, G: 30, B: 200, A: 255})
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}

	profile, err := Analyze(buf.Bytes())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if profile.GreenRatio < 0.45 || profile.GreenRatio > 0.55 {
		t.Errorf("GreenRatio = %v, want about 0.5", profile.GreenRatio)
	}
	if profile.BlueRatio < 0.45 || profile.BlueRatio > 0.55 {
		t.Errorf("BlueRatio = %v, want about 0.5", profile.BlueRatio)
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	data := solidPNG(t, color.RGBA{R: 30, G: 200, B: 30, A: 255}, 700, 500)

	first, err := Analyze(data)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Analyze(data)
		if err != nil {
			t.Fatalf("Analyze() error = %v", err)
		}
		if again != first {
			t.Fatalf("profile changed between runs: %+v vs %+v", again, first)
		}
	}
}

func TestAnalyzeUnreadable(t *testing.T) {
	_, err := Analyze([]byte("not an image"))
	if !errors.Is(err, ErrUnreadable) {
		t.Errorf("Analyze() error = %v, want ErrUnreadable", err)
	}
}
