package dedup

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// blockyPNG renders an 8x8 grid of random gray blocks. Blocks are large
// enough to survive the hash's downsampling, so different seeds produce
// clearly different signatures.
func blockyPNG(t *testing.T, seed int64) []byte {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for by := 0; by < 8; by++ {
		for bx := 0; bx < 8; bx++ {
			gray := uint8(rng.Intn(256))
			for y := by * 8; y < (by+1)*8; y++ {
				for x := bx * 8; x < (bx+1)*8; x++ {
					img.Set(x, y, color.RGBA{R: gray, G: gray, B: gray, A: 255})
				}
			}
		}
	}
	return encodePNG(t, img)
}

func TestHash(t *testing.T) {
	data := blockyPNG(t, 1)

	first, err := Hash(data)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	again, err := Hash(data)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if first != again {
		t.Errorf("hash not deterministic: %x vs %x", first, again)
	}
}

func TestHashUnreadableImage(t *testing.T) {
	if _, err := Hash([]byte("not an image")); err == nil {
		t.Error("Hash() expected error for undecodable data")
	}
}

func TestMatchesAny(t *testing.T) {
	a, err := Hash(blockyPNG(t, 1))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Hash(blockyPNG(t, 2))
	if err != nil {
		t.Fatal(err)
	}

	if !MatchesAny(a, []uint64{a}, DefaultMaxDistance) {
		t.Error("identical hash should match itself")
	}
	if MatchesAny(a, nil, DefaultMaxDistance) {
		t.Error("no candidates should never match")
	}
	if a == b {
		t.Fatal("distinct test images produced identical hashes")
	}
	if MatchesAny(a, []uint64{b}, 1) {
		t.Error("distinct images should not match at distance 1")
	}
}

func TestMatchesAnyNearMiss(t *testing.T) {
	// A hash one bit away is within the default threshold.
	base := uint64(0xA5A5A5A5A5A5A5A5)
	flipped := base ^ 1

	if !MatchesAny(base, []uint64{flipped}, DefaultMaxDistance) {
		t.Error("one-bit difference should match within default distance")
	}
	if MatchesAny(base, []uint64{^base}, DefaultMaxDistance) {
		t.Error("inverted hash should not match")
	}
}
