// Package dedup flags reports whose photo is perceptually identical to a
// recently scored photo taken nearby, so the same incident submitted twice
// does not trigger a second alert.
package dedup

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/webp"
)

// DefaultMaxDistance is the maximum Hamming distance between two dHash
// values below which images are considered perceptually identical.
const DefaultMaxDistance = 10

// Hash computes a 64-bit difference hash of the encoded image.
func Hash(imageBytes []byte) (uint64, error) {
	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return 0, fmt.Errorf("failed to decode image for hashing: %w", err)
	}
	hash, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return 0, fmt.Errorf("failed to hash image: %w", err)
	}
	return hash.GetHash(), nil
}

// MatchesAny reports whether hash is within maxDistance bits of any
// candidate hash. Candidates that fail to compare are skipped.
func MatchesAny(hash uint64, candidates []uint64, maxDistance int) bool {
	h := goimagehash.NewImageHash(hash, goimagehash.DHash)
	for _, c := range candidates {
		dist, err := h.Distance(goimagehash.NewImageHash(c, goimagehash.DHash))
		if err == nil && dist < maxDistance {
			return true
		}
	}
	return false
}
