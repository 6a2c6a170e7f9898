package dedup

import (
	"fmt"
	"image"
	"math/bits"
	"strconv"

	"github.com/disintegration/imaging"
)

// dHash dimensions: 9 columns give 8 horizontal gradients per row, 8 rows
// give a 64-bit hash.
const (
	dhashWidth  = 9
	dhashHeight = 8
)

// DHash computes the 64-bit difference hash of an image: grayscale, Lanczos
// downsample to 9x8, then one bit per adjacent-pixel brightness gradient.
// Gradients survive re-compression and re-scaling, so visually identical
// images hash close together.
func DHash(img image.Image) uint64 {
	small := imaging.Resize(imaging.Grayscale(img), dhashWidth, dhashHeight, imaging.Lanczos)

	var hash uint64
	for y := 0; y < dhashHeight; y++ {
		for x := 0; x < dhashWidth-1; x++ {
			hash <<= 1
			if small.NRGBAAt(x, y).R < small.NRGBAAt(x+1, y).R {
				hash |= 1
			}
		}
	}
	return hash
}

// HammingDistance counts differing bits between two hashes.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// BucketKey is the coarse locality-sensitive prefix used to shard the
// near-duplicate search: hashes differing only in low bits still land in the
// same 16-bit bucket, keeping within-bucket pairwise comparison near-linear
// over the corpus.
func BucketKey(hash uint64) uint16 {
	return uint16(hash >> 48)
}

// FormatHash renders a hash as fixed-width hex for manifests.
func FormatHash(hash uint64) string {
	return fmt.Sprintf("%016x", hash)
}

// ParseHash reverses FormatHash.
func ParseHash(s string) (uint64, error) {
	return strconv.ParseUint(s, 16, 64)
}
