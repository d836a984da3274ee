// Package hashutil provides content hashing for cache-key dedup, backed by
// an AVX2/SHA-NI accelerated SHA-256 implementation where available.
package hashutil

import (
	"encoding/hex"
	"io"

	sha256simd "github.com/minio/sha256-simd"
)

// Hasher computes a content digest for cache deduplication.
type Hasher interface {
	Sum(data []byte) [32]byte
	SumReader(r io.Reader) ([32]byte, error)
}

type sha256Hasher struct{}

// New returns the default Hasher, backed by github.com/minio/sha256-simd.
func New() Hasher { return sha256Hasher{} }

func (sha256Hasher) Sum(data []byte) [32]byte {
	return sha256simd.Sum256(data)
}

func (sha256Hasher) SumReader(r io.Reader) ([32]byte, error) {
	h := sha256simd.New()
	if _, err := io.Copy(h, r); err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// Hex renders a digest as a lowercase hex string, the form used for
// human-readable cache keys and log fields.
func Hex(sum [32]byte) string {
	return hex.EncodeToString(sum[:])
}
