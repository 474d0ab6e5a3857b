// Hash algorithm implementations for dataset digests and index-cache
// checksums.
//
// These are distinct from the dedup Fingerprint (fingerprint.go), which
// is always FNV-1a or SimHash-64 per the exact/similarity strategy in
// use. The algorithms here back Dataset.Digest and the offset sidecar's
// integrity checksum, selectable via Config.HashAlgorithm.
package caret

import (
	"fmt"
	"hash/fnv"

	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
)

// Hash algorithm constants for Config.HashAlgorithm.
const (
	AlgXXHash3 = 1 // Default, fastest
	AlgFNV1a   = 2 // No external dependencies
	AlgBlake2b = 3 // Best distribution
)

// digestHash produces a 16 hex character digest of data using the given
// algorithm. Used for Dataset.Digest() and the index-cache checksum.
func digestHash(data []byte, alg int) string {
	switch alg {
	case AlgXXHash3:
		h := xxh3.Hash(data)
		return fmt.Sprintf("%016x", h)
	case AlgFNV1a:
		h := fnv.New64a()
		h.Write(data)
		return fmt.Sprintf("%016x", h.Sum64())
	case AlgBlake2b:
		h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
		h.Write(data)
		return fmt.Sprintf("%016x", h.Sum(nil))
	default:
		return ""
	}
}
