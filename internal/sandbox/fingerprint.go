package sandbox

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint hashes every field of the spec that affects the resulting
// isolation semantics. Two specs with equal fingerprints are guaranteed
// interchangeable; the registry compares this value to decide reuse.
//
// The encoding is canonical: struct fields serialize in declaration order
// and encoding/json sorts map keys, so equal specs always produce equal
// bytes.
func Fingerprint(spec Spec) string {
	data, err := json.Marshal(spec)
	if err != nil {
		// Spec contains only plain data; Marshal cannot fail on it.
		panic(fmt.Sprintf("fingerprint encoding: %v", err))
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}
