// Package integrity computes and checks content hashes of distribution
// artifacts (source archives and wheels).
//
// Every artifact recorded in a lock carries a (filename, algorithm,
// digest) triple. Hashes are append-only: once a digest is recorded for
// a (package, version) it is never overwritten. Re-resolving the same
// version may only add hashes for platform variants not seen before.
// A digest mismatch is a potential tampering signal and is always
// surfaced as a fatal HASH_MISMATCH error, never downgraded to a
// warning.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"

	"github.com/matzehuels/padlock/pkg/errors"
)

// AlgoSHA256 is the digest algorithm padlock records for new artifacts.
const AlgoSHA256 = "sha256"

// ArtifactHash identifies one distribution file and its content digest.
type ArtifactHash struct {
	Filename  string `toml:"file"`
	Algorithm string `toml:"algo"`
	Digest    string `toml:"hash"`
}

// String renders the hash in the "algo:digest" notation used by lock
// files and error messages.
func (h ArtifactHash) String() string {
	return h.Algorithm + ":" + h.Digest
}

// Compute hashes data with sha256 and returns the artifact record.
func Compute(filename string, data []byte) ArtifactHash {
	sum := sha256.Sum256(data)
	return ArtifactHash{
		Filename:  filename,
		Algorithm: AlgoSHA256,
		Digest:    hex.EncodeToString(sum[:]),
	}
}

// Verify checks data against the recorded hash. It returns nil on a
// match, a HASH_MISMATCH error when the digest differs, and an
// INTERNAL_ERROR for an algorithm this build cannot compute.
func Verify(h ArtifactHash, data []byte) error {
	switch strings.ToLower(h.Algorithm) {
	case AlgoSHA256:
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != strings.ToLower(h.Digest) {
			return errors.New(errors.ErrCodeHashMismatch,
				"digest mismatch for %s: artifact does not match recorded %s", h.Filename, h.String())
		}
		return nil
	default:
		return errors.New(errors.ErrCodeInternal, "unsupported digest algorithm %q for %s", h.Algorithm, h.Filename)
	}
}

// Merge unions previously recorded hashes with newly computed ones,
// preserving every existing entry. A new hash for an already-recorded
// filename must agree with the stored digest; disagreement is a
// HASH_MISMATCH error, not a replacement. The result is sorted by
// filename so serialized locks are stable.
func Merge(existing, fresh []ArtifactHash) ([]ArtifactHash, error) {
	byFile := make(map[string]ArtifactHash, len(existing))
	for _, h := range existing {
		byFile[h.Filename] = h
	}

	merged := slices.Clone(existing)
	for _, h := range fresh {
		prev, ok := byFile[h.Filename]
		if !ok {
			byFile[h.Filename] = h
			merged = append(merged, h)
			continue
		}
		if !strings.EqualFold(prev.Algorithm, h.Algorithm) || !strings.EqualFold(prev.Digest, h.Digest) {
			return nil, errors.New(errors.ErrCodeHashMismatch,
				"recorded hash for %s is %s but current artifact is %s", h.Filename, prev.String(), h.String())
		}
	}

	slices.SortFunc(merged, func(a, b ArtifactHash) int {
		return strings.Compare(a.Filename, b.Filename)
	})
	return merged, nil
}
