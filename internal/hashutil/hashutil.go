// Package hashutil provides the small set of hashing helpers the broker
// needs: SHA-1 fingerprints for config-change invalidation and collision
// suffixes, and SHA-256 for config trust hashes.
package hashutil

import (
	"crypto/sha1" //nolint:gosec // fingerprinting only, not a security boundary
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// SHA1Hex returns the hex-encoded SHA-1 digest of s.
func SHA1Hex(s string) string {
	sum := sha1.Sum([]byte(s)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// SHA1Hex6 returns the first 6 hex characters of the SHA-1 digest of s, used
// for the stable collision suffix in mirrored tool names.
func SHA1Hex6(s string) string {
	full := SHA1Hex(s)
	return full[:6]
}

// SHA256Hex returns the hex-encoded SHA-256 digest of b.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ConfigFingerprint computes a stable SHA-1 fingerprint of a server
// definition. Go's encoding/json sorts map keys, so a map[string]any
// representation of a ServerDefinition marshals deterministically
// regardless of insertion order. Used to detect server-definition changes
// across config reloads.
func ConfigFingerprint(v map[string]any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return SHA1Hex(err.Error())
	}
	return SHA1Hex(string(raw))
}
