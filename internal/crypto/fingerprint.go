package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// fingerprintBytes is the truncated digest length; the hex form is twice this.
const fingerprintBytes = 10

// Fingerprint hashes the concatenation of parts with SHA-256 and returns the
// first fingerprintBytes as lowercase hex.
func Fingerprint(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil)[:fingerprintBytes])
}
