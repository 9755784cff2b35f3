package certificate

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest is the lowercase hex SHA-256 of a serialized certificate. Every provider
// uses this function so stored digests stay comparable across backends.
func Digest(serialized []byte) string {
	sum := sha256.Sum256(serialized)
	return hex.EncodeToString(sum[:])
}

// DigestCertificate serializes c canonically and digests the result.
func DigestCertificate(c *Certificate) (string, error) {
	data, err := c.Canonical()
	if err != nil {
		return "", err
	}
	return Digest(data), nil
}
