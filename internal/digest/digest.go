// Package digest computes the content digests that drive idempotent
// publishing: lowercase hex SHA-256 over exact payload bytes.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// FromReader streams r through SHA-256 and returns the hex digest and the
// number of bytes read. Large payloads are never buffered in memory.
// A read error propagates; it never produces a degenerate digest.
func FromReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("reading content for digest: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// FromBytes returns the hex SHA-256 of b.
func FromBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
