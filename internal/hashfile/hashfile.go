// Package hashfile computes and checks streaming SHA-256 digests of files.
package hashfile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Sum returns the lowercase hex SHA-256 digest of the file at path.
// The file is read in fixed-size chunks, so memory use is constant
// regardless of file size.
func Sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for hashing: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, 64*1024)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify reports whether the file at path hashes to expectedHex.
// It fails closed: a missing or unreadable file yields false, never
// an error.
func Verify(path, expectedHex string) bool {
	sum, err := Sum(path)
	if err != nil {
		return false
	}
	return sum == expectedHex
}
