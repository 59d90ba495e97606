// Package randx provides random token helpers and secure wiping of
// sensitive byte slices.
package randx

import (
	"crypto/rand"
	"encoding/hex"
)

// HexString returns a random hexadecimal string of exactly size characters.
func HexString(size int) (string, error) {
	b := make([]byte, (size+1)/2)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b)[:size], nil
}

// Bytes returns n cryptographically random bytes.
func Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Wipe overwrites b with zeros. Used to drop key material from memory as
// soon as it is no longer needed. A nil slice is a no-op.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
