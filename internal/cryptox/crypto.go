// Package cryptox implements the at-rest encryption for the file index
// database: AES-256-GCM primitives, whole-file encrypt/decrypt with a magic
// header marking the encrypted state, and argon2id key derivation.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"os"

	"github.com/skydrive-app/skydrive/internal/randx"
	"golang.org/x/crypto/argon2"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// SaltSize is the key-derivation salt length in bytes.
	SaltSize = 16
	ivSize   = 12
	tagSize  = 16
)

// magic marks a file as encrypted at rest. A file starting with these bytes
// is ciphertext; anything else is treated as a plain SQLite database.
var magic = []byte("SKYDCRPT")

var (
	ErrInvalidKeySize = errors.New("invalid key size")
	ErrCiphertext     = errors.New("ciphertext too short")
)

// DeriveKey stretches a low-entropy secret (machine id or passphrase) into
// an AES-256 key with argon2id.
func DeriveKey(secret []byte, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, KeySize)
}

// Encrypt seals plaintext with AES-256-GCM under a fresh random nonce.
// Output layout: iv(12) || ciphertext || tag(16).
func Encrypt(plaintext, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	iv, err := randx.Bytes(ivSize)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return aesgcm.Seal(iv, iv, plaintext, nil), nil
}

// Decrypt reverses Encrypt. A tag mismatch (wrong key, corruption) returns
// an error from the GCM open.
func Decrypt(ciphertext, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	if len(ciphertext) < ivSize+tagSize {
		return nil, ErrCiphertext
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return aesgcm.Open(nil, ciphertext[:ivSize], ciphertext[ivSize:], nil)
}

// IsEncryptedFile reports whether the file at path carries the magic header.
func IsEncryptedFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	header := make([]byte, len(magic))
	n, err := f.Read(header)
	return err == nil && n == len(magic) && bytes.Equal(header, magic)
}

// EncryptFile replaces the file at path with its encrypted form, prefixed
// with the magic header. The replacement goes through a temp file so a
// failure never leaves a truncated database behind.
func EncryptFile(path string, key []byte) error {
	plaintext, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	ciphertext, err := Encrypt(plaintext, key)
	if err != nil {
		return fmt.Errorf("encrypt %s: %w", path, err)
	}

	tmp := path + ".enc"
	out := make([]byte, 0, len(magic)+len(ciphertext))
	out = append(out, magic...)
	out = append(out, ciphertext...)
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// DecryptFile replaces an encrypted file at path with its plaintext form.
// A file without the magic header is already plaintext and is left alone.
func DecryptFile(path string, key []byte) error {
	if !IsEncryptedFile(path) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	plaintext, err := Decrypt(data[len(magic):], key)
	if err != nil {
		return fmt.Errorf("decrypt %s: %w", path, err)
	}

	tmp := path + ".dec"
	if err := os.WriteFile(tmp, plaintext, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
