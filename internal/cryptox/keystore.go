package cryptox

import (
	"errors"
	"fmt"
	"os"

	"github.com/skydrive-app/skydrive/internal/filex"
	"github.com/skydrive-app/skydrive/internal/randx"
)

// The database key never touches disk in the clear: the keyfile holds
// salt(16) || Encrypt(key, DeriveKey(secret, salt)), where the secret is
// machine-specific material (see machineid.go) or a user passphrase.

var ErrKeyfileCorrupted = errors.New("keyfile corrupted or too small")

// StoreKey wraps key with secret and writes the keyfile with 0600 perms.
func StoreKey(path string, key, secret []byte) error {
	salt, err := randx.Bytes(SaltSize)
	if err != nil {
		return err
	}

	derived := DeriveKey(secret, salt)
	defer randx.Wipe(derived)

	wrapped, err := Encrypt(key, derived)
	if err != nil {
		return fmt.Errorf("wrap key: %w", err)
	}

	out := make([]byte, 0, SaltSize+len(wrapped))
	out = append(out, salt...)
	out = append(out, wrapped...)

	if err := filex.WriteAtomic(path, out, 0o600); err != nil {
		return fmt.Errorf("store keyfile: %w", err)
	}
	return nil
}

// LoadKey reads the keyfile and unwraps the database key with secret.
// A missing keyfile returns (nil, nil): the caller generates a new key.
func LoadKey(path string, secret []byte) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read keyfile: %w", err)
	}

	if len(data) < SaltSize+ivSize+tagSize {
		return nil, ErrKeyfileCorrupted
	}

	derived := DeriveKey(secret, data[:SaltSize])
	defer randx.Wipe(derived)

	key, err := Decrypt(data[SaltSize:], derived)
	if err != nil {
		return nil, fmt.Errorf("unwrap key (machine id may have changed): %w", err)
	}
	return key, nil
}
