// Package vcrypto implements the vault's cryptographic primitives: Argon2id
// master-key derivation, HKDF-SHA256 sub-key derivation, and AES-256-GCM
// envelope encryption over canonical JSON.
package vcrypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// Argon2Params captures the tunable Argon2id cost parameters persisted
// alongside the vault metadata so a given master password can always be
// re-derived the same way it was the day the vault was set up.
type Argon2Params struct {
	MemoryCost  uint32 // KiB
	TimeCost    uint32 // iterations
	Parallelism uint8
}

// DefaultArgon2Params returns the cost parameters used for new vaults.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{MemoryCost: 65536, TimeCost: 3, Parallelism: 4}
}

const (
	// SaltLen is the Argon2 salt length in bytes.
	SaltLen = 16
	// MasterKeyLen is the length in bytes of a derived master key.
	MasterKeyLen = 32
	minPasswordLen = 12
	maxPasswordLen = 128
)

// NewSalt returns a fresh CSPRNG salt of SaltLen bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("vcrypto: generate salt: %w", err)
	}
	return salt, nil
}

// DeriveMasterKey runs Argon2id over password and salt with the given
// parameters, producing a 32-byte master key.
func DeriveMasterKey(password string, salt []byte, params Argon2Params) ([]byte, error) {
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return nil, errors.New("vcrypto: master password must be 12-128 characters")
	}
	if len(salt) < SaltLen {
		return nil, errors.New("vcrypto: salt must be at least 16 bytes")
	}
	if params.MemoryCost == 0 || params.TimeCost == 0 || params.Parallelism == 0 {
		return nil, errors.New("vcrypto: kdf parameters must be positive")
	}
	key := argon2.IDKey([]byte(password), salt, params.TimeCost, params.MemoryCost, params.Parallelism, MasterKeyLen)
	return key, nil
}
