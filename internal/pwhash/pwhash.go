// Package pwhash hashes and verifies the vault's master-password verifier:
// an Argon2id digest stored alongside the vault metadata and checked on
// every unlock attempt. It never touches the encryption key itself — see
// internal/vcrypto for key derivation.
package pwhash

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	saltLen = 16
	hashLen = 32

	memoryCost  uint32 = 64 * 1024
	timeCost    uint32 = 3
	parallelism uint8  = 4
)

// Hash returns an encoded Argon2id verifier for password in the form
// "argon2id$v=19$m=<mem>,t=<time>,p=<par>$<saltB64>$<hashB64>".
func Hash(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("pwhash: generate salt: %w", err)
	}
	digest := argon2.IDKey([]byte(password), salt, timeCost, memoryCost, parallelism, hashLen)
	encoded := fmt.Sprintf("argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		memoryCost, timeCost, parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	)
	return encoded, nil
}

// Verify reports whether password matches the verifier produced by Hash.
// Any malformed encoding is treated as a non-match; the caller cannot
// distinguish "wrong password" from "corrupt verifier" from the return
// value alone, by design.
func Verify(encoded, password string) bool {
	toks := strings.Split(encoded, "$")
	if len(toks) != 5 || toks[0] != "argon2id" {
		return false
	}

	var memory, iterations, threads uint64
	for _, kv := range strings.Split(toks[2], ",") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return false
		}
		switch parts[0] {
		case "m":
			v, err := strconv.ParseUint(parts[1], 10, 32)
			if err != nil {
				return false
			}
			memory = v
		case "t":
			v, err := strconv.ParseUint(parts[1], 10, 32)
			if err != nil {
				return false
			}
			iterations = v
		case "p":
			v, err := strconv.ParseUint(parts[1], 10, 8)
			if err != nil {
				return false
			}
			threads = v
		default:
			return false
		}
	}
	if memory == 0 || iterations == 0 || threads == 0 {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(toks[3])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(toks[4])
	if err != nil {
		return false
	}

	got := argon2.IDKey([]byte(password), salt, uint32(iterations), uint32(memory), uint8(threads), uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
