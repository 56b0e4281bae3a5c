package vcrypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

const (
	// NonceLen is the AES-GCM nonce length in bytes.
	NonceLen = 12
	// entryAAD is bound into every AEAD operation but never encrypted.
	entryAAD = "local-vault-entry-v1"
)

// ErrCryptoIntegrity is returned whenever decryption fails authentication,
// or the opened plaintext is not valid JSON that decodes into the target
// without unknown fields (key order is not checked). Callers must
// never leak which of the two actually happened.
var ErrCryptoIntegrity = errors.New("crypto integrity check failed")

// EncryptJSON canonical-JSON-encodes obj, then seals it with AES-256-GCM
// under a fresh CSPRNG nonce. key must be exactly 32 bytes.
func EncryptJSON(key []byte, obj any) (nonce, ciphertext []byte, err error) {
	if len(key) != MasterKeyLen {
		return nil, nil, errors.New("vcrypto: encryption key must be 32 bytes")
	}

	plaintext, err := CanonicalJSON(obj)
	if err != nil {
		return nil, nil, fmt.Errorf("vcrypto: canonicalize plaintext: %w", err)
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, NonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("vcrypto: generate nonce: %w", err)
	}

	ciphertext = aead.Seal(nil, nonce, plaintext, []byte(entryAAD))
	return nonce, ciphertext, nil
}

// DecryptJSON opens an AES-256-GCM envelope and unmarshals the plaintext
// into out (a pointer). Any authentication, length, or parse failure
// collapses to ErrCryptoIntegrity so callers cannot distinguish the cause.
func DecryptJSON(key, nonce, ciphertext []byte, out any) error {
	if len(key) != MasterKeyLen {
		return ErrCryptoIntegrity
	}
	if len(nonce) != NonceLen {
		return ErrCryptoIntegrity
	}

	aead, err := newAEAD(key)
	if err != nil {
		return ErrCryptoIntegrity
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(entryAAD))
	if err != nil {
		return ErrCryptoIntegrity
	}

	if !json.Valid(plaintext) {
		return ErrCryptoIntegrity
	}
	dec := json.NewDecoder(bytes.NewReader(plaintext))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return ErrCryptoIntegrity
	}
	return nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vcrypto: new cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// CanonicalJSON marshals obj as UTF-8 JSON with lexicographically sorted
// object keys and no insignificant whitespace, matching the byte-stable
// representation required by spec for AEAD plaintext and envelope hashing.
func CanonicalJSON(obj any) ([]byte, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encodeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeCanonical(buf *bytes.Buffer, v any) error {
	switch value := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(value))
		for k := range value {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeCanonical(buf, value[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, item := range value {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}
