package vcrypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
)

// Sub-key derivation contexts. Each purpose gets its own HKDF "info" string
// so that compromise of one derived key does not extend to another.
const (
	InfoEncKey    = "vault/enc_key/v1"
	InfoAuditKey  = "vault/audit_key/v1" // reserved; not currently consumed
	InfoBackupKey = "vault/backup_key/v1"
)

// HKDFSHA256 derives outLen bytes of key material from ikm using HKDF
// (RFC 5869) with no salt, the given info context, and SHA-256.
func HKDFSHA256(ikm []byte, info string, outLen int) ([]byte, error) {
	if len(ikm) == 0 {
		return nil, errors.New("vcrypto: hkdf input key material required")
	}
	if outLen <= 0 {
		return nil, errors.New("vcrypto: hkdf output length must be positive")
	}

	prk := hkdfExtract(nil, ikm)
	return hkdfExpand(prk, []byte(info), outLen), nil
}

// DeriveSubKey is a convenience wrapper for the standard 32-byte sub-keys
// used throughout the vault (enc_key, audit_key, backup_key).
func DeriveSubKey(masterKey []byte, info string) ([]byte, error) {
	if len(masterKey) != MasterKeyLen {
		return nil, errors.New("vcrypto: master key must be 32 bytes")
	}
	return HKDFSHA256(masterKey, info, MasterKeyLen)
}

func hkdfExtract(salt, ikm []byte) []byte {
	if len(salt) == 0 {
		salt = make([]byte, sha256.Size)
	}
	mac := hmac.New(sha256.New, salt)
	mac.Write(ikm)
	return mac.Sum(nil)
}

func hkdfExpand(prk, info []byte, outLen int) []byte {
	hashLen := sha256.Size
	rounds := (outLen + hashLen - 1) / hashLen

	var (
		result []byte
		prev   []byte
	)
	for i := 1; i <= rounds; i++ {
		mac := hmac.New(sha256.New, prk)
		mac.Write(prev)
		mac.Write(info)
		mac.Write([]byte{byte(i)})
		prev = mac.Sum(nil)
		result = append(result, prev...)
	}
	return result[:outLen]
}
