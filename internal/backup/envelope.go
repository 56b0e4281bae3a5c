// Package backup implements the password-protected backup envelope format:
// building and parsing encrypted bundles, and the two-step preview/apply
// import flow.
package backup

import (
	"bytes"
	"encoding/json"
	"time"

	"localvault/internal/entries"
	"localvault/internal/settings"
)

// KDFParams are the Argon2id cost parameters used to wrap an
// export-password-protected backup key.
type KDFParams struct {
	MemoryCost  int `json:"memoryCost"`
	TimeCost    int `json:"timeCost"`
	Parallelism int `json:"parallelism"`
}

// CipherPayload is the AES-GCM envelope of the bundle plaintext.
type CipherPayload struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Envelope is the top-level backup file format. Unknown keys are rejected
// on parse.
type Envelope struct {
	Version   int            `json:"version"`
	CreatedAt time.Time      `json:"createdAt"`
	KDFParams *KDFParams     `json:"kdfParams"`
	Salt      []byte         `json:"salt"`
	Export    CipherPayload  `json:"export"`
	Note      string         `json:"note"`
}

// Bundle is the canonical-JSON plaintext sealed inside Envelope.Export.
type Bundle struct {
	Entries    []entries.Entry `json:"entries"`
	Settings   settings.Model  `json:"settings"`
	ExportedAt time.Time       `json:"exportedAt"`
}

const envelopeVersion = 1
const envelopeNote = "encrypted-only"

// parseEnvelope strictly decodes raw as an Envelope, rejecting unknown
// fields and trailing data.
func parseEnvelope(raw []byte) (*Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return nil, errInvalidBackupFile
	}
	if dec.More() {
		return nil, errInvalidBackupFile
	}
	if (env.KDFParams == nil) != (len(env.Salt) == 0) {
		return nil, errInvalidBackupFile
	}
	return &env, nil
}
