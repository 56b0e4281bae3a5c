// Package audit writes the vault's append-only event log, sanitizing meta
// maps before they ever reach storage.
package audit

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"localvault/internal/vstore"
)

// Outcome values for an audit record.
const (
	Success = "SUCCESS"
	Failure = "FAILURE"
)

// forbiddenHints are substrings that must not appear in any meta key,
// case-insensitively. A key containing one is dropped entirely.
var forbiddenHints = []string{"password", "secret", "token", "key", "master"}

// Write appends one audit record as part of tx. Meta may be nil; a
// sanitized copy is stored (forbidden keys dropped, only scalar values
// kept) and the caller's map is left unchanged.
func Write(tx *sql.Tx, now time.Time, eventType, outcome string, meta map[string]any) error {
	return vstore.InsertAudit(tx, &vstore.AuditRecord{
		ID:      uuid.NewString(),
		TS:      now,
		Type:    eventType,
		Outcome: outcome,
		Meta:    Sanitize(meta),
	})
}

// Sanitize drops any key whose lowercased form contains a forbidden hint,
// and any value that is not a bool, numeric, string, or nil. An empty
// result is returned as nil so storage persists SQL NULL rather than "{}".
func Sanitize(meta map[string]any) map[string]any {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		lower := strings.ToLower(k)
		forbidden := false
		for _, hint := range forbiddenHints {
			if strings.Contains(lower, hint) {
				forbidden = true
				break
			}
		}
		if forbidden {
			continue
		}
		if !isScalar(v) {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}
