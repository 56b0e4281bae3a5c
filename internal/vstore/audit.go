package vstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AuditRecord is one append-only audit log row. Meta must already be
// sanitized (scalar values only, forbidden keys dropped) by the caller —
// the store persists whatever it is given.
type AuditRecord struct {
	ID      string
	TS      time.Time
	Type    string
	Outcome string
	Meta    map[string]any
}

func InsertAudit(tx *sql.Tx, r *AuditRecord) error {
	var metaJSON any
	if len(r.Meta) > 0 {
		b, err := json.Marshal(r.Meta)
		if err != nil {
			return fmt.Errorf("vstore: marshal audit meta: %w", err)
		}
		metaJSON = string(b)
	}
	_, err := tx.Exec(`INSERT INTO audit_log (id, ts, type, outcome, meta) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.TS, r.Type, r.Outcome, metaJSON)
	if err != nil {
		return fmt.Errorf("vstore: insert audit: %w", err)
	}
	return nil
}

// ListAudit returns every audit row ordered by ts descending.
func ListAudit(tx *sql.Tx) ([]*AuditRecord, error) {
	rows, err := tx.Query(`SELECT id, ts, type, outcome, meta FROM audit_log ORDER BY ts DESC`)
	if err != nil {
		return nil, fmt.Errorf("vstore: list audit: %w", err)
	}
	defer rows.Close()

	var out []*AuditRecord
	for rows.Next() {
		var (
			r        AuditRecord
			metaText sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.TS, &r.Type, &r.Outcome, &metaText); err != nil {
			return nil, fmt.Errorf("vstore: scan audit: %w", err)
		}
		if metaText.Valid && metaText.String != "" {
			if err := json.Unmarshal([]byte(metaText.String), &r.Meta); err != nil {
				return nil, fmt.Errorf("vstore: unmarshal audit meta: %w", err)
			}
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
