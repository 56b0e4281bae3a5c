package vstore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SettingsRecord is the singleton user-preferences row.
type SettingsRecord struct {
	AutoLockMinutes       int
	ClipboardClearSeconds int
	RequireReauthForCopy  bool
	UpdatedAt             time.Time
}

// DefaultSettings returns the spec's documented defaults: 5/15/true.
func DefaultSettings(now time.Time) SettingsRecord {
	return SettingsRecord{
		AutoLockMinutes:       5,
		ClipboardClearSeconds: 15,
		RequireReauthForCopy:  true,
		UpdatedAt:             now,
	}
}

// GetSettings auto-creates the row with defaults on first access.
func GetSettings(tx *sql.Tx, now time.Time) (*SettingsRecord, error) {
	row := tx.QueryRow(`SELECT auto_lock_minutes, clipboard_clear_seconds, require_reauth_for_copy, updated_at
		FROM settings WHERE id = 1`)
	var s SettingsRecord
	err := row.Scan(&s.AutoLockMinutes, &s.ClipboardClearSeconds, &s.RequireReauthForCopy, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		def := DefaultSettings(now)
		if err := PutSettings(tx, &def); err != nil {
			return nil, err
		}
		return &def, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vstore: get settings: %w", err)
	}
	return &s, nil
}

func PutSettings(tx *sql.Tx, s *SettingsRecord) error {
	_, err := tx.Exec(`INSERT INTO settings (id, auto_lock_minutes, clipboard_clear_seconds, require_reauth_for_copy, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET auto_lock_minutes = excluded.auto_lock_minutes,
			clipboard_clear_seconds = excluded.clipboard_clear_seconds,
			require_reauth_for_copy = excluded.require_reauth_for_copy,
			updated_at = excluded.updated_at`,
		s.AutoLockMinutes, s.ClipboardClearSeconds, s.RequireReauthForCopy, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("vstore: put settings: %w", err)
	}
	return nil
}
