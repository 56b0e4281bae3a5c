// Package settings implements the bounded-range user preferences singleton.
package settings

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"localvault/internal/vstore"
)

// Model is the API-facing (and backup-bundle) shape of the settings row.
type Model struct {
	AutoLockMinutes       int  `json:"autoLockMinutes"`
	ClipboardClearSeconds int  `json:"clipboardClearSeconds"`
	RequireReauthForCopy  bool `json:"requireReauthForCopy"`
}

// Validate enforces the ranges from the data model: auto_lock_minutes in
// [1,120], clipboard_clear_seconds in [5,120].
func (m Model) Validate() error {
	if m.AutoLockMinutes < 1 || m.AutoLockMinutes > 120 {
		return fmt.Errorf("autoLockMinutes must be between 1 and 120")
	}
	if m.ClipboardClearSeconds < 5 || m.ClipboardClearSeconds > 120 {
		return fmt.Errorf("clipboardClearSeconds must be between 5 and 120")
	}
	return nil
}

func fromRecord(r *vstore.SettingsRecord) Model {
	return Model{
		AutoLockMinutes:       r.AutoLockMinutes,
		ClipboardClearSeconds: r.ClipboardClearSeconds,
		RequireReauthForCopy:  r.RequireReauthForCopy,
	}
}

// Service reads and writes the settings singleton, auto-creating defaults
// on first access.
type Service struct {
	store *vstore.Store
	now   func() time.Time
}

func New(store *vstore.Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) Get(ctx context.Context) (Model, error) {
	var m Model
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		r, err := vstore.GetSettings(tx, s.now())
		if err != nil {
			return err
		}
		m = fromRecord(r)
		return nil
	})
	return m, err
}

func (s *Service) Put(ctx context.Context, m Model) (Model, error) {
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		return vstore.PutSettings(tx, &vstore.SettingsRecord{
			AutoLockMinutes:       m.AutoLockMinutes,
			ClipboardClearSeconds: m.ClipboardClearSeconds,
			RequireReauthForCopy:  m.RequireReauthForCopy,
			UpdatedAt:             s.now(),
		})
	})
	if err != nil {
		return Model{}, err
	}
	return m, nil
}
