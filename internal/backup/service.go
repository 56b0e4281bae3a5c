package backup

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"localvault/internal/apperr"
	"localvault/internal/audit"
	"localvault/internal/entries"
	"localvault/internal/settings"
	"localvault/internal/vcrypto"
	"localvault/internal/vstore"
)

// errInvalidBackupFile is never returned to callers as a transport error;
// Preview/Apply fold it into the user-visible errors[] list instead.
var errInvalidBackupFile = errors.New("invalid backup file")

// Service builds and parses backup envelopes against the record store.
type Service struct {
	store *vstore.Store
	now   func() time.Time
}

func New(store *vstore.Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Export builds a backup envelope of every entry and the settings
// singleton, sealed under either the session key or a fresh
// export-password-derived key.
func (s *Service) Export(ctx context.Context, encKey []byte, exportPassword string) (*Envelope, error) {
	now := s.now()

	var (
		bundleEntries []entries.Entry
		settingsModel settings.Model
	)
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		records, err := vstore.ListEntries(tx)
		if err != nil {
			return err
		}
		for _, rec := range records {
			var e entries.Entry
			if derr := vcrypto.DecryptJSON(encKey, rec.Nonce, rec.Ciphertext, &e); derr != nil {
				return apperr.ErrEntryUnavailable
			}
			bundleEntries = append(bundleEntries, e)
		}
		sr, err := vstore.GetSettings(tx, now)
		if err != nil {
			return err
		}
		settingsModel = settings.Model{
			AutoLockMinutes:       sr.AutoLockMinutes,
			ClipboardClearSeconds: sr.ClipboardClearSeconds,
			RequireReauthForCopy:  sr.RequireReauthForCopy,
		}
		return audit.Write(tx, now, "BACKUP_EXPORT", audit.Success, map[string]any{
			"entry_count":        len(bundleEntries),
			"password_protected": exportPassword != "",
		})
	})
	if err != nil {
		return nil, err
	}

	backupKey := encKey
	var kdfParams *KDFParams
	var salt []byte
	if exportPassword != "" {
		freshSalt, err := vcrypto.NewSalt()
		if err != nil {
			return nil, apperr.ErrInternal
		}
		params := vcrypto.DefaultArgon2Params()
		masterKey, err := vcrypto.DeriveMasterKey(exportPassword, freshSalt, params)
		if err != nil {
			return nil, apperr.ErrInternal
		}
		defer zero(masterKey)
		backupKey, err = vcrypto.DeriveSubKey(masterKey, vcrypto.InfoBackupKey)
		if err != nil {
			return nil, apperr.ErrInternal
		}
		kdfParams = &KDFParams{
			MemoryCost:  int(params.MemoryCost),
			TimeCost:    int(params.TimeCost),
			Parallelism: int(params.Parallelism),
		}
		salt = freshSalt
	}

	bundle := Bundle{Entries: bundleEntries, Settings: settingsModel, ExportedAt: now}
	nonce, ciphertext, err := vcrypto.EncryptJSON(backupKey, bundle)
	if err != nil {
		return nil, apperr.ErrInternal
	}

	return &Envelope{
		Version:   envelopeVersion,
		CreatedAt: now,
		KDFParams: kdfParams,
		Salt:      salt,
		Export:    CipherPayload{Nonce: nonce, Ciphertext: ciphertext},
		Note:      envelopeNote,
	}, nil
}

// PreviewResult is the shape shared by preview and apply responses.
type PreviewResult struct {
	Added   int      `json:"added"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}

func invalidFileResult() PreviewResult {
	return PreviewResult{Errors: []string{"Invalid backup file."}}
}

// resolveImportKey mirrors export's key selection in reverse.
func resolveImportKey(env *Envelope, encKey []byte, importPassword string) ([]byte, error) {
	if env.KDFParams == nil && len(env.Salt) == 0 {
		return encKey, nil
	}
	if env.KDFParams == nil || len(env.Salt) == 0 {
		return nil, errInvalidBackupFile
	}
	if importPassword == "" {
		return nil, errInvalidBackupFile
	}
	params := vcrypto.Argon2Params{
		MemoryCost:  uint32(env.KDFParams.MemoryCost),
		TimeCost:    uint32(env.KDFParams.TimeCost),
		Parallelism: uint8(env.KDFParams.Parallelism),
	}
	masterKey, err := vcrypto.DeriveMasterKey(importPassword, env.Salt, params)
	if err != nil {
		return nil, errInvalidBackupFile
	}
	defer zero(masterKey)
	return vcrypto.DeriveSubKey(masterKey, vcrypto.InfoBackupKey)
}

// loadBundle parses and decrypts raw into a Bundle, collapsing every
// failure mode (malformed JSON, mixed kdfParams/salt, missing password,
// decryption failure, malformed bundle plaintext) into errInvalidBackupFile
// so callers cannot distinguish the cause from the response shape.
func loadBundle(raw []byte, encKey []byte, importPassword string) (*Bundle, error) {
	env, err := parseEnvelope(raw)
	if err != nil {
		return nil, err
	}
	key, err := resolveImportKey(env, encKey, importPassword)
	if err != nil {
		return nil, err
	}
	var bundle Bundle
	if err := vcrypto.DecryptJSON(key, env.Export.Nonce, env.Export.Ciphertext, &bundle); err != nil {
		return nil, errInvalidBackupFile
	}
	return &bundle, nil
}

type disposition struct {
	entry    entries.Entry
	existing *vstore.EntryRecord
	action   string // "add", "update", "skip"
}

func computeDispositions(tx *sql.Tx, incoming []entries.Entry) ([]disposition, error) {
	records, err := vstore.ListEntries(tx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*vstore.EntryRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	out := make([]disposition, 0, len(incoming))
	for _, e := range incoming {
		existing, ok := byID[e.ID]
		if !ok {
			out = append(out, disposition{entry: e, action: "add"})
			continue
		}
		if e.UpdatedAt.After(existing.UpdatedAt) {
			out = append(out, disposition{entry: e, existing: existing, action: "update"})
		} else {
			out = append(out, disposition{entry: e, existing: existing, action: "skip"})
		}
	}
	return out, nil
}

func summarize(disps []disposition) PreviewResult {
	var r PreviewResult
	for _, d := range disps {
		switch d.action {
		case "add":
			r.Added++
		case "update":
			r.Updated++
		case "skip":
			r.Skipped++
		}
	}
	return r
}

// Preview computes dispositions without mutating any state. Malformed
// input of any kind yields a zero-count result with a generic error
// message and a nil error — callers must still HTTP 200 this.
func (s *Service) Preview(ctx context.Context, encKey []byte, raw []byte, password string) (PreviewResult, error) {
	now := s.now()
	bundle, err := loadBundle(raw, encKey, password)
	if err != nil {
		auditErr := s.store.WithTx(ctx, func(tx *sql.Tx) error {
			return audit.Write(tx, now, "BACKUP_IMPORT_PREVIEW", audit.Failure, map[string]any{"reason": "invalid_file"})
		})
		if auditErr != nil {
			return PreviewResult{}, apperr.ErrInternal
		}
		return invalidFileResult(), nil
	}

	var result PreviewResult
	err = s.store.WithTx(ctx, func(tx *sql.Tx) error {
		disps, err := computeDispositions(tx, bundle.Entries)
		if err != nil {
			return err
		}
		result = summarize(disps)
		return audit.Write(tx, now, "BACKUP_IMPORT_PREVIEW", audit.Success, map[string]any{
			"added": result.Added, "updated": result.Updated, "skipped": result.Skipped,
		})
	})
	if err != nil {
		return PreviewResult{}, apperr.ErrInternal
	}
	result.Errors = []string{}
	return result, nil
}

// Apply recomputes the same disposition summary inside a single
// transaction, then mutates: inserts ADDED entries, overwrites UPDATED
// ones, and replaces the settings singleton from the bundle. Any failure
// after the recompute rolls back and returns ErrImportFailed.
func (s *Service) Apply(ctx context.Context, encKey []byte, raw []byte, password string) (PreviewResult, error) {
	now := s.now()
	bundle, err := loadBundle(raw, encKey, password)
	if err != nil {
		auditErr := s.store.WithTx(ctx, func(tx *sql.Tx) error {
			return audit.Write(tx, now, "BACKUP_IMPORT_APPLY", audit.Failure, map[string]any{"reason": "invalid_file"})
		})
		if auditErr != nil {
			return PreviewResult{}, apperr.ErrInternal
		}
		return invalidFileResult(), nil
	}

	var result PreviewResult
	err = s.store.WithTx(ctx, func(tx *sql.Tx) error {
		disps, err := computeDispositions(tx, bundle.Entries)
		if err != nil {
			return err
		}
		result = summarize(disps)

		for _, d := range disps {
			if d.action == "skip" {
				continue
			}
			nonce, ciphertext, err := vcrypto.EncryptJSON(encKey, d.entry)
			if err != nil {
				return err
			}
			rec := &vstore.EntryRecord{
				ID: d.entry.ID, Nonce: nonce, Ciphertext: ciphertext,
				CreatedAt: d.entry.UpdatedAt, UpdatedAt: d.entry.UpdatedAt,
			}
			if d.action == "update" {
				rec.CreatedAt = d.existing.CreatedAt
			}
			if err := vstore.UpsertEntry(tx, rec); err != nil {
				return err
			}
		}

		if err := vstore.PutSettings(tx, &vstore.SettingsRecord{
			AutoLockMinutes:       bundle.Settings.AutoLockMinutes,
			ClipboardClearSeconds: bundle.Settings.ClipboardClearSeconds,
			RequireReauthForCopy:  bundle.Settings.RequireReauthForCopy,
			UpdatedAt:             now,
		}); err != nil {
			return err
		}

		return audit.Write(tx, now, "BACKUP_IMPORT_APPLY", audit.Success, map[string]any{
			"added": result.Added, "updated": result.Updated, "skipped": result.Skipped,
		})
	})
	if err != nil {
		auditErr := s.store.WithTx(ctx, func(tx *sql.Tx) error {
			return audit.Write(tx, now, "BACKUP_IMPORT_APPLY", audit.Failure, map[string]any{"reason": "transaction_failed"})
		})
		if auditErr != nil {
			return PreviewResult{}, apperr.ErrInternal
		}
		return PreviewResult{}, apperr.ErrImportFailed
	}
	result.Errors = []string{}
	return result, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
