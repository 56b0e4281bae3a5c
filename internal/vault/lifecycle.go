// Package vault orchestrates the vault lifecycle state machine
// (NO_VAULT -> LOCKED <-> UNLOCKED): setup, unlock, lock, and status
// queries. It wires crypto, password verification, persistence, the
// session registry, the unlock throttle, and audit logging together;
// everything else (entries, backup) builds on top of an unlocked session.
package vault

import (
	"context"
	"database/sql"
	"time"

	"localvault/internal/apperr"
	"localvault/internal/audit"
	"localvault/internal/pwhash"
	"localvault/internal/session"
	"localvault/internal/throttle"
	"localvault/internal/vcrypto"
	"localvault/internal/vstore"
)

// Status values returned by the status query.
const (
	StatusNoVault  = "NO_VAULT"
	StatusLocked   = "LOCKED"
	StatusUnlocked = "UNLOCKED"
)

// Vault ties the record store and the in-process session registry together.
type Vault struct {
	store    *vstore.Store
	sessions *session.Registry
	now      func() time.Time
}

func New(store *vstore.Store, sessions *session.Registry) *Vault {
	return &Vault{store: store, sessions: sessions, now: func() time.Time { return time.Now().UTC() }}
}

// Status reports NO_VAULT if the vault was never set up; otherwise peeks
// token in the session registry to distinguish LOCKED from UNLOCKED.
func (v *Vault) Status(ctx context.Context, token string) (string, error) {
	var initialized bool
	err := v.store.WithTx(ctx, func(tx *sql.Tx) error {
		m, err := vstore.GetVaultMetadata(tx)
		if err != nil {
			return err
		}
		initialized = m != nil
		return nil
	})
	if err != nil {
		return "", apperr.ErrInternal
	}
	if !initialized {
		return StatusNoVault, nil
	}
	if token != "" {
		if _, ok := v.sessions.Peek(token); ok {
			return StatusUnlocked, nil
		}
	}
	return StatusLocked, nil
}

// Setup initializes a brand-new vault. Fails with ErrVaultExists if a
// verifier is already present.
func (v *Vault) Setup(ctx context.Context, password, hint string) error {
	now := v.now()
	params := vcrypto.DefaultArgon2Params()

	var conflict bool
	err := v.store.WithTx(ctx, func(tx *sql.Tx) error {
		existing, err := vstore.GetVaultMetadata(tx)
		if err != nil {
			return err
		}
		if existing != nil {
			conflict = true
			return apperr.ErrVaultExists
		}

		salt, err := vcrypto.NewSalt()
		if err != nil {
			return apperr.ErrInternal
		}
		verifier, err := pwhash.Hash(password)
		if err != nil {
			return apperr.ErrInternal
		}

		meta := &vstore.VaultMetadata{
			SchemaVersion: 1,
			Hint:          hint,
			Argon2Salt:    salt,
			MemoryCost:    params.MemoryCost,
			TimeCost:      params.TimeCost,
			Parallelism:   params.Parallelism,
			PWVerifier:    verifier,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := vstore.InsertVaultMetadata(tx, meta); err != nil {
			return err
		}
		defaults := vstore.DefaultSettings(now)
		if err := vstore.PutSettings(tx, &defaults); err != nil {
			return err
		}
		if err := vstore.PutThrottle(tx, &vstore.UnlockThrottleRecord{UpdatedAt: now}); err != nil {
			return err
		}
		return audit.Write(tx, now, "VAULT_SETUP", audit.Success, nil)
	})
	if conflict {
		auditErr := v.store.WithTx(ctx, func(tx *sql.Tx) error {
			return audit.Write(tx, now, "VAULT_SETUP", audit.Failure, map[string]any{"reason": "already_initialized"})
		})
		if auditErr != nil {
			return apperr.ErrInternal
		}
	}
	return err
}

// Unlock verifies the master password, subject to the throttle gate, and on
// success derives a session encryption key and creates a session.
func (v *Vault) Unlock(ctx context.Context, password string) (*session.Data, error) {
	now := v.now()

	var meta *vstore.VaultMetadata
	err := v.store.WithTx(ctx, func(tx *sql.Tx) error {
		m, err := vstore.GetVaultMetadata(tx)
		if err != nil {
			return err
		}
		meta = m
		return nil
	})
	if err != nil {
		return nil, apperr.ErrInternal
	}
	if meta == nil {
		return nil, apperr.ErrVaultNotInitialized
	}

	var (
		allowed bool
		state   throttle.State
	)
	err = v.store.WithTx(ctx, func(tx *sql.Tx) error {
		t, err := vstore.GetThrottle(tx, now)
		if err != nil {
			return err
		}
		state = throttle.State{FailedAttempts: t.FailedAttempts, NextAllowedAt: t.NextAllowedAt}
		allowed = throttle.Allowed(state, now)
		if !allowed {
			return audit.Write(tx, now, "VAULT_UNLOCK", audit.Failure, map[string]any{"reason": "rate_limited"})
		}
		return nil
	})
	if err != nil {
		return nil, apperr.ErrInternal
	}
	if !allowed {
		return nil, apperr.ErrRateLimited
	}

	if !pwhash.Verify(meta.PWVerifier, password) {
		next := throttle.OnFailure(state, now)
		err := v.store.WithTx(ctx, func(tx *sql.Tx) error {
			if err := vstore.PutThrottle(tx, &vstore.UnlockThrottleRecord{
				FailedAttempts: next.FailedAttempts,
				NextAllowedAt:  next.NextAllowedAt,
				UpdatedAt:      now,
			}); err != nil {
				return err
			}
			return audit.Write(tx, now, "VAULT_UNLOCK", audit.Failure, map[string]any{
				"failed_attempts": next.FailedAttempts,
				"delay_seconds":   throttle.DelaySeconds(next.FailedAttempts),
			})
		})
		if err != nil {
			return nil, apperr.ErrInternal
		}
		return nil, apperr.ErrUnauthorized
	}

	masterKey, err := vcrypto.DeriveMasterKey(password, meta.Argon2Salt, vcrypto.Argon2Params{
		MemoryCost:  meta.MemoryCost,
		TimeCost:    meta.TimeCost,
		Parallelism: meta.Parallelism,
	})
	if err != nil {
		return nil, apperr.ErrVaultInvalid
	}
	defer zero(masterKey)

	encKey, err := vcrypto.DeriveSubKey(masterKey, vcrypto.InfoEncKey)
	if err != nil {
		return nil, apperr.ErrVaultInvalid
	}
	defer zero(encKey)

	err = v.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := vstore.PutThrottle(tx, &vstore.UnlockThrottleRecord{UpdatedAt: now}); err != nil {
			return err
		}
		return audit.Write(tx, now, "VAULT_UNLOCK", audit.Success, nil)
	})
	if err != nil {
		return nil, apperr.ErrInternal
	}

	sess, err := v.sessions.Create(encKey)
	if err != nil {
		return nil, apperr.ErrInternal
	}
	return sess, nil
}

// Lock destroys the session for token, if any; an empty or unknown token is
// not an error. The only error it returns is a failure to write the
// VAULT_LOCK audit record.
func (v *Vault) Lock(ctx context.Context, token string) error {
	if token != "" {
		v.sessions.Destroy(token)
	}
	now := v.now()
	return v.store.WithTx(ctx, func(tx *sql.Tx) error {
		return audit.Write(tx, now, "VAULT_LOCK", audit.Success, nil)
	})
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
