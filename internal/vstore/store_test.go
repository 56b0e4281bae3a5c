package vstore

import (
	"context"
	"database/sql"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenCreatesEmptySchema(t *testing.T) {
	store := openTestStore(t)

	err := store.WithTx(context.Background(), func(tx *sql.Tx) error {
		m, err := GetVaultMetadata(tx)
		if err != nil {
			return err
		}
		if m != nil {
			t.Fatal("expected no vault metadata in a freshly opened store")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
}

func TestInsertAndGetVaultMetadata(t *testing.T) {
	store := openTestStore(t)
	now := time.Now().UTC()

	want := &VaultMetadata{
		SchemaVersion: 1,
		Hint:          "first pet",
		Argon2Salt:    []byte("0123456789abcdef"),
		MemoryCost:    65536,
		TimeCost:      3,
		Parallelism:   4,
		PWVerifier:    "argon2id$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA",
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := store.WithTx(context.Background(), func(tx *sql.Tx) error {
		return InsertVaultMetadata(tx, want)
	})
	if err != nil {
		t.Fatalf("InsertVaultMetadata: %v", err)
	}

	var got *VaultMetadata
	err = store.WithTx(context.Background(), func(tx *sql.Tx) error {
		var err error
		got, err = GetVaultMetadata(tx)
		return err
	})
	if err != nil {
		t.Fatalf("GetVaultMetadata: %v", err)
	}
	if got == nil {
		t.Fatal("GetVaultMetadata() = nil after insert")
	}
	if got.Hint != want.Hint || got.MemoryCost != want.MemoryCost || got.PWVerifier != want.PWVerifier {
		t.Fatalf("GetVaultMetadata() = %+v, want matching %+v", got, want)
	}
}

func TestEntryCRUD(t *testing.T) {
	store := openTestStore(t)
	now := time.Now().UTC()

	rec := &EntryRecord{ID: "entry-1", Nonce: []byte("nonce"), Ciphertext: []byte("ct"), CreatedAt: now, UpdatedAt: now}
	err := store.WithTx(context.Background(), func(tx *sql.Tx) error {
		return InsertEntry(tx, rec)
	})
	if err != nil {
		t.Fatalf("InsertEntry: %v", err)
	}

	err = store.WithTx(context.Background(), func(tx *sql.Tx) error {
		got, err := GetEntry(tx, "entry-1")
		if err != nil {
			return err
		}
		if string(got.Ciphertext) != "ct" {
			t.Fatalf("GetEntry() ciphertext = %q, want %q", got.Ciphertext, "ct")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx(get): %v", err)
	}

	err = store.WithTx(context.Background(), func(tx *sql.Tx) error {
		return DeleteEntry(tx, "entry-1")
	})
	if err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}

	err = store.WithTx(context.Background(), func(tx *sql.Tx) error {
		_, err := GetEntry(tx, "entry-1")
		return err
	})
	if err != ErrNotFound {
		t.Fatalf("GetEntry after delete = %v, want ErrNotFound", err)
	}
}

func TestSettingsDefaultsOnFirstAccess(t *testing.T) {
	store := openTestStore(t)
	now := time.Now().UTC()

	var got *SettingsRecord
	err := store.WithTx(context.Background(), func(tx *sql.Tx) error {
		var err error
		got, err = GetSettings(tx, now)
		return err
	})
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	want := DefaultSettings(now)
	if got.AutoLockMinutes != want.AutoLockMinutes || got.ClipboardClearSeconds != want.ClipboardClearSeconds {
		t.Fatalf("GetSettings() = %+v, want defaults %+v", got, want)
	}
}

func TestThrottleDefaultsToZero(t *testing.T) {
	store := openTestStore(t)
	now := time.Now().UTC()

	var got *UnlockThrottleRecord
	err := store.WithTx(context.Background(), func(tx *sql.Tx) error {
		var err error
		got, err = GetThrottle(tx, now)
		return err
	})
	if err != nil {
		t.Fatalf("GetThrottle: %v", err)
	}
	if got.FailedAttempts != 0 || !got.NextAllowedAt.IsZero() {
		t.Fatalf("GetThrottle() = %+v, want zero value", got)
	}
}
