package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"localvault/internal/entries"
	"localvault/internal/vcrypto"
	"localvault/internal/vstore"
)

func openTestStore(t *testing.T) *vstore.Store {
	t.Helper()
	store, err := vstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("vstore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedEntry(t *testing.T, encKey []byte, svc *entries.Service) {
	t.Helper()
	_, err := svc.Create(context.Background(), encKey, entries.Entry{
		Title: "Example", Username: "alice", Password: "hunter2",
	})
	if err != nil {
		t.Fatalf("seed entry Create: %v", err)
	}
}

func TestExportPreviewApplyRoundTripWithoutExportPassword(t *testing.T) {
	store := openTestStore(t)
	backupSvc := New(store)
	entrySvc := entries.New(store)

	encKey := bytes.Repeat([]byte{0x11}, vcrypto.MasterKeyLen)
	seedEntry(t, encKey, entrySvc)

	env, err := backupSvc.Export(context.Background(), encKey, "")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if env.KDFParams != nil || len(env.Salt) != 0 {
		t.Fatal("Export without a password must not set kdfParams/salt")
	}

	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	// The exported bundle's entry has the same updatedAt as the row already
	// in the store, so preview/apply must classify it as a no-op skip, not
	// an add or update.
	preview, err := backupSvc.Preview(context.Background(), encKey, raw, "")
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if preview.Skipped != 1 || preview.Added != 0 || preview.Updated != 0 {
		t.Fatalf("Preview() = %+v, want exactly one skipped entry", preview)
	}

	applied, err := backupSvc.Apply(context.Background(), encKey, raw, "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if applied.Skipped != 1 || applied.Added != 0 || applied.Updated != 0 {
		t.Fatalf("Apply() = %+v, want exactly one skipped entry", applied)
	}
}

func TestExportWithPasswordRequiresMatchingImportPassword(t *testing.T) {
	store := openTestStore(t)
	backupSvc := New(store)
	entrySvc := entries.New(store)

	encKey := bytes.Repeat([]byte{0x22}, vcrypto.MasterKeyLen)
	seedEntry(t, encKey, entrySvc)

	env, err := backupSvc.Export(context.Background(), encKey, "export-password-123")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if env.KDFParams == nil || len(env.Salt) == 0 {
		t.Fatal("Export with a password must set kdfParams/salt")
	}
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	// Wrong import password collapses to the generic invalid-file result,
	// not a distinguishable crypto error.
	result, err := backupSvc.Preview(context.Background(), encKey, raw, "totally-wrong-password")
	if err != nil {
		t.Fatalf("Preview(wrong password) returned a transport error: %v", err)
	}
	if len(result.Errors) == 0 {
		t.Fatal("Preview(wrong password) should report a generic invalid-file error")
	}

	// Correct import password succeeds.
	result, err = backupSvc.Preview(context.Background(), encKey, raw, "export-password-123")
	if err != nil {
		t.Fatalf("Preview(correct password): %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("Preview(correct password) reported errors: %v", result.Errors)
	}
}

func TestPreviewRejectsMalformedFile(t *testing.T) {
	store := openTestStore(t)
	backupSvc := New(store)
	encKey := bytes.Repeat([]byte{0x33}, vcrypto.MasterKeyLen)

	result, err := backupSvc.Preview(context.Background(), encKey, []byte("not json at all"), "")
	if err != nil {
		t.Fatalf("Preview(malformed) returned a transport error, want nil: %v", err)
	}
	if len(result.Errors) == 0 {
		t.Fatal("Preview(malformed) should report a generic invalid-file error")
	}
	if result.Added != 0 || result.Updated != 0 || result.Skipped != 0 {
		t.Fatalf("Preview(malformed) = %+v, want zero counts", result)
	}
}

func TestParseEnvelopeRejectsMixedKDFParamsAndSalt(t *testing.T) {
	raw := []byte(`{"version":1,"createdAt":"2026-01-01T00:00:00Z","kdfParams":{"memoryCost":1,"timeCost":1,"parallelism":1},"salt":null,"export":{"nonce":"AAAAAAAAAAAAAAAA","ciphertext":"AA=="},"note":""}`)
	if _, err := parseEnvelope(raw); err != errInvalidBackupFile {
		t.Fatalf("parseEnvelope(mixed kdfParams/nil salt) = %v, want errInvalidBackupFile", err)
	}
}

func TestParseEnvelopeRejectsUnknownFields(t *testing.T) {
	raw := []byte(`{"version":1,"createdAt":"2026-01-01T00:00:00Z","export":{"nonce":"","ciphertext":""},"note":"","unexpected":true}`)
	if _, err := parseEnvelope(raw); err != errInvalidBackupFile {
		t.Fatalf("parseEnvelope(unknown field) = %v, want errInvalidBackupFile", err)
	}
}

func TestParseEnvelopeRejectsTrailingData(t *testing.T) {
	raw := []byte(`{"version":1,"createdAt":"2026-01-01T00:00:00Z","export":{"nonce":"","ciphertext":""},"note":""}{}`)
	if _, err := parseEnvelope(raw); err != errInvalidBackupFile {
		t.Fatalf("parseEnvelope(trailing data) = %v, want errInvalidBackupFile", err)
	}
}
