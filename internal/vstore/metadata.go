package vstore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// VaultMetadata is the singleton row describing vault initialization state.
// Its presence is what distinguishes NO_VAULT from LOCKED/UNLOCKED.
type VaultMetadata struct {
	SchemaVersion int
	Hint          string
	Argon2Salt    []byte
	MemoryCost    uint32
	TimeCost      uint32
	Parallelism   uint8
	PWVerifier    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// GetVaultMetadata returns (nil, nil) if the vault has never been set up.
func GetVaultMetadata(tx *sql.Tx) (*VaultMetadata, error) {
	row := tx.QueryRow(`SELECT schema_version, hint, argon2_salt, memory_cost, time_cost,
		parallelism, pw_verifier, created_at, updated_at FROM vault_metadata WHERE id = 1`)

	var (
		m    VaultMetadata
		hint sql.NullString
	)
	err := row.Scan(&m.SchemaVersion, &hint, &m.Argon2Salt, &m.MemoryCost, &m.TimeCost,
		&m.Parallelism, &m.PWVerifier, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vstore: get vault metadata: %w", err)
	}
	m.Hint = hint.String
	return &m, nil
}

// InsertVaultMetadata writes the singleton row. Fails with a unique/check
// constraint error if a row already exists; callers must check
// GetVaultMetadata first to produce a VAULT_EXISTS error instead.
func InsertVaultMetadata(tx *sql.Tx, m *VaultMetadata) error {
	_, err := tx.Exec(`INSERT INTO vault_metadata
		(id, schema_version, hint, argon2_salt, memory_cost, time_cost, parallelism, pw_verifier, created_at, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.SchemaVersion, nullableString(m.Hint), m.Argon2Salt, m.MemoryCost, m.TimeCost,
		m.Parallelism, m.PWVerifier, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("vstore: insert vault metadata: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
