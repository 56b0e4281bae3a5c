package vstore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by repository lookups that find no matching row.
var ErrNotFound = errors.New("vstore: not found")

// EntryRecord is the encrypted-at-rest representation of a vault entry.
type EntryRecord struct {
	ID         string
	Nonce      []byte
	Ciphertext []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func InsertEntry(tx *sql.Tx, r *EntryRecord) error {
	_, err := tx.Exec(`INSERT INTO entries (id, nonce, ciphertext, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`, r.ID, r.Nonce, r.Ciphertext, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("vstore: insert entry: %w", err)
	}
	return nil
}

// GetEntry returns ErrNotFound if id does not exist.
func GetEntry(tx *sql.Tx, id string) (*EntryRecord, error) {
	row := tx.QueryRow(`SELECT id, nonce, ciphertext, created_at, updated_at FROM entries WHERE id = ?`, id)
	var r EntryRecord
	err := row.Scan(&r.ID, &r.Nonce, &r.Ciphertext, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("vstore: get entry: %w", err)
	}
	return &r, nil
}

func ListEntries(tx *sql.Tx) ([]*EntryRecord, error) {
	rows, err := tx.Query(`SELECT id, nonce, ciphertext, created_at, updated_at FROM entries`)
	if err != nil {
		return nil, fmt.Errorf("vstore: list entries: %w", err)
	}
	defer rows.Close()

	var out []*EntryRecord
	for rows.Next() {
		var r EntryRecord
		if err := rows.Scan(&r.ID, &r.Nonce, &r.Ciphertext, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("vstore: scan entry: %w", err)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateEntry overwrites nonce/ciphertext/updated_at for id. Returns
// ErrNotFound if id does not exist.
func UpdateEntry(tx *sql.Tx, id string, nonce, ciphertext []byte, updatedAt time.Time) error {
	res, err := tx.Exec(`UPDATE entries SET nonce = ?, ciphertext = ?, updated_at = ? WHERE id = ?`,
		nonce, ciphertext, updatedAt, id)
	if err != nil {
		return fmt.Errorf("vstore: update entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("vstore: update entry rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertEntry inserts unknown ids and overwrites known ones in a single
// statement; backup import apply uses it once the disposition for each
// entry (add vs. update) has already been decided.
func UpsertEntry(tx *sql.Tx, r *EntryRecord) error {
	_, err := tx.Exec(`INSERT INTO entries (id, nonce, ciphertext, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET nonce = excluded.nonce, ciphertext = excluded.ciphertext, updated_at = excluded.updated_at`,
		r.ID, r.Nonce, r.Ciphertext, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("vstore: upsert entry: %w", err)
	}
	return nil
}

// DeleteEntry returns ErrNotFound if id does not exist.
func DeleteEntry(tx *sql.Tx, id string) error {
	res, err := tx.Exec(`DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("vstore: delete entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("vstore: delete entry rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
