package vstore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UnlockThrottleRecord is the singleton exponential-backoff gate state.
// Invariant: FailedAttempts == 0 iff NextAllowedAt is zero.
type UnlockThrottleRecord struct {
	FailedAttempts int
	NextAllowedAt  time.Time // zero value means null
	UpdatedAt      time.Time
}

// GetThrottle auto-creates the row at (0, null) on first access.
func GetThrottle(tx *sql.Tx, now time.Time) (*UnlockThrottleRecord, error) {
	row := tx.QueryRow(`SELECT failed_attempts, next_allowed_at, updated_at FROM unlock_throttle WHERE id = 1`)
	var (
		t   UnlockThrottleRecord
		nxt sql.NullTime
	)
	err := row.Scan(&t.FailedAttempts, &nxt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		zero := UnlockThrottleRecord{UpdatedAt: now}
		if err := PutThrottle(tx, &zero); err != nil {
			return nil, err
		}
		return &zero, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vstore: get throttle: %w", err)
	}
	if nxt.Valid {
		t.NextAllowedAt = nxt.Time
	}
	return &t, nil
}

func PutThrottle(tx *sql.Tx, t *UnlockThrottleRecord) error {
	var next any
	if !t.NextAllowedAt.IsZero() {
		next = t.NextAllowedAt
	}
	_, err := tx.Exec(`INSERT INTO unlock_throttle (id, failed_attempts, next_allowed_at, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET failed_attempts = excluded.failed_attempts,
			next_allowed_at = excluded.next_allowed_at,
			updated_at = excluded.updated_at`,
		t.FailedAttempts, next, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("vstore: put throttle: %w", err)
	}
	return nil
}
