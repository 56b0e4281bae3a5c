package entries

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"localvault/internal/apperr"
	"localvault/internal/audit"
	"localvault/internal/vcrypto"
	"localvault/internal/vstore"
)

// Service is the entry CRUD orchestrator. It never sees the master
// password; it only ever receives the already-derived session enc_key.
type Service struct {
	store *vstore.Store
	now   func() time.Time
}

func New(store *vstore.Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Create validates input, allocates an id, encrypts, and persists it.
func (s *Service) Create(ctx context.Context, encKey []byte, input Entry) (*Entry, error) {
	if err := input.Validate(); err != nil {
		return nil, apperr.ErrValidation
	}

	now := s.now()
	e := input
	e.ID = uuid.NewString()
	e.UpdatedAt = now

	nonce, ciphertext, err := vcrypto.EncryptJSON(encKey, e)
	if err != nil {
		return nil, apperr.ErrInternal
	}

	err = s.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := vstore.InsertEntry(tx, &vstore.EntryRecord{
			ID: e.ID, Nonce: nonce, Ciphertext: ciphertext, CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			return err
		}
		return audit.Write(tx, now, "ENTRY_CREATE", audit.Success, map[string]any{"entry_id": e.ID})
	})
	if err != nil {
		return nil, apperr.ErrInternal
	}
	return &e, nil
}

// Get fetches and decrypts one entry. A crypto integrity failure on stored
// ciphertext is structural damage and surfaces as ENTRY_UNAVAILABLE without
// an audit write, per the spec's get contract.
func (s *Service) Get(ctx context.Context, encKey []byte, id string) (*Entry, error) {
	now := s.now()
	var e Entry
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		rec, err := vstore.GetEntry(tx, id)
		if errors.Is(err, vstore.ErrNotFound) {
			return apperr.ErrEntryNotFound
		}
		if err != nil {
			return apperr.ErrInternal
		}
		if derr := vcrypto.DecryptJSON(encKey, rec.Nonce, rec.Ciphertext, &e); derr != nil {
			return apperr.ErrEntryUnavailable
		}
		return nil
	})
	if errors.Is(err, apperr.ErrEntryNotFound) {
		auditErr := s.store.WithTx(ctx, func(tx *sql.Tx) error {
			return audit.Write(tx, now, "ENTRY_GET", audit.Failure, map[string]any{"reason": "not_found"})
		})
		if auditErr != nil {
			return nil, apperr.ErrInternal
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// List decrypts every record and returns summaries sorted by updatedAt
// descending.
func (s *Service) List(ctx context.Context, encKey []byte) ([]Summary, error) {
	var summaries []Summary
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		records, err := vstore.ListEntries(tx)
		if err != nil {
			return err
		}
		for _, rec := range records {
			var e Entry
			if err := vcrypto.DecryptJSON(encKey, rec.Nonce, rec.Ciphertext, &e); err != nil {
				return apperr.ErrEntryUnavailable
			}
			summaries = append(summaries, e.ToSummary())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	if summaries == nil {
		summaries = []Summary{}
	}
	return summaries, nil
}

// Update replaces the entry's payload under the same id with a fresh nonce
// and updatedAt.
func (s *Service) Update(ctx context.Context, encKey []byte, id string, input Entry) (*Entry, error) {
	if err := input.Validate(); err != nil {
		return nil, apperr.ErrValidation
	}

	now := s.now()
	e := input
	e.ID = id
	e.UpdatedAt = now

	nonce, ciphertext, err := vcrypto.EncryptJSON(encKey, e)
	if err != nil {
		return nil, apperr.ErrInternal
	}

	err = s.store.WithTx(ctx, func(tx *sql.Tx) error {
		uerr := vstore.UpdateEntry(tx, id, nonce, ciphertext, now)
		if errors.Is(uerr, vstore.ErrNotFound) {
			return apperr.ErrEntryNotFound
		}
		if uerr != nil {
			return apperr.ErrInternal
		}
		return audit.Write(tx, now, "ENTRY_UPDATE", audit.Success, map[string]any{"entry_id": id})
	})
	if errors.Is(err, apperr.ErrEntryNotFound) {
		auditErr := s.store.WithTx(ctx, func(tx *sql.Tx) error {
			return audit.Write(tx, now, "ENTRY_UPDATE", audit.Failure, map[string]any{"reason": "not_found"})
		})
		if auditErr != nil {
			return nil, apperr.ErrInternal
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Delete removes an entry by id.
func (s *Service) Delete(ctx context.Context, id string) error {
	now := s.now()
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		derr := vstore.DeleteEntry(tx, id)
		if errors.Is(derr, vstore.ErrNotFound) {
			return apperr.ErrEntryNotFound
		}
		if derr != nil {
			return apperr.ErrInternal
		}
		return audit.Write(tx, now, "ENTRY_DELETE", audit.Success, map[string]any{"entry_id": id})
	})
	if errors.Is(err, apperr.ErrEntryNotFound) {
		auditErr := s.store.WithTx(ctx, func(tx *sql.Tx) error {
			return audit.Write(tx, now, "ENTRY_DELETE", audit.Failure, map[string]any{"reason": "not_found"})
		})
		if auditErr != nil {
			return apperr.ErrInternal
		}
		return err
	}
	return err
}
