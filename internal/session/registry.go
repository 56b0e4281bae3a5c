// Package session implements the vault's process-wide session registry: a
// single mutex-guarded map from opaque token to per-session secrets. It is
// the only shared mutable state in the process (see vstore for everything
// else, which is transactional).
package session

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

// tokenBytes gives 256 bits of entropy before base64 expansion.
const tokenBytes = 32

// Data is the in-memory record created on successful unlock. EncKey is
// never persisted, logged, or serialized; Destroy zeroes it before the
// struct is released.
type Data struct {
	Token     string
	CSRFToken string
	EncKey    []byte
	CreatedAt time.Time
	LastSeen  time.Time
}

// Registry is safe for concurrent use by multiple request goroutines.
type Registry struct {
	mu          sync.Mutex
	sessions    map[string]*Data
	idleTimeout time.Duration
	now         func() time.Time
}

// New builds a registry that evicts sessions idle longer than idleTimeout.
func New(idleTimeout time.Duration) *Registry {
	return &Registry{
		sessions:    make(map[string]*Data),
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// Create allocates a fresh token and CSRF token for encKey and stores it.
// encKey is copied; the caller's slice is not retained.
func (r *Registry) Create(encKey []byte) (*Data, error) {
	token, err := randToken()
	if err != nil {
		return nil, err
	}
	csrf, err := randToken()
	if err != nil {
		return nil, err
	}

	key := make([]byte, len(encKey))
	copy(key, encKey)

	now := r.now()
	d := &Data{
		Token:     token,
		CSRFToken: csrf,
		EncKey:    key,
		CreatedAt: now,
		LastSeen:  now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[token] = d
	return d, nil
}

// Get returns the session for token, bumping LastSeen, or (nil, false) if
// absent or idle-expired.
func (r *Registry) Get(token string) (*Data, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.sessions[token]
	if !ok {
		return nil, false
	}
	if r.expired(d) {
		r.destroyLocked(token)
		return nil, false
	}
	d.LastSeen = r.now()
	return d, true
}

// Peek returns the session for token without bumping LastSeen, still
// evicting it if already idle-expired.
func (r *Registry) Peek(token string) (*Data, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.sessions[token]
	if !ok {
		return nil, false
	}
	if r.expired(d) {
		r.destroyLocked(token)
		return nil, false
	}
	return d, true
}

// Destroy removes token's session, if present, zeroing its key material.
func (r *Registry) Destroy(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyLocked(token)
}

// Clear destroys every session, e.g. on process shutdown.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for token := range r.sessions {
		r.destroyLocked(token)
	}
}

func (r *Registry) destroyLocked(token string) {
	d, ok := r.sessions[token]
	if !ok {
		return
	}
	zero(d.EncKey)
	delete(r.sessions, token)
}

func (r *Registry) expired(d *Data) bool {
	return r.now().Sub(d.LastSeen) > r.idleTimeout
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func randToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
