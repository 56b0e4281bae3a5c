// Package entries implements CRUD over decrypted vault entries: validation,
// canonical-JSON encryption under the session key, and metadata-only
// summaries for listing.
package entries

import (
	"fmt"
	"net/url"
	"regexp"
	"time"
)

var tagPattern = regexp.MustCompile(`^[A-Za-z0-9 _-]+$`)

// Entry is the plaintext credential record. It is never persisted in the
// clear — only its AES-GCM ciphertext is.
type Entry struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url,omitempty"`
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	Notes     string    `json:"notes,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Favorite  bool      `json:"favorite"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Summary is the list-view projection: password and notes must never
// appear here.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Username  string    `json:"username"`
	URL       string    `json:"url,omitempty"`
	Favorite  bool      `json:"favorite"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (e Entry) ToSummary() Summary {
	return Summary{
		ID:        e.ID,
		Title:     e.Title,
		Username:  e.Username,
		URL:       e.URL,
		Favorite:  e.Favorite,
		UpdatedAt: e.UpdatedAt,
	}
}

// Validate enforces the field-level invariants from the data model. It does
// not check id or updatedAt, which are assigned by the service.
func (e Entry) Validate() error {
	if l := len(e.Title); l < 1 || l > 128 {
		return fmt.Errorf("title must be 1-128 characters")
	}
	if l := len(e.Username); l < 1 || l > 128 {
		return fmt.Errorf("username must be 1-128 characters")
	}
	if l := len(e.Password); l < 1 || l > 256 {
		return fmt.Errorf("password must be 1-256 characters")
	}
	if len(e.Notes) > 2000 {
		return fmt.Errorf("notes must be at most 2000 characters")
	}
	if len(e.Tags) > 10 {
		return fmt.Errorf("at most 10 tags allowed")
	}
	for _, t := range e.Tags {
		if l := len(t); l < 1 || l > 24 || !tagPattern.MatchString(t) {
			return fmt.Errorf("tags may only contain letters, numbers, spaces, '-' or '_', 1-24 characters")
		}
	}
	if e.URL != "" {
		if err := validateURL(e.URL); err != nil {
			return err
		}
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("url must be well-formed")
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("url must be http(s)")
	}
	if u.Host == "" {
		return fmt.Errorf("url must include a host")
	}
	return nil
}
