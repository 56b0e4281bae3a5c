package audit

import (
	"database/sql"

	"localvault/internal/vstore"
	"localvault/internal/vtime"
)

// Event is the API-facing shape of an audit record (ts desc from List).
type Event struct {
	ID      string         `json:"id"`
	TS      string         `json:"ts"`
	Type    string         `json:"type"`
	Outcome string         `json:"outcome"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// List returns every audit record, most recent first.
func List(tx *sql.Tx) ([]Event, error) {
	records, err := vstore.ListAudit(tx)
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(records))
	for _, r := range records {
		events = append(events, Event{
			ID:      r.ID,
			TS:      vtime.AsUTC(r.TS).Format("2006-01-02T15:04:05Z07:00"),
			Type:    r.Type,
			Outcome: r.Outcome,
			Meta:    r.Meta,
		})
	}
	return events, nil
}
