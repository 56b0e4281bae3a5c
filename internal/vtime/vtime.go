// Package vtime centralizes the UTC-normalization rule used throughout the
// vault: all datetimes are UTC and timezone-aware on ingress/egress; naive
// values read from storage are treated as UTC.
package vtime

import "time"

// AsUTC returns t normalized to UTC. A naive value (as modernc.org/sqlite
// returns for TEXT-stored timestamps lacking an offset) is assigned the UTC
// location directly rather than being converted as if it were local time.
func AsUTC(t time.Time) time.Time {
	if t.Location() == time.UTC {
		return t
	}
	if _, offset := t.Zone(); offset == 0 {
		y, m, d := t.Date()
		hh, mm, ss := t.Clock()
		return time.Date(y, m, d, hh, mm, ss, t.Nanosecond(), time.UTC)
	}
	return t.UTC()
}

// Now returns the current instant in UTC.
func Now() time.Time {
	return time.Now().UTC()
}
