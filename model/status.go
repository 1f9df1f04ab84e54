// model/status.go
package model

import "time"

// StatusRecord is the cached enabled/disabled state of one user. It is
// evicted synchronously when a disable/enable/delete event is processed,
// never merely left to expire.
type StatusRecord struct {
	UserID     string    `json:"user_id"`
	Enabled    bool      `json:"enabled"`
	ObservedAt time.Time `json:"observed_at"`
	TTLSeconds int       `json:"ttl"`
}
