// Package reservation implements the Reservation Engine: advisory,
// gitignore-style path-pattern reservations that signal intent to edit and
// surface conflicts without ever blocking a grant.
package reservation

import "time"

// FileReservation is an advisory declaration over a path pattern.
type FileReservation struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	AgentID     string     `json:"agent_id"`
	PathPattern string     `json:"path_pattern"`
	Exclusive   bool       `json:"exclusive"`
	Reason      string     `json:"reason,omitempty"`
	CreatedTS   time.Time  `json:"created_ts"`
	ExpiresTS   time.Time  `json:"expires_ts"`
	ReleasedTS  *time.Time `json:"released_ts,omitempty"`
}

// IsActive reports whether the reservation is currently in force.
func (r FileReservation) IsActive(now time.Time) bool {
	return r.ReleasedTS == nil && r.ExpiresTS.After(now)
}
