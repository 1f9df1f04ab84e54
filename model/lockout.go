// model/lockout.go
package model

import "time"

// Lockout scopes. Failures are counted independently per (identifier, scope).
const (
	LockoutScopeIP          = "ip"
	LockoutScopeEmail       = "email"
	LockoutScopeUser        = "user"
	LockoutScopeServiceRole = "service_role"
)

// Lockout ladder states.
const (
	LockoutStateNormal    = "normal"
	LockoutStateWarn      = "warn"
	LockoutStateEscalate1 = "escalate_1"
	LockoutStateEscalate2 = "escalate_2"
	LockoutStateEscalate3 = "escalate_3"
)

// LockoutState is the tracker's answer after recording one attempt.
type LockoutState struct {
	Identifier   string    `json:"identifier"`
	Scope        string    `json:"scope"`
	State        string    `json:"state"`
	FailureCount int       `json:"failure_count"`
	Locked       bool      `json:"locked"`
	LockedUntil  time.Time `json:"locked_until,omitempty"`
}
