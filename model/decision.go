// model/decision.go
package model

import "time"

// Authorization decisions as returned by the policy engine.
const (
	DecisionAllow = "ALLOW"
	DecisionDeny  = "DENY"
)

type Resource struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// CheckRequest is one authorization question: may this principal perform
// this action on this resource, given the optional request context?
type CheckRequest struct {
	Principal Principal              `json:"principal"`
	Action    string                 `json:"action"`
	Resource  Resource               `json:"resource"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// Decision is the outcome of a single authorization check.
type Decision struct {
	Decision string   `json:"decision"`
	Reasons  []string `json:"reasons,omitempty"`
}

func (d Decision) Allowed() bool {
	return d.Decision == DecisionAllow
}

// DecisionRecord is the cached form of a Decision. Version carries the
// per-principal invalidation marker observed when the record was written;
// readers discard records older than the current marker.
type DecisionRecord struct {
	Decision   string    `json:"decision"`
	Reasons    []string  `json:"reasons,omitempty"`
	ComputedAt time.Time `json:"computed_at"`
	TTLSeconds int       `json:"ttl"`
	Version    int64     `json:"version"`
}
