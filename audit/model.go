// audit/model.go
package audit

import (
	"encoding/json"
	"time"
)

// Security event types recorded by the gateway.
const (
	EventDecision          = "authz_decision"
	EventFailClosed        = "authz_fail_closed"
	EventLockout           = "lockout_escalation"
	EventCacheInvalidation = "cache_invalidation"
)

type SecurityEvent struct {
	Timestamp    time.Time       `json:"timestamp"`
	EventType    string          `json:"event_type"`
	PrincipalID  string          `json:"principal_id,omitempty"`
	Action       string          `json:"action,omitempty"`
	ResourceType string          `json:"resource_type,omitempty"`
	ResourceID   string          `json:"resource_id,omitempty"`
	Decision     string          `json:"decision,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
}
