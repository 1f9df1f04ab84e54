// util/notification_service.go

package util

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	logger "github.com/fortress-iam/gateway/logging"
)

// NotificationService delivers operator alerts for high-severity events
// such as fail-closed policy-engine failures and lockout escalations.
type NotificationService struct {
	webhookURL string
	client     *http.Client
}

func NewNotificationService(webhookURL string) *NotificationService {
	return &NotificationService{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 5 * time.Second},
	}
}

// AlertFailClosed notifies operators that an authorization check was
// denied because the policy engine could not answer.
func (n *NotificationService) AlertFailClosed(ctx context.Context, principalID, action string, cause error) error {
	logger.Error("ALERT: authorization failed closed",
		zap.String("principalID", principalID),
		zap.String("action", action),
		zap.Error(cause))

	return n.post(ctx, map[string]interface{}{
		"alert":        "authz_fail_closed",
		"principal_id": principalID,
		"action":       action,
		"cause":        cause.Error(),
	})
}

// AlertLockoutEscalation notifies operators that an identifier climbed the
// lockout ladder.
func (n *NotificationService) AlertLockoutEscalation(ctx context.Context, identifier, scope, state string) error {
	logger.Warn("ALERT: lockout escalation",
		zap.String("identifier", identifier),
		zap.String("scope", scope),
		zap.String("state", state))

	return n.post(ctx, map[string]interface{}{
		"alert":      "lockout_escalation",
		"identifier": identifier,
		"scope":      scope,
		"state":      state,
	})
}

func (n *NotificationService) post(ctx context.Context, payload map[string]interface{}) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}
	return nil
}
