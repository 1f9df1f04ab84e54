// authz/avp_client.go
package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	gw_errors "github.com/fortress-iam/gateway/errors"
	logger "github.com/fortress-iam/gateway/logging"
	"github.com/fortress-iam/gateway/model"
)

// Cedar entity namespace shared with the policy store. Pre-existing
// policies reference these types, so they must match exactly.
const (
	entityNamespace  = "Fortress"
	actionEntityType = "Fortress::Action"
)

// AVPClient adapts an Amazon-Verified-Permissions-style policy engine to
// the PolicyClient interface: Cedar-shaped entity references, typed
// context values, and an error translation table.
type AVPClient struct {
	engineURL     string
	policyStoreID string
	client        *http.Client
}

func NewAVPClient(engineURL, policyStoreID string, timeout time.Duration) *AVPClient {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &AVPClient{
		engineURL:     engineURL,
		policyStoreID: policyStoreID,
		client:        &http.Client{Timeout: timeout},
	}
}

type entityReference struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
}

type actionReference struct {
	ActionType string `json:"actionType"`
	ActionID   string `json:"actionId"`
}

type avpRequest struct {
	PolicyStoreID string                 `json:"policyStoreId"`
	Principal     entityReference        `json:"principal"`
	Action        actionReference        `json:"action"`
	Resource      entityReference        `json:"resource"`
	Context       map[string]interface{} `json:"context,omitempty"`
}

type avpResponse struct {
	Decision            string `json:"decision"`
	DeterminingPolicies []struct {
		PolicyID string `json:"policyId"`
	} `json:"determiningPolicies"`
	Errors []struct {
		ErrorDescription string `json:"errorDescription"`
	} `json:"errors"`
}

func (c *AVPClient) IsAuthorized(ctx context.Context, req model.CheckRequest) (*model.Decision, error) {
	body := c.buildRequest(req)

	var resp avpResponse
	if err := c.post(ctx, "/is-authorized", body, &resp); err != nil {
		return nil, err
	}
	return translateResponse(&resp), nil
}

// BatchIsAuthorized evaluates up to MaxBatchSize requests in one engine
// call. Results come back in input order; per-item engine errors are
// reported in the item's Err without failing the whole batch.
func (c *AVPClient) BatchIsAuthorized(ctx context.Context, reqs []model.CheckRequest) ([]BatchResult, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	if len(reqs) > MaxBatchSize {
		return nil, gw_errors.ErrBatchTooLarge
	}

	batch := struct {
		PolicyStoreID string       `json:"policyStoreId"`
		Requests      []avpRequest `json:"requests"`
	}{PolicyStoreID: c.policyStoreID}
	for _, req := range reqs {
		batch.Requests = append(batch.Requests, c.buildRequest(req))
	}

	var resp struct {
		Results []avpResponse `json:"results"`
	}
	if err := c.post(ctx, "/batch-is-authorized", batch, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) != len(reqs) {
		return nil, fmt.Errorf("engine returned %d results for %d requests: %w",
			len(resp.Results), len(reqs), gw_errors.ErrEngineUnavailable)
	}

	results := make([]BatchResult, len(reqs))
	for i := range resp.Results {
		item := &resp.Results[i]
		if len(item.Errors) > 0 {
			results[i] = BatchResult{Err: fmt.Errorf("engine item error: %s", item.Errors[0].ErrorDescription)}
			continue
		}
		results[i] = BatchResult{Decision: translateResponse(item)}
	}
	return results, nil
}

func (c *AVPClient) buildRequest(req model.CheckRequest) avpRequest {
	out := avpRequest{
		PolicyStoreID: c.policyStoreID,
		Principal: entityReference{
			EntityType: principalEntityType(req.Principal.Type),
			EntityID:   req.Principal.ID,
		},
		Action: actionReference{
			ActionType: actionEntityType,
			ActionID:   req.Action,
		},
		Resource: entityReference{
			EntityType: fmt.Sprintf("%s::%s", entityNamespace, req.Resource.Type),
			EntityID:   req.Resource.ID,
		},
	}

	contextMap := map[string]interface{}{}
	for k, v := range req.Context {
		contextMap[k] = v
	}
	if len(req.Principal.Attributes) > 0 {
		contextMap["principalAttributes"] = req.Principal.Attributes
	}
	if len(contextMap) > 0 {
		out.Context = map[string]interface{}{"contextMap": convertContext(contextMap)}
	}
	return out
}

func principalEntityType(principalType string) string {
	if principalType == model.PrincipalTypeAdmin {
		return fmt.Sprintf("%s::AdminUser", entityNamespace)
	}
	return fmt.Sprintf("%s::User", entityNamespace)
}

// convertContext annotates plain values with the engine's type tags.
func convertContext(data map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(data))
	for key, value := range data {
		result[key] = convertValue(value)
	}
	return result
}

func convertValue(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return map[string]interface{}{"string": v}
	case bool:
		return map[string]interface{}{"boolean": v}
	case int:
		return map[string]interface{}{"long": v}
	case int64:
		return map[string]interface{}{"long": v}
	case float64:
		return map[string]interface{}{"long": int64(v)}
	case []interface{}:
		set := make([]interface{}, 0, len(v))
		for _, item := range v {
			set = append(set, convertValue(item))
		}
		return map[string]interface{}{"set": set}
	case map[string]interface{}:
		return map[string]interface{}{"record": convertContext(v)}
	case map[string]string:
		record := make(map[string]interface{}, len(v))
		for k, s := range v {
			record[k] = map[string]interface{}{"string": s}
		}
		return map[string]interface{}{"record": record}
	default:
		return map[string]interface{}{"string": fmt.Sprintf("%v", v)}
	}
}

func translateResponse(resp *avpResponse) *model.Decision {
	decision := resp.Decision
	if decision != model.DecisionAllow {
		decision = model.DecisionDeny
	}

	// Determining policies are kept for server-side diagnosis only and are
	// never returned to the caller of the gateway.
	var reasons []string
	if decision == model.DecisionDeny {
		for _, p := range resp.DeterminingPolicies {
			if p.PolicyID != "" {
				reasons = append(reasons, fmt.Sprintf("Policy: %s", p.PolicyID))
			}
		}
	}

	return &model.Decision{Decision: decision, Reasons: reasons}
}

func (c *AVPClient) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal engine request: %w", err)
	}

	url := fmt.Sprintf("%s/policy-stores/%s%s", c.engineURL, c.policyStoreID, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build engine request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: %v", gw_errors.ErrRequestTimeout, err)
		}
		return fmt.Errorf("%w: %v", gw_errors.ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return translateHTTPError(resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode engine response: %w", err)
	}
	return nil
}

func translateHTTPError(status int) error {
	switch {
	case status == http.StatusBadRequest:
		return gw_errors.ErrInvalidAuthzRequest
	case status == http.StatusNotFound:
		return gw_errors.ErrPolicyStoreNotFound
	case status == http.StatusTooManyRequests:
		logger.Warn("Policy engine throttling", zap.Int("status", status))
		return gw_errors.ErrEngineUnavailable
	default:
		return fmt.Errorf("engine returned status %d: %w", status, gw_errors.ErrEngineUnavailable)
	}
}
