// idp/http_client.go
package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	gw_errors "github.com/fortress-iam/gateway/errors"
	logger "github.com/fortress-iam/gateway/logging"
	"github.com/fortress-iam/gateway/model"
)

// HTTPClient talks to a Cognito-style identity provider over HTTP. All
// calls carry the configured timeout; idempotent reads are retried once
// before surfacing ErrDependencyUnavailable.
type HTTPClient struct {
	baseURL string
	poolID  string
	client  *http.Client
}

func NewHTTPClient(baseURL, poolID string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		poolID:  poolID,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) ValidateCredentials(ctx context.Context, email, password string) (*TokenSet, error) {
	payload := map[string]string{"email": email, "password": password}

	var result struct {
		Tokens TokenSet `json:"tokens"`
	}
	status, err := c.post(ctx, c.poolURL("/auth/initiate"), payload, &result)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, gw_errors.ErrInvalidCredentials
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("identity provider returned status %d: %w", status, gw_errors.ErrDependencyUnavailable)
	}
	return &result.Tokens, nil
}

func (c *HTTPClient) RefreshTokens(ctx context.Context, refreshToken string) (*TokenSet, error) {
	payload := map[string]string{"refresh_token": refreshToken}

	var result struct {
		Tokens TokenSet `json:"tokens"`
	}
	status, err := c.post(ctx, c.poolURL("/auth/refresh"), payload, &result)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, gw_errors.ErrTokenInvalid
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("identity provider returned status %d: %w", status, gw_errors.ErrDependencyUnavailable)
	}
	return &result.Tokens, nil
}

func (c *HTTPClient) RevokeTokens(ctx context.Context, accessToken string) error {
	payload := map[string]string{"access_token": accessToken}
	status, err := c.post(ctx, c.poolURL("/auth/revoke"), payload, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return fmt.Errorf("identity provider returned status %d: %w", status, gw_errors.ErrDependencyUnavailable)
	}
	return nil
}

// GetEnabledStatus reports whether the user may currently act. Retried
// once; any remaining failure is a DependencyUnavailable condition, never
// a silent "disabled".
func (c *HTTPClient) GetEnabledStatus(ctx context.Context, userID string) (bool, error) {
	var result struct {
		Enabled bool   `json:"enabled"`
		Status  string `json:"status"`
	}

	status, err := c.getWithRetry(ctx, c.poolURL("/users/"+userID+"/status"), &result)
	if err != nil {
		return false, err
	}
	if status == http.StatusNotFound {
		return false, gw_errors.ErrUserDisabled
	}
	if status != http.StatusOK {
		return false, fmt.Errorf("identity provider returned status %d: %w", status, gw_errors.ErrDependencyUnavailable)
	}
	return result.Enabled, nil
}

func (c *HTTPClient) DisableUser(ctx context.Context, userID string) error {
	return c.userLifecycle(ctx, http.MethodPost, "/users/"+userID+"/disable")
}

func (c *HTTPClient) EnableUser(ctx context.Context, userID string) error {
	return c.userLifecycle(ctx, http.MethodPost, "/users/"+userID+"/enable")
}

func (c *HTTPClient) DeleteUser(ctx context.Context, userID string) error {
	return c.userLifecycle(ctx, http.MethodDelete, "/users/"+userID)
}

// FetchSigningKeys pulls the JWKS document for a user pool from the
// provider's well-known endpoint.
func (c *HTTPClient) FetchSigningKeys(ctx context.Context, poolID string) (*model.KeySetRecord, error) {
	url := fmt.Sprintf("%s/%s/.well-known/jwks.json", c.baseURL, poolID)

	var jwks struct {
		Keys []model.JSONWebKey `json:"keys"`
	}
	status, err := c.getWithRetry(ctx, url, &jwks)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d: %w", status, gw_errors.ErrDependencyUnavailable)
	}
	if len(jwks.Keys) == 0 {
		return nil, fmt.Errorf("no keys found in JWKS for pool %s", poolID)
	}

	logger.Info("Fetched signing keys",
		zap.String("poolID", poolID),
		zap.Int("keys", len(jwks.Keys)))

	return &model.KeySetRecord{
		PoolID:     poolID,
		Keys:       jwks.Keys,
		FetchedAt:  time.Now().UTC(),
		TTLSeconds: int(viper.GetDuration("cache.keySetTTL").Seconds()),
	}, nil
}

func (c *HTTPClient) poolURL(path string) string {
	return fmt.Sprintf("%s/%s%s", c.baseURL, c.poolID, path)
}

func (c *HTTPClient) userLifecycle(ctx context.Context, method, path string) error {
	req, err := http.NewRequestWithContext(ctx, method, c.poolURL(path), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", gw_errors.ErrDependencyUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("identity provider returned status %d: %w", resp.StatusCode, gw_errors.ErrDependencyUnavailable)
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, url string, payload, out interface{}) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", gw_errors.ErrDependencyUnavailable, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	} else {
		io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, nil
}

// getWithRetry performs an idempotent GET, retrying once on transport
// errors before giving up.
func (c *HTTPClient) getWithRetry(ctx context.Context, url string, out interface{}) (int, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return 0, fmt.Errorf("failed to build request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if out != nil && resp.StatusCode == http.StatusOK {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				resp.Body.Close()
				return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
			}
		} else {
			io.Copy(io.Discard, resp.Body)
		}
		resp.Body.Close()
		return resp.StatusCode, nil
	}
	if ctx.Err() == context.DeadlineExceeded {
		return 0, fmt.Errorf("%w: %v", gw_errors.ErrRequestTimeout, lastErr)
	}
	return 0, fmt.Errorf("%w: %v", gw_errors.ErrDependencyUnavailable, lastErr)
}
