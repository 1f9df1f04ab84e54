// idp/provider.go
package idp

import (
	"context"

	"github.com/fortress-iam/gateway/model"
)

// TokenSet is the bundle of tokens issued by the identity provider on a
// successful credential exchange.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
}

// Provider is the boundary to the external identity provider. Credential
// storage, password policy, and MFA all live behind it; the gateway only
// consumes these operations.
type Provider interface {
	ValidateCredentials(ctx context.Context, email, password string) (*TokenSet, error)
	RefreshTokens(ctx context.Context, refreshToken string) (*TokenSet, error)
	RevokeTokens(ctx context.Context, accessToken string) error
	GetEnabledStatus(ctx context.Context, userID string) (bool, error)
	DisableUser(ctx context.Context, userID string) error
	EnableUser(ctx context.Context, userID string) error
	DeleteUser(ctx context.Context, userID string) error
	FetchSigningKeys(ctx context.Context, poolID string) (*model.KeySetRecord, error)
}
