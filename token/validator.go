// token/validator.go
package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	gw_errors "github.com/fortress-iam/gateway/errors"
	logger "github.com/fortress-iam/gateway/logging"
	"github.com/fortress-iam/gateway/model"
)

// allowedAlgorithms is the explicit signing-algorithm allow-list. Anything
// else, including "none", is rejected before signature verification.
var allowedAlgorithms = []string{"RS256"}

type gatewayClaims struct {
	jwt.RegisteredClaims
	Email    string `json:"email"`
	UserType string `json:"custom:user_type"`
}

// Validator verifies bearer tokens: signature against the key-set cache,
// algorithm allow-list, issuer, audience, and time bounds.
type Validator struct {
	keys     *KeySetCache
	issuer   string
	audience string
	parser   *jwt.Parser
}

func NewValidator(keys *KeySetCache, issuer, audience string) *Validator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(allowedAlgorithms),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(issuer),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &Validator{
		keys:     keys,
		issuer:   issuer,
		audience: audience,
		parser:   jwt.NewParser(opts...),
	}
}

// Validate parses and verifies a bearer token and returns its claims.
func (v *Validator) Validate(ctx context.Context, tokenString string) (*model.Claims, error) {
	claims := &gatewayClaims{}

	parsed, err := v.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("token header has no kid")
		}
		return v.keys.SigningKey(ctx, kid)
	})
	if err != nil {
		return nil, v.translateError(err)
	}
	if !parsed.Valid {
		return nil, gw_errors.ErrTokenInvalid
	}

	if claims.Subject == "" {
		logger.Warn("Token verified but carries no subject")
		return nil, gw_errors.ErrTokenInvalid
	}

	out := &model.Claims{
		Subject:  claims.Subject,
		Email:    claims.Email,
		UserType: claims.UserType,
		Issuer:   claims.Issuer,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Unix()
	}
	return out, nil
}

func (v *Validator) translateError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		return gw_errors.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return gw_errors.ErrIssuerMismatch
	case errors.Is(err, gw_errors.ErrSigningKeyNotFound):
		return gw_errors.ErrTokenInvalid
	case errors.Is(err, gw_errors.ErrDependencyUnavailable):
		return gw_errors.ErrDependencyUnavailable
	case errors.Is(err, gw_errors.ErrRequestTimeout):
		return gw_errors.ErrRequestTimeout
	default:
		logger.Debug("Token validation failed", zap.Error(err))
		return gw_errors.ErrTokenInvalid
	}
}
