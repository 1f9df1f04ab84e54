// token/keyset.go
package token

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/fortress-iam/gateway/db"
	gw_errors "github.com/fortress-iam/gateway/errors"
	"github.com/fortress-iam/gateway/idp"
	logger "github.com/fortress-iam/gateway/logging"
	"github.com/fortress-iam/gateway/model"
)

// KeySetCache resolves signing keys by key id from the cached JWKS
// document, refreshing from the identity provider when needed. The cache
// TTL is long (24h); key rotation is handled by the forced refresh on a
// kid miss, not by a short TTL.
type KeySetCache struct {
	provider idp.Provider
	poolID   string
}

func NewKeySetCache(provider idp.Provider, poolID string) *KeySetCache {
	return &KeySetCache{provider: provider, poolID: poolID}
}

// SigningKey returns the RSA public key for a key id. A kid miss against
// the cached document triggers exactly one forced refresh from the
// identity provider before failing.
func (kc *KeySetCache) SigningKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	record, err := db.GetCachedKeySet(ctx, kc.poolID)
	if err != nil {
		logger.Warn("Key set cache read failed, refreshing from provider", zap.Error(err))
		record = nil
	}

	if record != nil {
		if jwk := record.Key(kid); jwk != nil {
			return parseRSAPublicKey(jwk)
		}
	}

	// Unknown kid (or empty cache): force one synchronous refresh.
	record, err = kc.Refresh(ctx)
	if err != nil {
		return nil, err
	}

	jwk := record.Key(kid)
	if jwk == nil {
		logger.Warn("Signing key not present after refresh",
			zap.String("poolID", kc.poolID),
			zap.String("kid", kid))
		return nil, gw_errors.ErrSigningKeyNotFound
	}
	return parseRSAPublicKey(jwk)
}

// Refresh fetches the JWKS document from the identity provider and
// rewrites the cached record.
func (kc *KeySetCache) Refresh(ctx context.Context) (*model.KeySetRecord, error) {
	record, err := kc.provider.FetchSigningKeys(ctx, kc.poolID)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh signing keys: %w", err)
	}

	if err := db.CacheKeySet(ctx, record); err != nil {
		// The fetched keys are still usable for this request.
		logger.Warn("Failed to cache refreshed key set", zap.Error(err))
	}
	return record, nil
}

func parseRSAPublicKey(jwk *model.JSONWebKey) (*rsa.PublicKey, error) {
	if jwk.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type %s: %w", jwk.Kty, gw_errors.ErrSigningKeyNotFound)
	}

	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes).Int64()

	return &rsa.PublicKey{N: n, E: int(e)}, nil
}
