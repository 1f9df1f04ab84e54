// token/validator_test.go
package token_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortress-iam/gateway/db"
	gw_errors "github.com/fortress-iam/gateway/errors"
	"github.com/fortress-iam/gateway/idp"
	logger "github.com/fortress-iam/gateway/logging"
	"github.com/fortress-iam/gateway/model"
	"github.com/fortress-iam/gateway/token"
)

const (
	testPoolID = "us-east-1_testpool"
	testIssuer = "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_testpool"
)

type fakeKeyProvider struct {
	keys       map[string]*rsa.PublicKey
	fetchErr   error
	fetchCalls int
}

func (f *fakeKeyProvider) FetchSigningKeys(ctx context.Context, poolID string) (*model.KeySetRecord, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	record := &model.KeySetRecord{PoolID: poolID, FetchedAt: time.Now().UTC()}
	for kid, pub := range f.keys {
		record.Keys = append(record.Keys, model.JSONWebKey{
			Kty: "RSA",
			Use: "sig",
			Alg: "RS256",
			Kid: kid,
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	return record, nil
}

func (f *fakeKeyProvider) ValidateCredentials(ctx context.Context, email, password string) (*idp.TokenSet, error) {
	return nil, nil
}
func (f *fakeKeyProvider) RefreshTokens(ctx context.Context, refreshToken string) (*idp.TokenSet, error) {
	return nil, nil
}
func (f *fakeKeyProvider) RevokeTokens(ctx context.Context, accessToken string) error    { return nil }
func (f *fakeKeyProvider) GetEnabledStatus(ctx context.Context, userID string) (bool, error) {
	return true, nil
}
func (f *fakeKeyProvider) DisableUser(ctx context.Context, userID string) error { return nil }
func (f *fakeKeyProvider) EnableUser(ctx context.Context, userID string) error  { return nil }
func (f *fakeKeyProvider) DeleteUser(ctx context.Context, userID string) error  { return nil }

func setupRedis(t *testing.T) {
	logger.InitLogger(t.TempDir())
	mr := miniredis.RunT(t)
	db.RedisClient = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	viper.Set("cache.keySetTTL", "24h")
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(key)
	require.NoError(t, err)
	return signed
}

func defaultClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":              "user-1",
		"email":            "alice@example.com",
		"custom:user_type": "end_user",
		"iss":              testIssuer,
		"exp":              time.Now().Add(time.Hour).Unix(),
		"iat":              time.Now().Unix(),
	}
}

func TestValidator(t *testing.T) {
	setupRedis(t)
	ctx := context.Background()

	keyA, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keyB, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	provider := &fakeKeyProvider{keys: map[string]*rsa.PublicKey{"kid-a": &keyA.PublicKey}}
	keys := token.NewKeySetCache(provider, testPoolID)
	validator := token.NewValidator(keys, testIssuer, "")

	t.Run("ValidTokenYieldsClaims", func(t *testing.T) {
		claims, err := validator.Validate(ctx, signToken(t, keyA, "kid-a", defaultClaims()))
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.Subject)
		assert.Equal(t, "alice@example.com", claims.Email)
		assert.Equal(t, "end_user", claims.UserType)
		assert.Equal(t, 1, provider.fetchCalls)
	})

	t.Run("SecondTokenServedFromCachedKeySet", func(t *testing.T) {
		_, err := validator.Validate(ctx, signToken(t, keyA, "kid-a", defaultClaims()))
		require.NoError(t, err)
		assert.Equal(t, 1, provider.fetchCalls)
	})

	t.Run("ExpiredTokenRejected", func(t *testing.T) {
		claims := defaultClaims()
		claims["exp"] = time.Now().Add(-time.Minute).Unix()
		_, err := validator.Validate(ctx, signToken(t, keyA, "kid-a", claims))
		assert.ErrorIs(t, err, gw_errors.ErrTokenExpired)
	})

	t.Run("WrongIssuerRejected", func(t *testing.T) {
		claims := defaultClaims()
		claims["iss"] = "https://evil.example.com"
		_, err := validator.Validate(ctx, signToken(t, keyA, "kid-a", claims))
		assert.ErrorIs(t, err, gw_errors.ErrIssuerMismatch)
	})

	t.Run("SymmetricAlgorithmRejected", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, defaultClaims())
		tok.Header["kid"] = "kid-a"
		signed, err := tok.SignedString([]byte("shared-secret"))
		require.NoError(t, err)

		_, err = validator.Validate(ctx, signed)
		assert.ErrorIs(t, err, gw_errors.ErrTokenInvalid)
	})

	t.Run("MissingSubjectRejected", func(t *testing.T) {
		claims := defaultClaims()
		delete(claims, "sub")
		_, err := validator.Validate(ctx, signToken(t, keyA, "kid-a", claims))
		assert.ErrorIs(t, err, gw_errors.ErrTokenInvalid)
	})

	t.Run("UnknownKidForcesExactlyOneRefresh", func(t *testing.T) {
		before := provider.fetchCalls
		_, err := validator.Validate(ctx, signToken(t, keyB, "kid-b", defaultClaims()))
		assert.ErrorIs(t, err, gw_errors.ErrTokenInvalid)
		assert.Equal(t, before+1, provider.fetchCalls)
	})

	t.Run("RotatedKeyPickedUpOnRefresh", func(t *testing.T) {
		provider.keys["kid-b"] = &keyB.PublicKey

		claims, err := validator.Validate(ctx, signToken(t, keyB, "kid-b", defaultClaims()))
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.Subject)
	})

	t.Run("TamperedSignatureRejected", func(t *testing.T) {
		signed := signToken(t, keyB, "kid-a", defaultClaims()) // signed by B, claims kid A
		_, err := validator.Validate(ctx, signed)
		assert.ErrorIs(t, err, gw_errors.ErrTokenInvalid)
	})
}

func TestValidatorKeyFetchFailures(t *testing.T) {
	ctx := context.Background()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	// A provider outage or deadline during the forced JWKS refresh must
	// surface as a retryable condition, never as a terminal bad-token error.
	cases := []struct {
		name     string
		fetchErr error
		want     error
	}{
		{"Timeout", gw_errors.ErrRequestTimeout, gw_errors.ErrRequestTimeout},
		{"Outage", gw_errors.ErrDependencyUnavailable, gw_errors.ErrDependencyUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setupRedis(t)
			provider := &fakeKeyProvider{fetchErr: tc.fetchErr}
			validator := token.NewValidator(token.NewKeySetCache(provider, testPoolID), testIssuer, "")

			_, err := validator.Validate(ctx, signToken(t, key, "kid-x", defaultClaims()))
			assert.ErrorIs(t, err, tc.want)
			assert.NotErrorIs(t, err, gw_errors.ErrTokenInvalid)
		})
	}
}
