// db/cache.go
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	logger "github.com/fortress-iam/gateway/logging"
	"github.com/fortress-iam/gateway/model"
)

// Cache key formats. These are wire contracts shared with any pre-existing
// cache entries and must not change.
func DecisionKey(principalID, action, resourceType, resourceID string) string {
	return fmt.Sprintf("authz:%s:%s:%s:%s", principalID, action, resourceType, resourceID)
}

func StatusKey(userID string) string {
	return fmt.Sprintf("user_status:%s", userID)
}

func KeySetKey(poolID string) string {
	return fmt.Sprintf("jwks:%s", poolID)
}

func userVersionKey(principalID string) string {
	return fmt.Sprintf("authz_user_version:%s", principalID)
}

const policyVersionKey = "authz_policy_version"

func CacheDecision(ctx context.Context, key string, record *model.DecisionRecord) error {
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal decision record: %w", err)
	}

	ttl := viper.GetDuration("cache.decisionTTL")
	if err := SetWithTTL(ctx, key, string(recordJSON), ttl); err != nil {
		return fmt.Errorf("failed to cache decision: %w", err)
	}

	logger.Debug("Decision cached", zap.String("key", key), zap.String("decision", record.Decision))
	return nil
}

func GetCachedDecision(ctx context.Context, key string) (*model.DecisionRecord, error) {
	recordJSON, found, err := Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get decision from cache: %w", err)
	}
	if !found {
		logger.Debug("Decision not found in cache", zap.String("key", key))
		return nil, nil
	}

	var record model.DecisionRecord
	if err := json.Unmarshal([]byte(recordJSON), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decision record: %w", err)
	}

	logger.Debug("Decision retrieved from cache", zap.String("key", key))
	return &record, nil
}

func DeleteCachedDecision(ctx context.Context, key string) error {
	if err := Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete decision from cache: %w", err)
	}
	logger.Debug("Decision deleted from cache", zap.String("key", key))
	return nil
}

// DeleteDecisionsForPrincipal removes every cached decision under one
// principal's prefix.
func DeleteDecisionsForPrincipal(ctx context.Context, principalID string) (int64, error) {
	return DeleteByPrefix(ctx, fmt.Sprintf("authz:%s:*", principalID))
}

// FlushDecisions removes every cached authorization decision.
func FlushDecisions(ctx context.Context) (int64, error) {
	return DeleteByPrefix(ctx, "authz:*")
}

// DecisionVersion returns the current invalidation marker for a principal:
// the sum of the per-principal and global policy counters. Both counters
// only ever increase, so the sum is monotonic and a bump of either makes
// every older cached record stale.
func DecisionVersion(ctx context.Context, principalID string) (int64, error) {
	pipe := RedisClient.Pipeline()
	userCmd := pipe.Get(ctx, userVersionKey(principalID))
	policyCmd := pipe.Get(ctx, policyVersionKey)
	_, err := pipe.Exec(ctx)
	if err != nil && !isNilCmdErr(err) {
		return 0, fmt.Errorf("failed to read decision version: %w", err)
	}

	userVer, _ := userCmd.Int64()
	policyVer, _ := policyCmd.Int64()
	return userVer + policyVer, nil
}

// BumpUserVersion advances the per-principal invalidation marker.
func BumpUserVersion(ctx context.Context, principalID string) error {
	if err := RedisClient.Incr(ctx, userVersionKey(principalID)).Err(); err != nil {
		return fmt.Errorf("failed to bump user version for %s: %w", principalID, err)
	}
	return nil
}

// BumpPolicyVersion advances the global policy invalidation marker.
func BumpPolicyVersion(ctx context.Context) error {
	if err := RedisClient.Incr(ctx, policyVersionKey).Err(); err != nil {
		return fmt.Errorf("failed to bump policy version: %w", err)
	}
	return nil
}

func CacheStatus(ctx context.Context, record *model.StatusRecord) error {
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal status record: %w", err)
	}

	ttl := viper.GetDuration("cache.statusTTL")
	if err := SetWithTTL(ctx, StatusKey(record.UserID), string(recordJSON), ttl); err != nil {
		return fmt.Errorf("failed to cache user status: %w", err)
	}

	logger.Debug("User status cached", zap.String("userID", record.UserID), zap.Bool("enabled", record.Enabled))
	return nil
}

func GetCachedStatus(ctx context.Context, userID string) (*model.StatusRecord, error) {
	recordJSON, found, err := Get(ctx, StatusKey(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get user status from cache: %w", err)
	}
	if !found {
		logger.Debug("User status not found in cache", zap.String("userID", userID))
		return nil, nil
	}

	var record model.StatusRecord
	if err := json.Unmarshal([]byte(recordJSON), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status record: %w", err)
	}

	return &record, nil
}

func DeleteCachedStatus(ctx context.Context, userID string) error {
	if err := Delete(ctx, StatusKey(userID)); err != nil {
		return fmt.Errorf("failed to delete user status from cache: %w", err)
	}
	logger.Debug("User status deleted from cache", zap.String("userID", userID))
	return nil
}

func CacheKeySet(ctx context.Context, record *model.KeySetRecord) error {
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal key set record: %w", err)
	}

	ttl := viper.GetDuration("cache.keySetTTL")
	if err := SetWithTTL(ctx, KeySetKey(record.PoolID), string(recordJSON), ttl); err != nil {
		return fmt.Errorf("failed to cache key set: %w", err)
	}

	logger.Debug("Key set cached", zap.String("poolID", record.PoolID), zap.Int("keys", len(record.Keys)))
	return nil
}

func GetCachedKeySet(ctx context.Context, poolID string) (*model.KeySetRecord, error) {
	recordJSON, found, err := Get(ctx, KeySetKey(poolID))
	if err != nil {
		return nil, fmt.Errorf("failed to get key set from cache: %w", err)
	}
	if !found {
		logger.Debug("Key set not found in cache", zap.String("poolID", poolID))
		return nil, nil
	}

	var record model.KeySetRecord
	if err := json.Unmarshal([]byte(recordJSON), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal key set record: %w", err)
	}

	return &record, nil
}

func isNilCmdErr(err error) bool {
	return errors.Is(err, redis.Nil)
}
