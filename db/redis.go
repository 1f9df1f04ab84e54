// db/redis.go
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	logger "github.com/fortress-iam/gateway/logging"
)

var RedisClient redis.UniversalClient

func InitRedis() error {
	RedisClient = redis.NewClient(&redis.Options{
		Addr:         viper.GetString("redis.addr"),
		Password:     viper.GetString("redis.password"),
		DB:           viper.GetInt("redis.db"),
		DialTimeout:  viper.GetDuration("redis.dialTimeout"),
		ReadTimeout:  viper.GetDuration("redis.readTimeout"),
		WriteTimeout: viper.GetDuration("redis.writeTimeout"),
		PoolSize:     viper.GetInt("redis.poolSize"),
		PoolTimeout:  viper.GetDuration("redis.poolTimeout"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := RedisClient.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Successfully connected to Redis")
	return nil
}

func CloseRedis() {
	if RedisClient != nil {
		if err := RedisClient.Close(); err != nil {
			logger.Error("Error closing Redis connection", zap.Error(err))
		}
	}
}

// Get returns the raw value for a key, or "" with ok=false on a miss.
func Get(ctx context.Context, key string) (string, bool, error) {
	value, err := RedisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return value, true, nil
}

// SetWithTTL stores a value under a key with the given TTL.
func SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := RedisClient.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func Delete(ctx context.Context, keys ...string) error {
	if err := RedisClient.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// DeleteByPrefix removes all keys matching the glob pattern using SCAN,
// deleting in batches of 100. Returns the number of keys deleted.
func DeleteByPrefix(ctx context.Context, pattern string) (int64, error) {
	var deleted int64
	var cursor uint64

	for {
		keys, next, err := RedisClient.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to scan pattern %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			n, err := RedisClient.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("failed to delete scanned keys: %w", err)
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	logger.Debug("Deleted keys by prefix", zap.String("pattern", pattern), zap.Int64("deleted", deleted))
	return deleted, nil
}

// AtomicIncrementWithTTL increments a counter and applies the TTL on the
// first hit in the window. Returns the new counter value.
func AtomicIncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := RedisClient.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment key %s: %w", key, err)
	}
	if count == 1 && ttl > 0 {
		if err := RedisClient.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("failed to set TTL on key %s: %w", key, err)
		}
	}
	return count, nil
}

var conditionalDeleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ConditionalDelete deletes a key only if it still holds the expected value.
func ConditionalDelete(ctx context.Context, key, expected string) (bool, error) {
	n, err := conditionalDeleteScript.Run(ctx, RedisClient, []string{key}, expected).Int64()
	if err != nil {
		return false, fmt.Errorf("failed conditional delete of key %s: %w", key, err)
	}
	return n == 1, nil
}

func RateLimit(ctx context.Context, key string, limit int, per time.Duration) (bool, error) {
	pipe := RedisClient.Pipeline()
	now := time.Now().UnixNano()
	key = fmt.Sprintf("ratelimit:%s", key)

	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", now-(per.Nanoseconds())))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now), Member: now})
	pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, per)

	cmds, err := pipe.Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to execute rate limit commands: %w", err)
	}

	count := cmds[2].(*redis.IntCmd).Val()
	allowed := count <= int64(limit)
	logger.Debug("Rate limit check",
		zap.String("key", key),
		zap.Int64("count", count),
		zap.Int("limit", limit),
		zap.Bool("allowed", allowed))
	return allowed, nil
}
