// lockout/tracker.go
package lockout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/fortress-iam/gateway/audit"
	"github.com/fortress-iam/gateway/db"
	gw_errors "github.com/fortress-iam/gateway/errors"
	logger "github.com/fortress-iam/gateway/logging"
	"github.com/fortress-iam/gateway/model"
	"github.com/fortress-iam/gateway/util"
)

// Progressive lockout ladder: >=3 failures lock for 30s, >=5 for 5min,
// >=10 for 1h, >=20 for 24h. The durations live in the Lua script so the
// increment and the lock write happen in the same round trip.
const (
	warnThreshold      = 3
	escalate1Threshold = 5
	escalate2Threshold = 10
	escalate3Threshold = 20
)

// recordFailureScript performs the whole failure transition in one atomic
// round trip: reject if locked, roll the window, increment the counter,
// and derive the new lock. Concurrent failures therefore cannot exceed
// the nominal thresholds.
//
// ARGV[1] = now (unix seconds), ARGV[2] = window seconds.
// Returns {failure_count, locked_until, rejected}.
var recordFailureScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local locked_until = tonumber(redis.call("HGET", KEYS[1], "locked_until") or "0")
if locked_until > now then
	local count = tonumber(redis.call("HGET", KEYS[1], "failure_count") or "0")
	return {count, locked_until, 1}
end

local window_start = tonumber(redis.call("HGET", KEYS[1], "window_start") or "0")
local count = tonumber(redis.call("HGET", KEYS[1], "failure_count") or "0")
if window_start == 0 or now - window_start >= window then
	window_start = now
	count = 0
end

count = count + 1
local lock = 0
if count >= 20 then
	lock = 86400
elseif count >= 10 then
	lock = 3600
elseif count >= 5 then
	lock = 300
elseif count >= 3 then
	lock = 30
end

local until_ts = 0
if lock > 0 then
	until_ts = now + lock
end

redis.call("HSET", KEYS[1], "failure_count", count, "window_start", window_start, "locked_until", until_ts)
redis.call("EXPIRE", KEYS[1], window)
return {count, until_ts, 0}
`)

// Tracker maintains sliding-window failure counters and the progressive
// lockout state machine for authentication endpoints.
type Tracker struct {
	notificationSvc *util.NotificationService
	auditSvc        audit.Service
	window          time.Duration
}

func NewTracker(notificationSvc *util.NotificationService, auditSvc audit.Service) *Tracker {
	window := viper.GetDuration("lockout.window")
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Tracker{
		notificationSvc: notificationSvc,
		auditSvc:        auditSvc,
		window:          window,
	}
}

func key(identifier, scope string) string {
	return fmt.Sprintf("lockout:%s:%s", scope, identifier)
}

// RecordAttempt records one authentication attempt and returns the
// resulting lockout state. A success resets the counter immediately. A
// failure while locked returns ErrAccountLocked without incrementing.
func (t *Tracker) RecordAttempt(ctx context.Context, identifier, scope string, success bool) (*model.LockoutState, error) {
	if success {
		if err := db.RedisClient.Del(ctx, key(identifier, scope)).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", gw_errors.ErrDependencyUnavailable, err)
		}
		return &model.LockoutState{
			Identifier: identifier,
			Scope:      scope,
			State:      model.LockoutStateNormal,
		}, nil
	}

	now := time.Now()
	vals, err := recordFailureScript.Run(ctx, db.RedisClient,
		[]string{key(identifier, scope)},
		now.Unix(), int(t.window.Seconds()),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gw_errors.ErrDependencyUnavailable, err)
	}

	state := buildState(identifier, scope, vals, now)
	if vals[2] == 1 {
		return state, gw_errors.ErrAccountLocked
	}

	if state.Locked {
		logger.Warn("Lockout triggered",
			zap.String("identifier", identifier),
			zap.String("scope", scope),
			zap.String("state", state.State),
			zap.Int("failureCount", state.FailureCount),
			zap.Time("lockedUntil", state.LockedUntil))
		t.recordEscalation(ctx, state)
	}
	return state, nil
}

// Check reports the current state without recording an attempt. Returns
// ErrAccountLocked when the identifier is locked.
func (t *Tracker) Check(ctx context.Context, identifier, scope string) (*model.LockoutState, error) {
	fields, err := db.RedisClient.HGetAll(ctx, key(identifier, scope)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gw_errors.ErrDependencyUnavailable, err)
	}

	state := &model.LockoutState{
		Identifier: identifier,
		Scope:      scope,
		State:      model.LockoutStateNormal,
	}
	if len(fields) == 0 {
		return state, nil
	}

	var count, lockedUntil int64
	fmt.Sscanf(fields["failure_count"], "%d", &count)
	fmt.Sscanf(fields["locked_until"], "%d", &lockedUntil)

	state.FailureCount = int(count)
	state.State = stateForCount(int(count))
	if lockedUntil > time.Now().Unix() {
		state.Locked = true
		state.LockedUntil = time.Unix(lockedUntil, 0)
		return state, gw_errors.ErrAccountLocked
	}
	return state, nil
}

func buildState(identifier, scope string, vals []int64, now time.Time) *model.LockoutState {
	state := &model.LockoutState{
		Identifier:   identifier,
		Scope:        scope,
		FailureCount: int(vals[0]),
		State:        stateForCount(int(vals[0])),
	}
	if vals[1] > now.Unix() {
		state.Locked = true
		state.LockedUntil = time.Unix(vals[1], 0)
	}
	return state
}

func stateForCount(count int) string {
	switch {
	case count >= escalate3Threshold:
		return model.LockoutStateEscalate3
	case count >= escalate2Threshold:
		return model.LockoutStateEscalate2
	case count >= escalate1Threshold:
		return model.LockoutStateEscalate1
	case count >= warnThreshold:
		return model.LockoutStateWarn
	default:
		return model.LockoutStateNormal
	}
}

func (t *Tracker) recordEscalation(ctx context.Context, state *model.LockoutState) {
	if t.notificationSvc != nil {
		if err := t.notificationSvc.AlertLockoutEscalation(ctx, state.Identifier, state.Scope, state.State); err != nil {
			logger.Warn("Failed to deliver lockout alert", zap.Error(err))
		}
	}
	if t.auditSvc != nil {
		details, _ := json.Marshal(map[string]interface{}{
			"failure_count": state.FailureCount,
			"locked_until":  state.LockedUntil,
		})
		t.auditSvc.Record(ctx, audit.SecurityEvent{
			EventType:   audit.EventLockout,
			PrincipalID: state.Identifier,
			Details:     details,
		})
	}
}
