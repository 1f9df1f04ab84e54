// authz/service.go
package authz

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fortress-iam/gateway/audit"
	"github.com/fortress-iam/gateway/db"
	logger "github.com/fortress-iam/gateway/logging"
	"github.com/fortress-iam/gateway/model"
	"github.com/fortress-iam/gateway/util"
)

// Service coordinates authorization checks between the policy engine and
// the decision cache, with fail-closed behavior on engine failure.
//
// Decisions are cached under the literal key
// authz:{principal}:{action}:{resource_type}:{resource_id}. Request
// context attributes are not part of the key; a request carrying a
// non-empty context bypasses the cache entirely so that two calls with
// different contexts can never share a cached outcome.
type Service struct {
	engine          PolicyClient
	notificationSvc *util.NotificationService
	auditSvc        audit.Service
	engineTimeout   time.Duration
}

func NewService(engine PolicyClient, notificationSvc *util.NotificationService, auditSvc audit.Service) *Service {
	timeout := viper.GetDuration("authz.timeout")
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Service{
		engine:          engine,
		notificationSvc: notificationSvc,
		auditSvc:        auditSvc,
		engineTimeout:   timeout,
	}
}

// Check answers a single authorization question. Engine timeouts and
// errors are converted locally into DENY (fail closed); such denials are
// never cached, so a transient outage does not pin a deny past itself.
func (s *Service) Check(ctx context.Context, req model.CheckRequest) model.Decision {
	if len(req.Context) > 0 {
		return s.evaluateUncached(ctx, req)
	}

	key := db.DecisionKey(req.Principal.ID, req.Action, req.Resource.Type, req.Resource.ID)

	version, cacheable := s.currentVersion(ctx, req.Principal.ID)
	if cacheable {
		if cached := s.readCache(ctx, key, version); cached != nil {
			return *cached
		}
	}

	decision, err := s.callEngine(ctx, req)
	if err != nil {
		return s.failClosed(ctx, req, err)
	}

	if cacheable {
		s.writeCache(ctx, key, decision, version)
	}
	s.recordDecision(ctx, req, decision.Decision)
	return *decision
}

// CheckBatch answers many questions, preserving input order. Cache hits
// are served directly; misses are grouped into engine batches of at most
// MaxBatchSize and evaluated concurrently. A failed batch call denies
// every item it covered; per-item errors deny only those items, and the
// surviving successes are still cached.
func (s *Service) CheckBatch(ctx context.Context, reqs []model.CheckRequest) []model.Decision {
	results := make([]model.Decision, len(reqs))

	type pending struct {
		index    int
		version  int64
		cacheKey string // "" when the item must not be cached
	}
	var misses []pending
	var missReqs []model.CheckRequest

	for i, req := range reqs {
		if len(req.Context) > 0 {
			misses = append(misses, pending{index: i})
			missReqs = append(missReqs, req)
			continue
		}

		key := db.DecisionKey(req.Principal.ID, req.Action, req.Resource.Type, req.Resource.ID)
		version, cacheable := s.currentVersion(ctx, req.Principal.ID)
		if cacheable {
			if cached := s.readCache(ctx, key, version); cached != nil {
				results[i] = *cached
				continue
			}
		}

		p := pending{index: i, version: version}
		if cacheable {
			p.cacheKey = key
		}
		misses = append(misses, p)
		missReqs = append(missReqs, req)
	}

	if len(misses) == 0 {
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(misses); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(misses) {
			end = len(misses)
		}
		chunk := misses[start:end]
		chunkReqs := missReqs[start:end]

		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, s.engineTimeout)
			defer cancel()

			batchResults, err := s.engine.BatchIsAuthorized(callCtx, chunkReqs)
			if err != nil {
				// The whole batch failed: every uncached entry fails closed.
				for j, p := range chunk {
					results[p.index] = s.failClosed(ctx, chunkReqs[j], err)
				}
				return nil
			}

			for j, p := range chunk {
				if batchResults[j].Err != nil {
					results[p.index] = s.failClosed(ctx, chunkReqs[j], batchResults[j].Err)
					continue
				}
				decision := batchResults[j].Decision
				if p.cacheKey != "" {
					s.writeCache(ctx, p.cacheKey, decision, p.version)
				}
				s.recordDecision(ctx, chunkReqs[j], decision.Decision)
				results[p.index] = *decision
			}
			return nil
		})
	}
	g.Wait()

	return results
}

// DeleteDecision evicts one cached decision by its exact key.
func (s *Service) DeleteDecision(ctx context.Context, principalID, action, resourceType, resourceID string) error {
	return db.DeleteCachedDecision(ctx, db.DecisionKey(principalID, action, resourceType, resourceID))
}

// InvalidatePrincipal evicts every cached decision for one principal. The
// version marker is bumped first so that a repopulation already in flight
// writes a record readers will discard; the prefix delete is best-effort
// cleanup after that.
func (s *Service) InvalidatePrincipal(ctx context.Context, principalID string) error {
	if err := db.BumpUserVersion(ctx, principalID); err != nil {
		return err
	}
	deleted, err := db.DeleteDecisionsForPrincipal(ctx, principalID)
	if err != nil {
		return err
	}

	logger.Info("Invalidated cached decisions for principal",
		zap.String("principalID", principalID),
		zap.Int64("deleted", deleted))
	s.recordInvalidation(ctx, principalID, deleted)
	return nil
}

// FlushAll evicts every cached decision. Policy updates are global, not
// attributable to one principal.
func (s *Service) FlushAll(ctx context.Context) error {
	if err := db.BumpPolicyVersion(ctx); err != nil {
		return err
	}
	deleted, err := db.FlushDecisions(ctx)
	if err != nil {
		return err
	}

	logger.Info("Flushed decision cache", zap.Int64("deleted", deleted))
	s.recordInvalidation(ctx, "", deleted)
	return nil
}

func (s *Service) currentVersion(ctx context.Context, principalID string) (int64, bool) {
	version, err := db.DecisionVersion(ctx, principalID)
	if err != nil {
		// Without the marker a cached record cannot be trusted; skip the
		// cache for this request rather than risk a resurrected decision.
		logger.Warn("Decision version unavailable, bypassing cache",
			zap.Error(err),
			zap.String("principalID", principalID))
		return 0, false
	}
	return version, true
}

func (s *Service) readCache(ctx context.Context, key string, version int64) *model.Decision {
	record, err := db.GetCachedDecision(ctx, key)
	if err != nil {
		logger.Warn("Decision cache read failed", zap.Error(err), zap.String("key", key))
		return nil
	}
	if record == nil {
		return nil
	}
	if record.Version < version {
		// Written before the latest invalidation; treat as a miss.
		logger.Debug("Discarding stale cached decision",
			zap.String("key", key),
			zap.Int64("recordVersion", record.Version),
			zap.Int64("currentVersion", version))
		return nil
	}
	return &model.Decision{Decision: record.Decision, Reasons: record.Reasons}
}

func (s *Service) writeCache(ctx context.Context, key string, decision *model.Decision, version int64) {
	record := &model.DecisionRecord{
		Decision:   decision.Decision,
		Reasons:    decision.Reasons,
		ComputedAt: time.Now().UTC(),
		TTLSeconds: int(viper.GetDuration("cache.decisionTTL").Seconds()),
		Version:    version,
	}
	if err := db.CacheDecision(ctx, key, record); err != nil {
		logger.Warn("Failed to cache decision", zap.Error(err), zap.String("key", key))
	}
}

func (s *Service) evaluateUncached(ctx context.Context, req model.CheckRequest) model.Decision {
	decision, err := s.callEngine(ctx, req)
	if err != nil {
		return s.failClosed(ctx, req, err)
	}
	s.recordDecision(ctx, req, decision.Decision)
	return *decision
}

func (s *Service) callEngine(ctx context.Context, req model.CheckRequest) (*model.Decision, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.engineTimeout)
	defer cancel()
	return s.engine.IsAuthorized(callCtx, req)
}

// failClosed converts an engine failure into a DENY, logs at high
// severity, alerts operators, and records the event. The denial is not
// cached.
func (s *Service) failClosed(ctx context.Context, req model.CheckRequest, cause error) model.Decision {
	logger.Error("Policy engine unavailable, failing closed",
		zap.Error(cause),
		zap.String("principalID", req.Principal.ID),
		zap.String("action", req.Action),
		zap.String("resourceType", req.Resource.Type),
		zap.String("resourceID", req.Resource.ID))

	if s.notificationSvc != nil {
		if err := s.notificationSvc.AlertFailClosed(ctx, req.Principal.ID, req.Action, cause); err != nil {
			logger.Warn("Failed to deliver fail-closed alert", zap.Error(err))
		}
	}
	if s.auditSvc != nil {
		details, _ := json.Marshal(map[string]string{"cause": cause.Error()})
		s.auditSvc.Record(ctx, audit.SecurityEvent{
			EventType:    audit.EventFailClosed,
			PrincipalID:  req.Principal.ID,
			Action:       req.Action,
			ResourceType: req.Resource.Type,
			ResourceID:   req.Resource.ID,
			Decision:     model.DecisionDeny,
			Details:      details,
		})
	}

	return model.Decision{Decision: model.DecisionDeny, Reasons: []string{"Service unavailable"}}
}

func (s *Service) recordDecision(ctx context.Context, req model.CheckRequest, decision string) {
	if s.auditSvc == nil {
		return
	}
	s.auditSvc.Record(ctx, audit.SecurityEvent{
		EventType:    audit.EventDecision,
		PrincipalID:  req.Principal.ID,
		Action:       req.Action,
		ResourceType: req.Resource.Type,
		ResourceID:   req.Resource.ID,
		Decision:     decision,
	})
}

func (s *Service) recordInvalidation(ctx context.Context, principalID string, deleted int64) {
	if s.auditSvc == nil {
		return
	}
	details, _ := json.Marshal(map[string]int64{"deleted": deleted})
	s.auditSvc.Record(ctx, audit.SecurityEvent{
		EventType:   audit.EventCacheInvalidation,
		PrincipalID: principalID,
		Details:     details,
	})
}
