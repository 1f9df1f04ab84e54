// audit/service.go
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	logger "github.com/fortress-iam/gateway/logging"
)

type Service interface {
	Record(ctx context.Context, event SecurityEvent)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// Record indexes a security event. The audit trail is best-effort: an
// indexing failure is logged, never propagated into the request path.
func (s *service) Record(ctx context.Context, event SecurityEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := s.repo.Index(ctx, event); err != nil {
		logger.Warn("Failed to index security event",
			zap.Error(err),
			zap.String("eventType", event.EventType))
	}
}

type nopService struct{}

// NewNopService returns a Service that records nothing. Used when no
// Elasticsearch endpoint is configured, and in tests.
func NewNopService() Service {
	return nopService{}
}

func (nopService) Record(context.Context, SecurityEvent) {}
