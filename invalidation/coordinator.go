// invalidation/coordinator.go
package invalidation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fortress-iam/gateway/authz"
	logger "github.com/fortress-iam/gateway/logging"
	"github.com/fortress-iam/gateway/status"
	"github.com/fortress-iam/gateway/util"
)

// Coordinator reacts to lifecycle events by evicting affected cache
// entries ahead of TTL expiry. Every handler is synchronous and
// at-least-once idempotent: re-delivering an event neither errors nor
// resurrects a stale entry.
type Coordinator struct {
	gate     *status.Gate
	authzSvc *authz.Service
}

func NewCoordinator(gate *status.Gate, authzSvc *authz.Service, eventBus *util.EventBus) *Coordinator {
	c := &Coordinator{
		gate:     gate,
		authzSvc: authzSvc,
	}

	// Set up event subscriptions
	eventBus.Subscribe(util.EventUserStateChanged, c.handleUserEvent)
	eventBus.Subscribe(util.EventUserDeleted, c.handleUserEvent)
	eventBus.Subscribe(util.EventPolicyUpdated, c.handlePolicyEvent)

	return c
}

// OnUserStateChange evicts the user's status record and every cached
// decision under the user's prefix, so the next request observes the new
// state inside the TTL.
func (c *Coordinator) OnUserStateChange(ctx context.Context, userID string) error {
	if err := c.gate.Invalidate(ctx, userID); err != nil {
		return fmt.Errorf("failed to evict status record for %s: %w", userID, err)
	}
	if err := c.authzSvc.InvalidatePrincipal(ctx, userID); err != nil {
		return fmt.Errorf("failed to evict decisions for %s: %w", userID, err)
	}

	logger.Info("Processed user state change", zap.String("userID", userID))
	return nil
}

// OnUserDeleted evicts the same entries as a state change; the identity
// provider is the source of truth for the deletion itself.
func (c *Coordinator) OnUserDeleted(ctx context.Context, userID string) error {
	if err := c.gate.Invalidate(ctx, userID); err != nil {
		return fmt.Errorf("failed to evict status record for %s: %w", userID, err)
	}
	if err := c.authzSvc.InvalidatePrincipal(ctx, userID); err != nil {
		return fmt.Errorf("failed to evict decisions for %s: %w", userID, err)
	}

	logger.Info("Processed user deletion", zap.String("userID", userID))
	return nil
}

// OnPolicyUpdate flushes the whole decision cache. Policy changes are
// global, not attributable to one principal.
func (c *Coordinator) OnPolicyUpdate(ctx context.Context) error {
	if err := c.authzSvc.FlushAll(ctx); err != nil {
		return fmt.Errorf("failed to flush decision cache: %w", err)
	}

	logger.Info("Processed policy update")
	return nil
}

func (c *Coordinator) handleUserEvent(ctx context.Context, event util.Event) error {
	userID, ok := event.Payload.(string)
	if !ok {
		logger.Error("Invalid event payload type", zap.Any("payload", event.Payload))
		return fmt.Errorf("invalid event payload type: %T", event.Payload)
	}

	if event.Type == util.EventUserDeleted {
		return c.OnUserDeleted(ctx, userID)
	}
	return c.OnUserStateChange(ctx, userID)
}

func (c *Coordinator) handlePolicyEvent(ctx context.Context, _ util.Event) error {
	return c.OnPolicyUpdate(ctx)
}
