// authz/policy_client.go
package authz

import (
	"context"

	"github.com/fortress-iam/gateway/model"
)

// MaxBatchSize is the policy engine's per-call batching limit.
const MaxBatchSize = 30

// BatchResult is the outcome for one item of a batch call. Err is set for
// per-item failures inside an otherwise successful batch.
type BatchResult struct {
	Decision *model.Decision
	Err      error
}

// PolicyClient is the boundary to the external policy engine. Policy
// language and evaluation semantics live entirely behind it; tests
// substitute a deterministic fake.
type PolicyClient interface {
	IsAuthorized(ctx context.Context, req model.CheckRequest) (*model.Decision, error)
	BatchIsAuthorized(ctx context.Context, reqs []model.CheckRequest) ([]BatchResult, error)
}
