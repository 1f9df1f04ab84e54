// util/validation_util.go

package util

import (
	"fmt"

	"github.com/fortress-iam/gateway/model"
)

type ValidationUtil struct{}

func NewValidationUtil() *ValidationUtil {
	return &ValidationUtil{}
}

func (v *ValidationUtil) ValidateCheckRequest(req model.CheckRequest) error {
	if req.Principal.ID == "" {
		return fmt.Errorf("principal id cannot be empty")
	}
	if req.Principal.Type != model.PrincipalTypeEndUser && req.Principal.Type != model.PrincipalTypeAdmin {
		return fmt.Errorf("principal type must be either 'end_user' or 'admin'")
	}
	if req.Action == "" {
		return fmt.Errorf("action cannot be empty")
	}
	if req.Resource.Type == "" {
		return fmt.Errorf("resource type cannot be empty")
	}
	if req.Resource.ID == "" {
		return fmt.Errorf("resource id cannot be empty")
	}
	return nil
}

func (v *ValidationUtil) ValidateLockoutScope(scope string) error {
	switch scope {
	case model.LockoutScopeIP, model.LockoutScopeEmail, model.LockoutScopeUser, model.LockoutScopeServiceRole:
		return nil
	default:
		return fmt.Errorf("unknown lockout scope: %s", scope)
	}
}
