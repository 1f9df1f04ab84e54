// errors/authz_errors.go
package errors

import "errors"

var (
	ErrAuthorizationDenied = errors.New("not authorized to perform this action")
	ErrEngineUnavailable   = errors.New("policy engine unavailable")
	ErrPolicyStoreNotFound = errors.New("policy store not found or not accessible")
	ErrBatchTooLarge       = errors.New("batch exceeds maximum size")
	ErrInvalidAuthzRequest = errors.New("invalid authorization request")
)
