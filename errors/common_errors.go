// errors/common_errors.go
package errors

import "errors"

var (
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrRateLimitExceeded     = errors.New("rate limit exceeded")
	ErrRequestTimeout        = errors.New("request deadline exceeded")
	ErrInternalServer        = errors.New("internal server error")
	ErrUnauthorized          = errors.New("unauthorized")
)
