// errors/auth_errors.go
package errors

import "errors"

var (
	ErrTokenInvalid       = errors.New("token is invalid or malformed")
	ErrTokenExpired       = errors.New("token has expired")
	ErrIssuerMismatch     = errors.New("token issuer mismatch")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserDisabled       = errors.New("user account is disabled")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrSigningKeyNotFound = errors.New("signing key not found")
)
