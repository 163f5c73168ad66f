package auth

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingCredentials = errors.New("auth: email and password are required")
	ErrContextUnavailable = errors.New("organization details unavailable")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrUnauthorized       = errors.New("auth: unauthorized")
)

// AuthError is returned for every failed login. Its message never reveals the cause,
// so wrong passwords, unknown accounts and transport failures look the same.
type AuthError struct {
	cause error
}

// NewAuthError wraps cause for logging while presenting the generic message.
func NewAuthError(cause error) *AuthError {
	return &AuthError{cause: cause}
}

func (e *AuthError) Error() string { return ErrInvalidCredentials.Error() }

// Cause returns the underlying failure. It must not be shown to the user.
func (e *AuthError) Cause() error { return e.cause }

func (e *AuthError) Is(target error) bool { return target == ErrInvalidCredentials }

func (e *AuthError) Unwrap() error { return e.cause }

// ContextFetchError reports that organization metadata could not be loaded.
type ContextFetchError struct {
	Ref   string
	cause error
}

// NewContextFetchError wraps cause for the organization ref.
func NewContextFetchError(ref string, cause error) *ContextFetchError {
	return &ContextFetchError{Ref: ref, cause: cause}
}

func (e *ContextFetchError) Error() string { return ErrContextUnavailable.Error() }

func (e *ContextFetchError) Is(target error) bool { return target == ErrContextUnavailable }

func (e *ContextFetchError) Unwrap() error { return e.cause }
