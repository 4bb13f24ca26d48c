package auth

import "errors"

// Common authentication service errors
var (
	// ErrInvalidToken indicates the token format is invalid or signature doesn't match
	ErrInvalidToken = errors.New("invalid authentication token")

	// ErrExpiredToken indicates the token has expired
	ErrExpiredToken = errors.New("authentication token has expired")

	// ErrTokenNotYetValid indicates the token is not yet valid (iat/nbf claim in the future)
	ErrTokenNotYetValid = errors.New("authentication token not yet valid")

	// ErrInvalidCredentials covers both an unknown identifier and a wrong
	// credential. The two cases are never distinguished to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrDuplicateIdentifier indicates a principal with the identifier already exists.
	ErrDuplicateIdentifier = errors.New("identifier already registered")

	// ErrPrincipalDisabled indicates the principal exists but may not sign in.
	ErrPrincipalDisabled = errors.New("principal is disabled")

	// ErrCredentialTooLong indicates the raw credential exceeds what bcrypt accepts.
	ErrCredentialTooLong = errors.New("credential exceeds 72 bytes")
)
