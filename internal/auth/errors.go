// Package auth issues and validates the bearer tokens that guard the HTTP
// surface. The service has no user accounts; tokens identify an operator
// and are minted out of band with the shared signing secret.
package auth

import "errors"

// Common token validation errors.
var (
	// ErrInvalidToken indicates a malformed token or a bad signature.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken indicates the token's expiry has passed.
	ErrExpiredToken = errors.New("token expired")

	// ErrTokenNotYetValid indicates the token's not-before is in the future.
	ErrTokenNotYetValid = errors.New("token not yet valid")

	// ErrShortSecret indicates the configured signing secret is too weak.
	ErrShortSecret = errors.New("signing secret must be at least 32 characters")
)
