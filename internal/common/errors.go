package common

import "errors"

var (
	// ErrNotFound reports an absent object or row.
	ErrNotFound = errors.New("not found")

	// ErrInvalidToken reports a malformed or foreign access token.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired reports an access token past its expiration.
	ErrTokenExpired = errors.New("token expired")
)
