// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across client, service and repo layers.
var (
	// ErrNoToken indicates an incoming URL carried no session token. Callers treat it as a silent no-op.
	ErrNoToken = errors.New("no session token")

	// ErrNotFound indicates the requested session does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExpired indicates the session outlived its claim window.
	ErrExpired = errors.New("expired")

	// ErrAlreadyClaimed indicates the session was claimed by an earlier request.
	ErrAlreadyClaimed = errors.New("already claimed")

	// ErrRateLimited indicates a temporary lock after repeated failed claims.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidRequest indicates a malformed claim or create request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrAlreadyExists indicates a unique key collision on insert.
	ErrAlreadyExists = errors.New("already exists")

	// ErrSettingNotFound indicates the settings store has no value for the key.
	ErrSettingNotFound = errors.New("setting not found")
)
