package session

import "errors"

// Sentinel errors for session handling.
var (
	// ErrNoSession indicates no credentials are stored or established.
	ErrNoSession = errors.New("session: no session")

	// ErrInvalidCredentials indicates the refresh token was rejected.
	// Refresh does not retry it.
	ErrInvalidCredentials = errors.New("session: invalid credentials")

	// ErrTokenMalformed indicates an access token could not be parsed.
	ErrTokenMalformed = errors.New("session: token malformed")

	// ErrRefreshFailed wraps the last error of an exhausted refresh.
	ErrRefreshFailed = errors.New("session: refresh failed")
)
