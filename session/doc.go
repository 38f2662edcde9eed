// Package session holds the client's authenticated session and refreshes it.
//
// A session is a JWT access token plus an opaque refresh token. The
// credential pair is persisted in durable storage under a key the storage
// package classifies as authentication-critical, so cache sweeps below the
// full-reload tier never log the user out. Refresh exchanges the refresh token
// for a new pair through a caller-supplied RefreshFunc; concurrent refreshes
// are coalesced and transient failures are retried with exponential backoff.
//
// Network responses that belong to the session's protocol family are tagged
// with ProtocolFamily() in the response cache; the watchdog's session tier
// removes exactly those entries when it refreshes.
package session
