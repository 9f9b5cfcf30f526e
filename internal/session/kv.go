// Package session keeps the browser-side credentials of the portal: the
// access/refresh token pair and the pending PKCE verifier of a dashboard
// login. Everything is stored in an expiring key/value store so that every
// page load can rebuild its state without process memory.
package session

import "time"

// KV is a persisted key/value store whose entries expire independently.
type KV interface {
	Get(key string) (string, bool)
	Set(key, value string, ttl time.Duration)
	Delete(key string)
}
