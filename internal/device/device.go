// Package device maintains the opaque device identifier the backend uses
// for device-trust bookkeeping. The id is generated once per browser and
// persisted next to the credentials.
package device

import (
	"context"
	"time"

	"github.com/google/uuid"

	"auth-portal/internal/session"
)

// CookieName is also the value the backend expects in X-Device-ID.
const CookieName = "device_id"

// HeaderName carries the id on every backend call.
const HeaderName = "X-Device-ID"

// lifetime is the longest expiry browsers honour for a cookie.
const lifetime = 400 * 24 * time.Hour

// Identity returns the persisted device id, creating and persisting a new
// one when absent or malformed.
func Identity(kv session.KV) string {
	if id, ok := kv.Get(CookieName); ok {
		if _, err := uuid.Parse(id); err == nil {
			return id
		}
	}
	id := uuid.NewString()
	kv.Set(CookieName, id, lifetime)
	return id
}

type contextKeyDeviceID struct{}

// WithID injects a device identifier into a context.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyDeviceID{}, id)
}

// FromContext retrieves the device identifier from the context.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyDeviceID{}).(string); ok {
		return id
	}
	return ""
}
