// Package authctx holds the authentication state of one browser session for
// the duration of a request: its credential store and the user those
// credentials belong to. A Context is created by middleware, initialised
// once, handed to handlers through the request context and disposed when
// the request ends.
package authctx

import (
	"context"
	stderrors "errors"
	"sync"

	"auth-portal/internal/models"
	"auth-portal/internal/session"
	"auth-portal/pkg/errors"

	"go.uber.org/zap"
)

// LoginPath is where a signed-out browser is sent with a full navigation.
const LoginPath = "/login"

// UserSource fetches the profile of the session's user.
type UserSource interface {
	CurrentUser(ctx context.Context, sess *session.Store) (*models.User, error)
}

// Context is the authentication state of one browser session.
type Context struct {
	source UserSource
	store  *session.Store
	logger *zap.Logger

	mu       sync.RWMutex
	user     *models.User
	disposed bool
}

// New creates a Context over store. Call Init before reading User.
func New(source UserSource, store *session.Store, logger *zap.Logger) *Context {
	return &Context{
		source: source,
		store:  store,
		logger: logger,
	}
}

// Init rehydrates the user from the stored credentials. A session that
// turns out to be expired is not an error; the context is simply signed out.
func (c *Context) Init(ctx context.Context) error {
	if !c.store.IsAuthenticated() {
		c.setUser(nil)
		return nil
	}
	return c.Refresh(ctx)
}

// Login stores a new credential pair and immediately refetches the user so
// the previous identity is never shown with the new credentials.
func (c *Context) Login(ctx context.Context, access, refresh string) error {
	c.setUser(nil)
	c.store.SetTokens(access, refresh)
	return c.Refresh(ctx)
}

// Logout clears credentials and the user, and returns the path the browser
// must be sent to.
func (c *Context) Logout() string {
	c.store.ClearTokens()
	c.setUser(nil)
	return LoginPath
}

// Refresh refetches the user for the current credentials.
func (c *Context) Refresh(ctx context.Context) error {
	if !c.store.IsAuthenticated() {
		c.setUser(nil)
		return nil
	}

	user, err := c.source.CurrentUser(ctx, c.store)
	if err != nil {
		c.setUser(nil)
		if stderrors.Is(err, errors.ErrSessionExpired) {
			return nil
		}
		c.logger.Warn("Failed to fetch current user", zap.Error(err))
		return err
	}

	c.setUser(user)
	return nil
}

// User returns the signed-in user, or nil.
func (c *Context) User() *models.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// IsAuthenticated reports whether credentials are present. It does not
// check them.
func (c *Context) IsAuthenticated() bool {
	return c.store.IsAuthenticated()
}

// Store returns the credential store.
func (c *Context) Store() *session.Store {
	return c.store
}

// Dispose drops the in-memory user. Persisted credentials are untouched.
func (c *Context) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = nil
	c.disposed = true
}

func (c *Context) setUser(user *models.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.user = user
}

type contextKeyAuth struct{}

// WithContext injects an auth context into a request context.
func WithContext(ctx context.Context, ac *Context) context.Context {
	return context.WithValue(ctx, contextKeyAuth{}, ac)
}

// FromContext retrieves the auth context from a request context.
func FromContext(ctx context.Context) (*Context, bool) {
	ac, ok := ctx.Value(contextKeyAuth{}).(*Context)
	return ac, ok
}
