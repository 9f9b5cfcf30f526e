package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Cookie names shared with the backend and any other page of the portal.
const (
	AccessTokenKey  = "access_token"
	RefreshTokenKey = "refresh_token"
	VerifierKey     = "pkce_verifier"
)

// verifierTTL bounds how long a dashboard login may sit between the login
// page and the callback.
const verifierTTL = 10 * time.Minute

// Store wraps the credential pair kept in a KV. At most one pair exists at
// a time; SetTokens and ClearTokens always touch both keys.
type Store struct {
	kv         KV
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewStore creates a credential store. accessTTL is used when the access
// token carries no readable exp claim.
func NewStore(kv KV, accessTTL, refreshTTL time.Duration) *Store {
	return &Store{
		kv:         kv,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// SetTokens replaces the credential pair. An empty refresh token removes
// any previous one so a stale refresh token never outlives its pair.
func (s *Store) SetTokens(access, refresh string) {
	s.kv.Set(AccessTokenKey, access, s.accessExpiry(access))
	if refresh == "" {
		s.kv.Delete(RefreshTokenKey)
		return
	}
	s.kv.Set(RefreshTokenKey, refresh, s.refreshTTL)
}

// ClearTokens removes both credentials.
func (s *Store) ClearTokens() {
	s.kv.Delete(AccessTokenKey)
	s.kv.Delete(RefreshTokenKey)
}

// IsAuthenticated reports whether an access token is present. It does not
// check validity; the backend decides that.
func (s *Store) IsAuthenticated() bool {
	_, ok := s.kv.Get(AccessTokenKey)
	return ok
}

func (s *Store) AccessToken() string {
	v, _ := s.kv.Get(AccessTokenKey)
	return v
}

func (s *Store) RefreshToken() string {
	v, _ := s.kv.Get(RefreshTokenKey)
	return v
}

// SetVerifier keeps the PKCE verifier of a dashboard login until the
// callback page consumes it.
func (s *Store) SetVerifier(verifier string) {
	s.kv.Set(VerifierKey, verifier, verifierTTL)
}

// TakeVerifier returns and removes the pending PKCE verifier.
func (s *Store) TakeVerifier() (string, bool) {
	v, ok := s.kv.Get(VerifierKey)
	if ok {
		s.kv.Delete(VerifierKey)
	}
	return v, ok
}

// accessExpiry uses the token's own exp claim when it is a JWT, otherwise
// the configured default.
func (s *Store) accessExpiry(access string) time.Duration {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(access, claims); err != nil {
		return s.accessTTL
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return s.accessTTL
	}
	ttl := exp.Sub(s.now())
	if ttl <= 0 || ttl > s.refreshTTL {
		return s.accessTTL
	}
	return ttl
}
