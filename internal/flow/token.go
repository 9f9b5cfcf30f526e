package flow

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"auth-portal/internal/authz"
	"auth-portal/pkg/errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
)

// Pending is a sign-in that has to survive a navigation: the request being
// authorized and the credentials that authorize it. It only ever travels
// inside a flow token, never in a URL of its own.
type Pending struct {
	Request   authz.Request `json:"request"`
	Username  string        `json:"username"`
	Password  string        `json:"password"`
	AutoLogin bool          `json:"auto_login,omitempty"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Tokens issues and redeems flow tokens. Open leaves the token usable,
// Consume makes a best effort to invalidate it. An unknown, tampered,
// expired or consumed token yields errors.ErrFlowExpired.
type Tokens interface {
	Issue(ctx context.Context, p *Pending) (string, error)
	Open(ctx context.Context, token string) (*Pending, error)
	Consume(ctx context.Context, token string) (*Pending, error)
}

// sealedAAD binds ciphertexts to flow tokens.
var sealedAAD = []byte("auth-portal/flow/v1")

// Sealer keeps the pending flow in the token itself, encrypted and
// authenticated with XChaCha20-Poly1305. It needs no server state, so
// Consume cannot revoke; single use is enforced by the Guard instead.
type Sealer struct {
	aead cipher.AEAD
	ttl  time.Duration
	now  func() time.Time
}

// NewSealer creates a sealer from a 32 byte key.
func NewSealer(key []byte, ttl time.Duration) (*Sealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow token cipher: %w", err)
	}
	return &Sealer{
		aead: aead,
		ttl:  ttl,
		now:  time.Now,
	}, nil
}

// SetNow overrides the time function (for testing).
func (s *Sealer) SetNow(fn func() time.Time) {
	s.now = fn
}

func (s *Sealer) Issue(_ context.Context, p *Pending) (string, error) {
	sealed := *p
	sealed.ExpiresAt = s.now().Add(s.ttl)

	data, err := json.Marshal(sealed)
	if err != nil {
		return "", fmt.Errorf("marshaling flow: %w", err)
	}

	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(data)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	out := s.aead.Seal(nonce, nonce, data, sealedAAD)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

func (s *Sealer) Open(_ context.Context, token string) (*Pending, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) < s.aead.NonceSize()+s.aead.Overhead() {
		return nil, errors.ErrFlowExpired
	}

	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	data, err := s.aead.Open(nil, nonce, ciphertext, sealedAAD)
	if err != nil {
		return nil, errors.ErrFlowExpired
	}

	var p Pending
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.ErrFlowExpired
	}
	if !s.now().Before(p.ExpiresAt) {
		return nil, errors.ErrFlowExpired
	}
	return &p, nil
}

func (s *Sealer) Consume(ctx context.Context, token string) (*Pending, error) {
	return s.Open(ctx, token)
}

// FlowCache is the storage RedisTokens needs; *cache.Cache satisfies it.
type FlowCache interface {
	StoreFlow(ctx context.Context, id string, payload []byte, ttl time.Duration) error
	PeekFlow(ctx context.Context, id string) ([]byte, bool, error)
	ConsumeFlow(ctx context.Context, id string) ([]byte, bool, error)
}

// RedisTokens keeps the pending flow server side under a random id. The
// token is the id; Consume deletes it atomically.
type RedisTokens struct {
	cache FlowCache
	ttl   time.Duration
	now   func() time.Time
}

func NewRedisTokens(cache FlowCache, ttl time.Duration) *RedisTokens {
	return &RedisTokens{
		cache: cache,
		ttl:   ttl,
		now:   time.Now,
	}
}

func (r *RedisTokens) Issue(ctx context.Context, p *Pending) (string, error) {
	stored := *p
	stored.ExpiresAt = r.now().Add(r.ttl)

	data, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("marshaling flow: %w", err)
	}

	id := uuid.NewString()
	if err := r.cache.StoreFlow(ctx, id, data, r.ttl); err != nil {
		return "", errors.Wrap(err, errors.ErrInternalServer)
	}
	return id, nil
}

func (r *RedisTokens) Open(ctx context.Context, token string) (*Pending, error) {
	if _, err := uuid.Parse(token); err != nil {
		return nil, errors.ErrFlowExpired
	}
	data, ok, err := r.cache.PeekFlow(ctx, token)
	return r.decode(data, ok, err)
}

func (r *RedisTokens) Consume(ctx context.Context, token string) (*Pending, error) {
	if _, err := uuid.Parse(token); err != nil {
		return nil, errors.ErrFlowExpired
	}
	data, ok, err := r.cache.ConsumeFlow(ctx, token)
	return r.decode(data, ok, err)
}

func (r *RedisTokens) decode(data []byte, ok bool, err error) (*Pending, error) {
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternalServer)
	}
	if !ok {
		return nil, errors.ErrFlowExpired
	}
	var p Pending
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.ErrFlowExpired
	}
	if !r.now().Before(p.ExpiresAt) {
		return nil, errors.ErrFlowExpired
	}
	return &p, nil
}
