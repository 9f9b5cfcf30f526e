package auth

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// minRefetchInterval bounds how often an unknown kid can force a refetch.
const minRefetchInterval = 10 * time.Second

// KeySet is a cached view of the authorization server's JWKS.
// A kid that is not in the cached set triggers one refetch so that key
// rotation on the server is picked up without waiting for the TTL.
type KeySet struct {
	mu        sync.RWMutex
	url       string
	client    *http.Client
	ttl       time.Duration
	set       jwk.Set
	fetchedAt time.Time
	now       func() time.Time
}

// NewKeySet creates a key set backed by the JWKS document at url.
func NewKeySet(url string, client *http.Client, ttl time.Duration) *KeySet {
	if client == nil {
		client = http.DefaultClient
	}
	return &KeySet{
		url:    url,
		client: client,
		ttl:    ttl,
		now:    time.Now,
	}
}

// PublicKey returns the RSA verification key for kid.
func (ks *KeySet) PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	ks.mu.RLock()
	set, fetchedAt := ks.set, ks.fetchedAt
	ks.mu.RUnlock()

	age := ks.now().Sub(fetchedAt)
	if set != nil && age < ks.ttl {
		if key, ok := lookupRSA(set, kid); ok {
			return key, nil
		}
		if age < minRefetchInterval {
			return nil, fmt.Errorf("key not found: %s", kid)
		}
	}

	set, err := ks.refresh(ctx)
	if err != nil {
		return nil, err
	}
	key, ok := lookupRSA(set, kid)
	if !ok {
		return nil, fmt.Errorf("key not found: %s", kid)
	}
	return key, nil
}

func (ks *KeySet) refresh(ctx context.Context) (jwk.Set, error) {
	set, err := jwk.Fetch(ctx, ks.url, jwk.WithHTTPClient(ks.client))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch jwks: %w", err)
	}

	ks.mu.Lock()
	ks.set = set
	ks.fetchedAt = ks.now()
	ks.mu.Unlock()

	return set, nil
}

func lookupRSA(set jwk.Set, kid string) (*rsa.PublicKey, bool) {
	key, ok := set.LookupKeyID(kid)
	if !ok {
		return nil, false
	}
	var raw interface{}
	if err := key.Raw(&raw); err != nil {
		return nil, false
	}
	pub, ok := raw.(*rsa.PublicKey)
	return pub, ok
}
