// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// GenerateTestKey generates an RSA signing key.
func GenerateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate test keys: %v", err)
	}
	return privateKey
}

// JWKSServer serves the public half of key under kid and counts fetches.
func JWKSServer(t *testing.T, key *rsa.PrivateKey, kid string) (*httptest.Server, *int32) {
	t.Helper()

	jwkKey, err := jwk.FromRaw(&key.PublicKey)
	if err != nil {
		t.Fatalf("failed to build jwk: %v", err)
	}
	_ = jwkKey.Set(jwk.KeyIDKey, kid)
	_ = jwkKey.Set(jwk.AlgorithmKey, "RS256")
	_ = jwkKey.Set(jwk.KeyUsageKey, "sig")

	set := jwk.NewSet()
	if err := set.AddKey(jwkKey); err != nil {
		t.Fatalf("failed to build jwks: %v", err)
	}
	body, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("failed to marshal jwks: %v", err)
	}

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

// SignIDToken signs claims with key, adding exp and iat when absent.
func SignIDToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	now := time.Now()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = now.Add(time.Hour).Unix()
	}
	if _, ok := claims["iat"]; !ok {
		claims["iat"] = now.Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

// AccessToken returns a signed JWT whose exp is now+ttl. The
// portal never verifies access tokens, it only reads exp.
func AccessToken(t *testing.T, key *rsa.PrivateKey, ttl time.Duration) string {
	t.Helper()
	return SignIDToken(t, key, "", jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(ttl).Unix()})
}
