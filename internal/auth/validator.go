package auth

import (
	"context"
	"crypto/rsa"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// KeyProvider resolves a verification key by kid.
type KeyProvider interface {
	PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// IDTokenValidator verifies id_tokens returned alongside an authorization
// code exchange.
type IDTokenValidator struct {
	keys   KeyProvider
	issuer string
}

// NewIDTokenValidator creates a validator. An empty issuer skips the iss check.
func NewIDTokenValidator(keys KeyProvider, issuer string) *IDTokenValidator {
	return &IDTokenValidator{
		keys:   keys,
		issuer: issuer,
	}
}

// Validate checks signature, expiry, audience, issuer and, when nonce is
// not empty, the nonce claim.
func (v *IDTokenValidator) Validate(ctx context.Context, idToken, audience, nonce string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.Parse(idToken, func(token *jwt.Token) (interface{}, error) {
		// Require kid so we always pick an explicit key; no fallback.
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("missing kid in token header")
		}
		pub, err := v.keys.PublicKey(ctx, kid)
		if err != nil {
			return nil, fmt.Errorf("failed to get public key for kid %s: %w", kid, err)
		}
		return pub, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse id_token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid id_token claims")
	}

	if nonce != "" {
		if got, _ := claims["nonce"].(string); got != nonce {
			return nil, fmt.Errorf("nonce mismatch")
		}
	}

	return claims, nil
}
