package gateway

import (
	"context"
	"net/http"
	"strings"

	"auth-portal/internal/device"
	"auth-portal/internal/models"

	"golang.org/x/oauth2"
)

// TokenClient performs the token endpoint grants on behalf of the
// dashboard client.
type TokenClient struct {
	config oauth2.Config
	http   *http.Client
}

// NewTokenClient creates a token client for clientID. redirectURL must be
// the redirect URI the code was issued for.
func NewTokenClient(baseURL, clientID, redirectURL string, httpClient *http.Client) *TokenClient {
	baseURL = strings.TrimRight(baseURL, "/")
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	withDevice := *httpClient
	withDevice.Transport = deviceTransport{next: httpClient.Transport}
	return &TokenClient{
		config: oauth2.Config{
			ClientID:    clientID,
			RedirectURL: redirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   baseURL + "/oauth/authorize",
				TokenURL:  baseURL + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		http: &withDevice,
	}
}

// SetTokenURL points the grants at a discovered token endpoint.
func (t *TokenClient) SetTokenURL(tokenURL string) {
	if tokenURL != "" {
		t.config.Endpoint.TokenURL = tokenURL
	}
}

// Exchange redeems an authorization code. The verifier is sent as
// code_verifier when not empty. Failures from the token endpoint surface
// as *oauth2.RetrieveError.
func (t *TokenClient) Exchange(ctx context.Context, code, verifier string) (*models.TokenResponse, error) {
	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	tok, err := t.config.Exchange(t.withClient(ctx), code, opts...)
	if err != nil {
		return nil, err
	}
	return toResponse(tok), nil
}

// Refresh runs the refresh_token grant.
func (t *TokenClient) Refresh(ctx context.Context, refreshToken string) (*models.TokenResponse, error) {
	src := t.config.TokenSource(t.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, err
	}
	return toResponse(tok), nil
}

func (t *TokenClient) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, t.http)
}

// deviceTransport adds the device id of the request context to grants,
// which x/oauth2 sends on its own requests.
type deviceTransport struct {
	next http.RoundTripper
}

func (d deviceTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := d.next
	if next == nil {
		next = http.DefaultTransport
	}
	id := device.FromContext(req.Context())
	if id == "" {
		return next.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set(device.HeaderName, id)
	return next.RoundTrip(req)
}

func toResponse(tok *oauth2.Token) *models.TokenResponse {
	resp := &models.TokenResponse{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    tok.ExpiresIn,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		resp.IDToken = idToken
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		resp.Scope = scope
	}
	return resp
}
