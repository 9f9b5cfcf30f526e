package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"auth-portal/internal/models"
	"auth-portal/internal/session"
)

// Login checks credentials, and the one-time code when given, without
// starting a session. A response with RequiresMFA set asks for the code.
func (c *Client) Login(ctx context.Context, username, password, totp string) (*models.LoginResponse, error) {
	var out models.LoginResponse
	err := c.Do(ctx, nil, Request{
		Method: http.MethodPost,
		Path:   "/api/v1/auth/login",
		Body: models.LoginRequest{
			Username:  username,
			Password:  password,
			TOTPToken: totp,
		},
		Anonymous: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrentUser fetches the profile of the session's user.
func (c *Client) CurrentUser(ctx context.Context, sess *session.Store) (*models.User, error) {
	var user models.User
	if err := c.Do(ctx, sess, Request{Method: http.MethodGet, Path: "/api/v1/users/me"}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ClientInfo fetches the public descriptor of a client application.
func (c *Client) ClientInfo(ctx context.Context, sess *session.Store, clientID string) (*models.ClientApplication, error) {
	var app models.ClientApplication
	err := c.Do(ctx, sess, Request{
		Method: http.MethodGet,
		Path:   "/api/v1/clients/" + url.PathEscape(clientID),
	}, &app)
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// Authorize posts the authorize form and returns where the browser must go
// next. The Location header is honoured on any status, since the server
// reports both codes and errors through a redirect.
func (c *Client) Authorize(ctx context.Context, form models.AuthorizeForm) (string, error) {
	resp, err := c.send(ctx, nil, Request{
		Method:    http.MethodPost,
		Path:      "/oauth/authorize",
		Form:      authorizeValues(form),
		Anonymous: true,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if location := resp.Header.Get("Location"); location != "" {
		return location, nil
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var body struct {
			RedirectURL string `json:"redirect_url"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.RedirectURL != "" {
			return body.RedirectURL, nil
		}
		return "", fmt.Errorf("authorize response carried no redirect")
	}

	return "", readAPIError(resp)
}

// Discover reads the OpenID Connect discovery document.
func (c *Client) Discover(ctx context.Context) (*models.OIDCConfiguration, error) {
	var cfg models.OIDCConfiguration
	err := c.Do(ctx, nil, Request{
		Method:    http.MethodGet,
		Path:      "/.well-known/openid-configuration",
		Anonymous: true,
	}, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func authorizeValues(form models.AuthorizeForm) url.Values {
	v := url.Values{}
	v.Set("username", form.Username)
	v.Set("password", form.Password)
	v.Set("client_id", form.ClientID)
	v.Set("redirect_uri", form.RedirectURI)
	v.Set("scope", form.Scope)
	v.Set("response_type", "code")
	if form.State != "" {
		v.Set("state", form.State)
	}
	if form.CodeChallenge != "" {
		v.Set("code_challenge", form.CodeChallenge)
	}
	if form.CodeChallengeMethod != "" {
		v.Set("code_challenge_method", form.CodeChallengeMethod)
	}
	if form.Nonce != "" {
		v.Set("nonce", form.Nonce)
	}
	if form.Consent {
		v.Set("consent", "true")
	} else {
		v.Set("consent", "false")
	}
	return v
}
