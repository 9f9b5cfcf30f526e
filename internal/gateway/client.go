// Package gateway is the portal's HTTP client for the authorization server.
// It attaches the session's bearer token and the device id to every call
// and recovers from an expired access token with a bounded refresh.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"auth-portal/internal/device"
	"auth-portal/internal/metrics"
	"auth-portal/internal/session"
	"auth-portal/pkg/errors"

	"go.uber.org/zap"
)

// Request describes one backend call. Body is sent as JSON, Form as
// application/x-www-form-urlencoded; at most one may be set.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   interface{}
	Form   url.Values
	// Anonymous calls never carry a bearer token and a 401 is returned to
	// the caller as an *APIError instead of triggering a refresh.
	Anonymous bool
}

// APIError is a non-2xx backend response.
type APIError struct {
	StatusCode int
	// Location is set when the backend answered with a redirect.
	Location string
	Detail   string
}

func (e *APIError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("backend responded %d redirect to %s", e.StatusCode, e.Location)
	}
	if e.Detail != "" {
		return fmt.Sprintf("backend responded %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("backend responded %d", e.StatusCode)
}

// Client talks to the authorization server.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  *TokenClient
	policy  RefreshPolicy
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewClient creates a gateway client. Redirects are never followed so that
// the authorize endpoint's Location can be handed to the browser.
func NewClient(baseURL string, httpClient *http.Client, tokens *TokenClient, policy RefreshPolicy, m *metrics.Metrics, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	noRedirect := *httpClient
	noRedirect.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &noRedirect,
		tokens:  tokens,
		policy:  policy,
		metrics: m,
		logger:  logger,
	}
}

// Do sends req and decodes a 2xx JSON body into out (when out is not nil).
// A 401 on an authenticated call triggers the refresh policy; when the
// session cannot be recovered the store is cleared and
// errors.ErrSessionExpired is returned.
func (c *Client) Do(ctx context.Context, sess *session.Store, req Request, out interface{}) error {
	resp, err := c.send(ctx, sess, req)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && !req.Anonymous {
		resp.Body.Close()
		resp, err = c.recover(ctx, sess, req)
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	return decode(resp, out)
}

// recover runs the refresh policy after a 401. It returns the response of
// the retried request or ErrSessionExpired.
func (c *Client) recover(ctx context.Context, sess *session.Store, req Request) (*http.Response, error) {
	if sess == nil {
		return nil, errors.ErrSessionExpired
	}

	for attempt := 0; attempt < c.policy.MaxAttempts; attempt++ {
		refresh := sess.RefreshToken()
		if refresh == "" {
			break
		}

		tok, err := c.tokens.Refresh(ctx, refresh)
		if err != nil {
			c.metrics.IncrementTokenRefresh("failure")
			c.logger.Warn("Token refresh failed", zap.String("path", req.Path), zap.Error(err))
			break
		}
		c.metrics.IncrementTokenRefresh("success")

		next := tok.RefreshToken
		if next == "" {
			next = refresh
		}
		sess.SetTokens(tok.AccessToken, next)

		resp, err := c.send(ctx, sess, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusUnauthorized {
			return resp, nil
		}
		resp.Body.Close()
	}

	sess.ClearTokens()
	c.metrics.IncrementSessionsExpired()
	c.logger.Info("Session expired", zap.String("path", req.Path))
	return nil, errors.ErrSessionExpired
}

func (c *Client) send(ctx context.Context, sess *session.Store, req Request) (*http.Response, error) {
	var (
		body        io.Reader
		contentType string
	)
	switch {
	case req.Body != nil:
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if id := device.FromContext(ctx); id != "" {
		httpReq.Header.Set(device.HeaderName, id)
	}
	if !req.Anonymous && sess != nil {
		if token := sess.AccessToken(); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrUpstream)
	}
	return resp, nil
}

func decode(resp *http.Response, out interface{}) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// readAPIError extracts the backend's error text. Both the FastAPI style
// {"detail": "..."} and OAuth2 style {"error_description": "..."} bodies
// are understood.
func readAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Location:   resp.Header.Get("Location"),
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(data) == 0 {
		return apiErr
	}

	var body struct {
		Detail           json.RawMessage `json:"detail"`
		Error            string          `json:"error"`
		ErrorDescription string          `json:"error_description"`
		Message          string          `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return apiErr
	}

	var detail string
	if len(body.Detail) > 0 && json.Unmarshal(body.Detail, &detail) == nil {
		apiErr.Detail = detail
	}
	for _, candidate := range []string{body.ErrorDescription, body.Message, body.Error} {
		if apiErr.Detail == "" {
			apiErr.Detail = candidate
		}
	}
	return apiErr
}
