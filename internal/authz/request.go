// Package authz models the OAuth2 authorization request that travels
// through the login and consent pages.
package authz

import (
	"fmt"
	"net/url"
	"strings"

	"auth-portal/pkg/errors"
)

// DefaultScope is used when a request carries no scope.
const DefaultScope = "openid"

// DashboardState marks the portal's own sign-in round trip.
const DashboardState = "dashboard_login"

// Query parameter names. They are produced and consumed by the external
// authorization server and must not change.
const (
	ParamResponseType        = "response_type"
	ParamClientID            = "client_id"
	ParamRedirectURI         = "redirect_uri"
	ParamScope               = "scope"
	ParamState               = "state"
	ParamCodeChallenge       = "code_challenge"
	ParamCodeChallengeMethod = "code_challenge_method"
	ParamNonce               = "nonce"
)

// Request is an immutable authorization request.
type Request struct {
	ResponseType        string `json:"response_type"`
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	Scope               string `json:"scope"`
	State               string `json:"state,omitempty"`
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
	Nonce               string `json:"nonce,omitempty"`
}

// Parse builds a Request from query parameters. The PKCE fields are passed
// through untouched; the authorization server validates them.
func Parse(q url.Values) (*Request, error) {
	for _, name := range []string{ParamResponseType, ParamClientID, ParamRedirectURI} {
		if strings.TrimSpace(q.Get(name)) == "" {
			return nil, errors.WithMessage(errors.ErrInvalidRequest, fmt.Sprintf("Missing required parameter: %s", name))
		}
	}

	scope := strings.TrimSpace(q.Get(ParamScope))
	if scope == "" {
		scope = DefaultScope
	}

	return &Request{
		ResponseType:        q.Get(ParamResponseType),
		ClientID:            q.Get(ParamClientID),
		RedirectURI:         q.Get(ParamRedirectURI),
		Scope:               scope,
		State:               q.Get(ParamState),
		CodeChallenge:       q.Get(ParamCodeChallenge),
		CodeChallengeMethod: q.Get(ParamCodeChallengeMethod),
		Nonce:               q.Get(ParamNonce),
	}, nil
}

// Present reports whether q looks like the start of a third-party
// authorization, as opposed to a plain sign-in.
func Present(q url.Values) bool {
	for _, name := range []string{ParamResponseType, ParamClientID, ParamRedirectURI} {
		if q.Get(name) != "" {
			return true
		}
	}
	return false
}

// Synthesize builds the dashboard self-login request so that signing in to
// the portal goes through the same consent and token path as a third party.
func Synthesize(clientID, callbackURL, scope, codeChallenge string) *Request {
	if strings.TrimSpace(scope) == "" {
		scope = DefaultScope
	}
	r := &Request{
		ResponseType: "code",
		ClientID:     clientID,
		RedirectURI:  callbackURL,
		Scope:        scope,
		State:        DashboardState,
	}
	if codeChallenge != "" {
		r.CodeChallenge = codeChallenge
		r.CodeChallengeMethod = "S256"
	}
	return r
}

// Scopes splits the space-delimited scope string.
func (r *Request) Scopes() []string {
	return strings.Fields(r.Scope)
}

// Values encodes r back into query parameters, omitting empty optionals.
func (r *Request) Values() url.Values {
	q := url.Values{}
	q.Set(ParamResponseType, r.ResponseType)
	q.Set(ParamClientID, r.ClientID)
	q.Set(ParamRedirectURI, r.RedirectURI)
	q.Set(ParamScope, r.Scope)
	setIf(q, ParamState, r.State)
	setIf(q, ParamCodeChallenge, r.CodeChallenge)
	setIf(q, ParamCodeChallengeMethod, r.CodeChallengeMethod)
	setIf(q, ParamNonce, r.Nonce)
	return q
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
