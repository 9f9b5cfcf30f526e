package models

import "time"

// User is the authenticated user's profile and security state as reported
// by the backend. It is never authored by the portal.
type User struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	FullName      string     `json:"full_name,omitempty"`
	SecurityLevel int        `json:"security_level"`
	TOTPEnabled   bool       `json:"totp_enabled"`
	EmailVerified bool       `json:"email_verified"`
	IsActive      bool       `json:"is_active"`
	IsAdmin       bool       `json:"is_admin"`
	CreatedAt     time.Time  `json:"created_at"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
}

// ClientApplication is the public descriptor of a relying application,
// used only to render consent.
type ClientApplication struct {
	ClientID              string   `json:"client_id"`
	Name                  string   `json:"client_name"`
	Description           string   `json:"client_description,omitempty"`
	LogoURI               string   `json:"logo_uri,omitempty"`
	ClientURI             string   `json:"client_uri,omitempty"`
	PolicyURI             string   `json:"policy_uri,omitempty"`
	TOSURI                string   `json:"tos_uri,omitempty"`
	RedirectURIs          []string `json:"redirect_uris,omitempty"`
	RequiredSecurityLevel int      `json:"required_security_level"`
	RequireMFA            bool     `json:"require_mfa"`
}

// TokenResponse represents the OAuth2 token response
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// LoginRequest is the direct credential check, optionally carrying a TOTP code.
type LoginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	TOTPToken string `json:"totp_token,omitempty"`
}

// LoginResponse either asks for a second factor or carries tokens.
type LoginResponse struct {
	RequiresMFA  bool   `json:"requires_mfa,omitempty"`
	Message      string `json:"message,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// AuthorizeForm is the body posted to the authorize endpoint.
type AuthorizeForm struct {
	Username            string
	Password            string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	Nonce               string
	Consent             bool
}

// OIDCConfiguration is the subset of the OpenID Connect discovery document
// the portal reads from the authorization server.
type OIDCConfiguration struct {
	Issuer                string   `json:"issuer"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	UserinfoEndpoint      string   `json:"userinfo_endpoint,omitempty"`
	JwksURI               string   `json:"jwks_uri"`
	ScopesSupported       []string `json:"scopes_supported,omitempty"`
}

// SessionResponse is the JSON view of the current browser session.
type SessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	User          *User  `json:"user,omitempty"`
	DeviceID      string `json:"device_id,omitempty"`
}
