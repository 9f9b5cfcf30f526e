// Package flow drives the relying-party side of the authorization code
// flow: credential entry, the optional one-time code step, consent, the
// authorize decision and the callback. Each method handles one page load
// and derives its starting State from the request alone.
package flow

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/url"
	"strings"

	"auth-portal/internal/auth"
	"auth-portal/internal/authz"
	"auth-portal/internal/gateway"
	"auth-portal/internal/metrics"
	"auth-portal/internal/models"
	"auth-portal/internal/session"
	"auth-portal/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// OTPLength is the number of characters in a one-time code.
const OTPLength = 6

// Backend is the part of the authorization server the orchestrator calls.
type Backend interface {
	Login(ctx context.Context, username, password, totp string) (*models.LoginResponse, error)
	ClientInfo(ctx context.Context, sess *session.Store, clientID string) (*models.ClientApplication, error)
	Authorize(ctx context.Context, form models.AuthorizeForm) (string, error)
}

// Exchanger redeems authorization codes for the dashboard client.
type Exchanger interface {
	Exchange(ctx context.Context, code, verifier string) (*models.TokenResponse, error)
}

// IDTokenVerifier checks an id_token returned by the exchange.
type IDTokenVerifier interface {
	Validate(ctx context.Context, idToken, audience, nonce string) (jwt.MapClaims, error)
}

// SessionStarter persists exchanged tokens; it is the request's auth context.
type SessionStarter interface {
	Login(ctx context.Context, access, refresh string) error
}

// Config is the dashboard client the portal signs itself in with.
type Config struct {
	DashboardClientID string
	DashboardScope    string
	CallbackURL       string
}

// Orchestrator coordinates the sign-in pages.
type Orchestrator struct {
	cfg       Config
	backend   Backend
	exchanger Exchanger
	tokens    Tokens
	guard     Guard
	idTokens  IDTokenVerifier
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg Config, backend Backend, exchanger Exchanger, tokens Tokens, guard Guard, m *metrics.Metrics, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		backend:   backend,
		exchanger: exchanger,
		tokens:    tokens,
		guard:     guard,
		metrics:   m,
		logger:    logger,
	}
}

// SetIDTokenVerifier enables id_token verification on the dashboard
// exchange.
func (o *Orchestrator) SetIDTokenVerifier(v IDTokenVerifier) {
	o.idTokens = v
}

// LoginInput is one submission of the login page.
type LoginInput struct {
	// Request is the authorization in flight, nil for a plain sign-in.
	Request  *authz.Request
	Username string
	Password string
	TOTP     string
	// Flow is set when resubmitting with a one-time code; the credentials
	// are then taken from it.
	Flow string
}

// LoginResult tells the login page what to render next.
type LoginResult struct {
	State    State
	Flow     string
	Username string
	// ConsentURL is set once the credentials are accepted.
	ConsentURL string
}

// Login checks the submitted credentials and moves the flow to consent, or
// to the one-time code step when the backend asks for it. A rejected
// one-time code returns both an error and a result to re-render the code
// step with. An accepted flow cannot be submitted again.
func (o *Orchestrator) Login(ctx context.Context, sess *session.Store, in LoginInput) (*LoginResult, error) {
	state := Unauthenticated
	pending := &Pending{
		Username: strings.TrimSpace(in.Username),
		Password: in.Password,
	}

	if in.Flow != "" {
		// The flow stays valid until the code is accepted so the page can
		// be resubmitted after a typo.
		p, err := o.tokens.Open(ctx, in.Flow)
		if err != nil {
			return nil, err
		}
		pending = p
		state = MfaRequired
	} else if in.Request != nil {
		pending.Request = *in.Request
	} else {
		verifier := auth.NewVerifier()
		sess.SetVerifier(verifier)
		pending.Request = *authz.Synthesize(o.cfg.DashboardClientID, o.cfg.CallbackURL, o.cfg.DashboardScope, auth.Challenge(verifier))
		pending.AutoLogin = true
	}

	state, err := Transition(state, EventSubmit)
	if err != nil {
		return nil, err
	}

	if pending.Username == "" || pending.Password == "" {
		return nil, errors.WithMessage(errors.ErrInvalidCredentials, "Username and password are required")
	}
	totp := strings.TrimSpace(in.TOTP)
	if in.Flow != "" && len(totp) != OTPLength {
		return &LoginResult{State: MfaRequired, Flow: in.Flow, Username: pending.Username},
			errors.WithMessage(errors.ErrMFARequired, "Enter the 6-digit code from your authenticator app")
	}

	resp, err := o.backend.Login(ctx, pending.Username, pending.Password, totp)
	if err != nil {
		o.metrics.IncrementFlowStep("login", "rejected")
		lerr := loginError(err)
		if in.Flow != "" && stderrors.Is(lerr, errors.ErrInvalidCredentials) {
			return &LoginResult{State: MfaRequired, Flow: in.Flow, Username: pending.Username},
				errors.WithMessage(lerr, "Invalid verification code")
		}
		if in.Flow != "" {
			return nil, lerr
		}
		if state, err = Transition(state, EventReject); err != nil {
			return nil, err
		}
		return &LoginResult{State: state, Username: pending.Username}, lerr
	}

	if resp.RequiresMFA {
		if state, err = Transition(state, EventChallenge); err != nil {
			return nil, err
		}
		if in.Flow != "" {
			return &LoginResult{State: state, Flow: in.Flow, Username: pending.Username},
				errors.WithMessage(errors.ErrInvalidCredentials, "Invalid verification code")
		}
		token, err := o.tokens.Issue(ctx, pending)
		if err != nil {
			return nil, err
		}
		o.metrics.IncrementFlowStep("login", "mfa_required")
		return &LoginResult{State: state, Flow: token, Username: pending.Username}, nil
	}

	if state, err = Transition(state, EventAccept); err != nil {
		return nil, err
	}
	if in.Flow != "" {
		if _, err := o.tokens.Consume(ctx, in.Flow); err != nil {
			o.logger.Warn("Failed to consume mfa flow", zap.Error(err))
		}
		first, err := o.guard.Claim(ctx, onceKey("mfa", in.Flow))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrInternalServer)
		}
		if !first {
			return nil, errors.ErrFlowExpired
		}
	}

	token, err := o.tokens.Issue(ctx, pending)
	if err != nil {
		return nil, err
	}
	o.metrics.IncrementFlowStep("login", "accepted")
	return &LoginResult{
		State:      state,
		Flow:       token,
		Username:   pending.Username,
		ConsentURL: "/consent?" + url.Values{"flow": {token}}.Encode(),
	}, nil
}

// loginError maps a backend login failure to what the page shows.
func loginError(err error) *errors.ServiceError {
	var apiErr *gateway.APIError
	if !stderrors.As(err, &apiErr) {
		return errors.As(err)
	}
	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return errors.Wrap(err, errors.ErrRateLimitExceeded)
	case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusForbidden:
		se := errors.Wrap(err, errors.ErrInvalidCredentials)
		if apiErr.Detail != "" {
			se.Message = apiErr.Detail
		}
		return se
	default:
		return errors.Wrap(err, errors.ErrUpstream)
	}
}

// ConsentView is what the consent page renders.
type ConsentView struct {
	State    State
	Flow     string
	Request  authz.Request
	Scopes   []authz.Scope
	Client   *models.ClientApplication
	Username string
	// Redirect is set when consent was granted without asking, which is
	// the case for the portal's own sign-in.
	Redirect string
}

// Consent loads the consent screen for a flow token.
func (o *Orchestrator) Consent(ctx context.Context, sess *session.Store, flowToken string) (*ConsentView, error) {
	pending, err := o.tokens.Open(ctx, flowToken)
	if err != nil {
		return nil, err
	}

	client, err := o.backend.ClientInfo(ctx, sess, pending.Request.ClientID)
	if err != nil {
		if stderrors.Is(err, errors.ErrSessionExpired) {
			return nil, err
		}
		o.logger.Warn("Failed to fetch client info", zap.String("client_id", pending.Request.ClientID), zap.Error(err))
		return nil, errors.Wrap(err, errors.ErrInvalidClient)
	}

	view := &ConsentView{
		State:    ConsentPending,
		Flow:     flowToken,
		Request:  pending.Request,
		Scopes:   pending.Request.DescribeScopes(),
		Client:   client,
		Username: pending.Username,
	}

	if pending.AutoLogin {
		decision, err := o.Decide(ctx, flowToken, true)
		if err != nil {
			return nil, err
		}
		view.State = decision.State
		view.Redirect = decision.Location
	}
	return view, nil
}

// Decision is the outcome of the consent page.
type Decision struct {
	State    State
	Location string
}

// Decide submits the user's answer to the authorize endpoint and returns
// the redirect the browser must follow. A flow token can be decided once.
func (o *Orchestrator) Decide(ctx context.Context, flowToken string, allow bool) (*Decision, error) {
	pending, err := o.tokens.Consume(ctx, flowToken)
	if err != nil {
		return nil, err
	}
	first, err := o.guard.Claim(ctx, onceKey("flow", flowToken))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternalServer)
	}
	if !first {
		return nil, errors.ErrFlowExpired
	}

	event := EventDeny
	if allow {
		event = EventAllow
	}
	state, err := Transition(ConsentPending, event)
	if err != nil {
		return nil, err
	}

	req := pending.Request
	location, err := o.backend.Authorize(ctx, models.AuthorizeForm{
		Username:            pending.Username,
		Password:            pending.Password,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		Nonce:               req.Nonce,
		Consent:             allow,
	})
	if err != nil {
		o.metrics.IncrementFlowStep("authorize", "failed")
		o.logger.Warn("Authorize request failed", zap.String("client_id", req.ClientID), zap.Error(err))
		return nil, authorizeError(err)
	}

	if !allow {
		location = denyLocation(location, req)
		o.metrics.IncrementFlowStep("consent", "deny")
	} else {
		o.metrics.IncrementFlowStep("consent", "allow")
	}

	return &Decision{State: state, Location: location}, nil
}

// authorizeError maps an authorize failure that carried no redirect.
func authorizeError(err error) *errors.ServiceError {
	var apiErr *gateway.APIError
	if !stderrors.As(err, &apiErr) {
		return errors.As(err)
	}
	base := errors.ErrUpstream
	switch apiErr.StatusCode {
	case http.StatusForbidden:
		base = errors.ErrAccessDenied
	case http.StatusBadRequest:
		base = errors.ErrInvalidClient
	case http.StatusUnauthorized:
		base = errors.ErrInvalidCredentials
	}
	se := errors.Wrap(err, base)
	if apiErr.Detail != "" {
		se.Message = apiErr.Detail
	}
	return se
}

// denyLocation makes sure the relying party learns about a denial even
// when the server's redirect omits the error.
func denyLocation(location string, req authz.Request) string {
	u, err := url.Parse(location)
	if err != nil {
		if u, err = url.Parse(req.RedirectURI); err != nil {
			return location
		}
	}
	q := u.Query()
	if q.Get("error") != "" {
		return location
	}
	q.Del("code")
	q.Set("error", errors.ErrAccessDenied.Code)
	q.Set("error_description", errors.ErrAccessDenied.Message)
	if req.State != "" {
		q.Set("state", req.State)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// CallbackResult is what the callback page renders or follows.
type CallbackResult struct {
	State            State
	Code             string
	Error            string
	ErrorDescription string
	StateParam       string
	Dashboard        bool
	// Duplicate is set when the code was already presented to this portal.
	Duplicate bool
	// Redirect is set once a session is active.
	Redirect string
}

// Callback handles the redirect back from the authorization server. Only
// the portal's own sign-in exchanges the code, and only once; any other
// callback is informational and leaves the session untouched.
func (o *Orchestrator) Callback(ctx context.Context, q url.Values, sess *session.Store, starter SessionStarter) (*CallbackResult, error) {
	code, errCode := q.Get("code"), q.Get("error")
	if code == "" && errCode == "" {
		return nil, errors.WithMessage(errors.ErrInvalidRequest, "No authorization code or error received")
	}

	result := &CallbackResult{
		State:            FromCallback(q),
		Code:             code,
		Error:            errCode,
		ErrorDescription: q.Get("error_description"),
		StateParam:       q.Get("state"),
		Dashboard:        q.Get("state") == authz.DashboardState,
	}
	if result.State != Authorized || !result.Dashboard {
		o.metrics.IncrementFlowStep("callback", result.State.String())
		return result, nil
	}

	first, err := o.guard.Claim(ctx, onceKey("exchanged_code", code))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternalServer)
	}
	if !first {
		result.Duplicate = true
		if sess.IsAuthenticated() {
			result.State = SessionActive
			result.Redirect = "/dashboard"
		}
		return result, nil
	}

	state, err := Transition(result.State, EventExchange)
	if err != nil {
		return nil, err
	}

	verifier, _ := sess.TakeVerifier()
	tok, err := o.exchanger.Exchange(ctx, code, verifier)
	if err != nil {
		o.metrics.IncrementTokenExchange("failure")
		o.logger.Warn("Token exchange failed", zap.Error(err))
		return result.fail(state, errors.Wrap(err, errors.ErrTokenExchangeFailed))
	}

	if o.idTokens != nil && tok.IDToken != "" {
		if _, err := o.idTokens.Validate(ctx, tok.IDToken, o.cfg.DashboardClientID, ""); err != nil {
			o.metrics.IncrementTokenExchange("invalid_id_token")
			o.logger.Warn("id_token rejected", zap.Error(err))
			return result.fail(state, errors.Wrap(err, errors.ErrTokenExchangeFailed))
		}
	}

	// A request abandoned mid-exchange must not leave half a session.
	if err := ctx.Err(); err != nil {
		return result.fail(state, errors.Wrap(err, errors.ErrTokenExchangeFailed))
	}

	if err := starter.Login(ctx, tok.AccessToken, tok.RefreshToken); err != nil {
		return result.fail(state, err)
	}
	o.metrics.IncrementTokenExchange("success")

	if result.State, err = Transition(state, EventPersist); err != nil {
		return nil, err
	}
	result.Redirect = "/dashboard"
	return result, nil
}

// fail moves the callback to Error and returns cause with the result.
func (r *CallbackResult) fail(from State, cause error) (*CallbackResult, error) {
	next, err := Transition(from, EventFail)
	if err != nil {
		return nil, err
	}
	r.State = next
	return r, cause
}
