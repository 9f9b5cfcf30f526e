package flow

import (
	"errors"
	"fmt"
	"net/url"
)

// State is the position of one browser in the sign-in flow. It is never
// stored; every page derives it from its URL, the session store and the
// flow token.
type State int

const (
	Unauthenticated State = iota
	CredentialsEntered
	MfaRequired
	ConsentPending
	Authorized
	TokenExchanged
	SessionActive
	Denied
	Error
)

var stateNames = map[State]string{
	Unauthenticated:    "unauthenticated",
	CredentialsEntered: "credentials_entered",
	MfaRequired:        "mfa_required",
	ConsentPending:     "consent_pending",
	Authorized:         "authorized",
	TokenExchanged:     "token_exchanged",
	SessionActive:      "session_active",
	Denied:             "denied",
	Error:              "error",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further event is accepted.
func (s State) Terminal() bool {
	return s == SessionActive || s == Denied || s == Error
}

// Event drives a Transition.
type Event int

const (
	EventSubmit Event = iota
	EventChallenge
	EventReject
	EventAccept
	EventAllow
	EventDeny
	EventExchange
	EventPersist
	EventFail
)

var eventNames = map[Event]string{
	EventSubmit:    "submit",
	EventChallenge: "challenge",
	EventReject:    "reject",
	EventAccept:    "accept",
	EventAllow:     "allow",
	EventDeny:      "deny",
	EventExchange:  "exchange",
	EventPersist:   "persist",
	EventFail:      "fail",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// ErrIllegalTransition is returned for an event the state does not accept.
var ErrIllegalTransition = errors.New("illegal flow transition")

type edge struct {
	from State
	on   Event
}

var transitions = map[edge]State{
	{Unauthenticated, EventSubmit}:       CredentialsEntered,
	{MfaRequired, EventSubmit}:           CredentialsEntered,
	{CredentialsEntered, EventChallenge}: MfaRequired,
	{CredentialsEntered, EventReject}:    Unauthenticated,
	{CredentialsEntered, EventAccept}:    ConsentPending,
	{ConsentPending, EventAllow}:         Authorized,
	{ConsentPending, EventDeny}:          Denied,
	{Authorized, EventExchange}:          TokenExchanged,
	{TokenExchanged, EventPersist}:       SessionActive,
}

// Transition returns the state reached from s on e. Any non-terminal state
// moves to Error on EventFail. The only way into TokenExchanged is from
// Authorized, which is what keeps a code from being exchanged twice within
// one pass.
func Transition(s State, e Event) (State, error) {
	if e == EventFail && !s.Terminal() {
		return Error, nil
	}
	next, ok := transitions[edge{s, e}]
	if !ok {
		return s, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, e, s)
	}
	return next, nil
}

// FromCallback derives the state of a redirect back from the
// authorization server.
func FromCallback(q url.Values) State {
	switch {
	case q.Get("error") == "access_denied":
		return Denied
	case q.Get("error") != "":
		return Error
	case q.Get("code") != "":
		return Authorized
	default:
		return Error
	}
}
