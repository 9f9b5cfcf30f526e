package authz

var scopeDescriptions = map[string]string{
	"openid":  "Verify your identity",
	"profile": "Access your basic profile (name, username)",
	"email":   "Access your email address",
	"phone":   "Access your phone number",
	"address": "Access your address",
}

// Scope is a requested scope with its consent-screen wording.
type Scope struct {
	Name        string
	Description string
}

// DescribeScopes returns the consent wording for each requested scope.
// Unknown scopes are listed by name.
func (r *Request) DescribeScopes() []Scope {
	names := r.Scopes()
	out := make([]Scope, 0, len(names))
	for _, name := range names {
		desc, ok := scopeDescriptions[name]
		if !ok {
			desc = "Access " + name
		}
		out = append(out, Scope{Name: name, Description: desc})
	}
	return out
}
