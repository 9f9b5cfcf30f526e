package gateway

// RefreshPolicy bounds how a 401 from the backend is recovered from.
type RefreshPolicy struct {
	// MaxAttempts is the number of refresh grants tried per request. Each
	// successful refresh is followed by exactly one retry of the request.
	MaxAttempts int
}

// DefaultRefreshPolicy performs a single refresh and a single retry.
var DefaultRefreshPolicy = RefreshPolicy{MaxAttempts: 1}
