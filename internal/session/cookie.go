package session

import (
	"net/http"
	"time"
)

// CookieKV stores entries as cookies on the browser. Reads come from the
// incoming request; writes become Set-Cookie headers and are also visible to
// later reads during the same request.
type CookieKV struct {
	r       *http.Request
	w       http.ResponseWriter
	secure  bool
	pending map[string]*string
	now     func() time.Time
}

// NewCookieKV binds a cookie store to one request/response pair.
func NewCookieKV(w http.ResponseWriter, r *http.Request, secure bool) *CookieKV {
	return &CookieKV{
		r:       r,
		w:       w,
		secure:  secure,
		pending: make(map[string]*string),
		now:     time.Now,
	}
}

func (c *CookieKV) Get(key string) (string, bool) {
	if v, ok := c.pending[key]; ok {
		if v == nil {
			return "", false
		}
		return *v, true
	}
	cookie, err := c.r.Cookie(key)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

func (c *CookieKV) Set(key, value string, ttl time.Duration) {
	http.SetCookie(c.w, &http.Cookie{
		Name:     key,
		Value:    value,
		Path:     "/",
		Expires:  c.now().Add(ttl),
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	v := value
	c.pending[key] = &v
}

func (c *CookieKV) Delete(key string) {
	http.SetCookie(c.w, &http.Cookie{
		Name:     key,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	c.pending[key] = nil
}
