package session

import (
	"net/http"
	"time"
)

// CookieTransport implements Transport using a plain cookie
type CookieTransport struct {
	name     string
	lifetime time.Duration
	path     string
	domain   string
	secure   bool
	httpOnly bool
}

// NewCookieTransport creates a cookie transport from the cookie settings of cfg
func NewCookieTransport(cfg Config) *CookieTransport {
	cfg = cfg.withDefaults()
	return &CookieTransport{
		name:     cfg.CookieName,
		lifetime: cfg.CookieLifetime,
		path:     cfg.CookiePath,
		domain:   cfg.CookieDomain,
		secure:   cfg.CookieSecure,
		httpOnly: cfg.CookieHTTPOnly,
	}
}

// GetID extracts the session identifier from the cookie
func (t *CookieTransport) GetID(r *http.Request) (string, error) {
	c, err := r.Cookie(t.name)
	if err != nil || c.Value == "" {
		return "", ErrInvalidIdentifier
	}
	return c.Value, nil
}

// SetID stores the session identifier in a cookie
func (t *CookieTransport) SetID(w http.ResponseWriter, id string) error {
	c := t.cookie(id)
	if t.lifetime > 0 {
		c.MaxAge = int(t.lifetime.Seconds())
		c.Expires = time.Now().Add(t.lifetime)
	}
	http.SetCookie(w, c)
	return nil
}

// ClearID expires the session cookie
func (t *CookieTransport) ClearID(w http.ResponseWriter) error {
	c := t.cookie("")
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	http.SetCookie(w, c)
	return nil
}

func (t *CookieTransport) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     t.name,
		Value:    value,
		Path:     t.path,
		Domain:   t.domain,
		Secure:   t.secure,
		HttpOnly: t.httpOnly,
		SameSite: http.SameSiteLaxMode, // CSRF protection
	}
}
