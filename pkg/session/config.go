package session

import "time"

// Config holds session configuration
type Config struct {
	// CookieName is the session name and cookie name (default: "sid")
	CookieName string `env:"SESSION_COOKIE_NAME" envDefault:"sid"`

	// CookieLifetime is the cookie max age; 0 keeps a browser-session cookie
	CookieLifetime time.Duration `env:"SESSION_COOKIE_LIFETIME" envDefault:"0s"`

	CookiePath     string `env:"SESSION_COOKIE_PATH" envDefault:"/"`
	CookieDomain   string `env:"SESSION_COOKIE_DOMAIN"`
	CookieSecure   bool   `env:"SESSION_COOKIE_SECURE" envDefault:"false"`
	CookieHTTPOnly bool   `env:"SESSION_COOKIE_HTTPONLY" envDefault:"true"`

	// Expiration is the max age used by GC when no explicit age is passed
	Expiration time.Duration `env:"SESSION_EXPIRATION" envDefault:"1440s"`

	// SavePath is handed to Backend.Open (directory for the file backend)
	SavePath string `env:"SESSION_SAVE_PATH"`

	LockTimeout time.Duration `env:"SESSION_LOCK_TIMEOUT" envDefault:"300s"`

	// GC runs on GCProbability out of GCDivisor requests (0 disables)
	GCProbability int `env:"SESSION_GC_PROBABILITY" envDefault:"1"`
	GCDivisor     int `env:"SESSION_GC_DIVISOR" envDefault:"100"`
}

// DefaultConfig returns default session configuration
func DefaultConfig() Config {
	return Config{
		CookieName:     "sid",
		CookiePath:     "/",
		CookieHTTPOnly: true,
		Expiration:     1440 * time.Second,
		LockTimeout:    DefaultLockTimeout,
		GCProbability:  1,
		GCDivisor:      100,
	}
}

// withDefaults fills zero values that would make the config unusable.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.CookieName == "" {
		c.CookieName = def.CookieName
	}
	if c.CookiePath == "" {
		c.CookiePath = def.CookiePath
	}
	if c.Expiration <= 0 {
		c.Expiration = def.Expiration
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = def.LockTimeout
	}
	if c.GCDivisor <= 0 {
		c.GCDivisor = def.GCDivisor
	}
	if c.GCProbability < 0 {
		c.GCProbability = 0
	}
	return c
}
