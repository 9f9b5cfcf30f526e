package config

import (
	"encoding/base64"
	"encoding/hex"
	"os"
	"strconv"
	"strings"
	"time"
)

// Flow token backends.
const (
	FlowStoreSealed = "sealed"
	FlowStoreRedis  = "redis"
)

// Config holds all configuration for the application
type Config struct {
	ServerPort string
	// BaseURL is the externally visible origin of the portal; the dashboard
	// callback is BaseURL + "/callback".
	BaseURL string

	AuthServerURL     string
	DashboardClientID string
	DashboardScope    string
	OIDCDiscovery     bool
	JWKSURL           string
	IDTokenIssuer     string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	CookieSecure    bool

	FlowStore    string
	FlowTokenKey []byte
	FlowTokenTTL time.Duration
	RedisURL     string

	LoginRateLimit  int
	LoginRateWindow time.Duration

	HTTPTimeout time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:        getEnv("SERVER_PORT", "3000"),
		BaseURL:           strings.TrimRight(getEnv("BASE_URL", "http://localhost:3000"), "/"),
		AuthServerURL:     strings.TrimRight(getEnv("AUTH_SERVER_URL", "http://localhost:8000"), "/"),
		DashboardClientID: getEnv("DASHBOARD_CLIENT_ID", "laaa-dashboard"),
		DashboardScope:    getEnv("DASHBOARD_SCOPE", "openid profile email"),
		OIDCDiscovery:     getBoolEnv("OIDC_DISCOVERY", false),
		JWKSURL:           getEnv("JWKS_URL", ""),
		IDTokenIssuer:     getEnv("ID_TOKEN_ISSUER", ""),
		AccessTokenTTL:    getDurationEnv("ACCESS_TOKEN_TTL", 24*time.Hour),
		RefreshTokenTTL:   getDurationEnv("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		CookieSecure:      getBoolEnv("COOKIE_SECURE", false),
		FlowStore:         getEnv("FLOW_STORE", FlowStoreSealed),
		FlowTokenTTL:      getDurationEnv("FLOW_TOKEN_TTL", 5*time.Minute),
		RedisURL:          getEnv("REDIS_URL", ""),
		LoginRateLimit:    getIntEnv("LOGIN_RATE_LIMIT", 10),
		LoginRateWindow:   getDurationEnv("LOGIN_RATE_WINDOW", time.Minute),
		HTTPTimeout:       getDurationEnv("HTTP_TIMEOUT", 10*time.Second),
	}

	switch cfg.FlowStore {
	case FlowStoreSealed:
		key, err := parseKey(getEnv("FLOW_TOKEN_KEY", ""))
		if err != nil {
			return nil, err
		}
		cfg.FlowTokenKey = key
	case FlowStoreRedis:
		if cfg.RedisURL == "" {
			return nil, &ConfigError{Message: "REDIS_URL must be set when FLOW_STORE=redis"}
		}
	default:
		return nil, &ConfigError{Message: "FLOW_STORE must be one of sealed, redis"}
	}

	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return nil, &ConfigError{Message: "ACCESS_TOKEN_TTL and REFRESH_TOKEN_TTL must be positive"}
	}

	return cfg, nil
}

// CallbackURL is the redirect URI registered for the dashboard client.
func (c *Config) CallbackURL() string {
	return c.BaseURL + "/callback"
}

// parseKey accepts a 32 byte key encoded as hex or base64.
func parseKey(raw string) ([]byte, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "FLOW_TOKEN_KEY must be set when FLOW_STORE=sealed"}
	}
	if key, err := hex.DecodeString(raw); err == nil && len(key) == 32 {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(raw); err == nil && len(key) == 32 {
		return key, nil
	}
	return nil, &ConfigError{Message: "FLOW_TOKEN_KEY must be 32 bytes, hex or base64 encoded"}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		// Try parsing as seconds
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

// ConfigError represents a configuration error
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
