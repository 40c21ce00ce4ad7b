// SPDX-License-Identifier: MIT

// Package config loads and validates the proxy configuration from the
// environment.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Config holds the runtime configuration of the proxy.
type Config struct {
	// Listen address.
	Host string
	Port int

	// External identity used when generating proxied URLs.
	ExternalHost   string
	ExternalScheme string

	// CORS origin returned to browsers. "*" allows all.
	CORSAllowedOrigin string

	// Upstream fetch deadlines.
	ManifestTimeout time.Duration
	SegmentTimeout  time.Duration

	// Init-segment cache capacity (entries).
	InitCacheSize int

	// Rate limit for inbound requests (per client IP). Zero disables.
	RateLimitRPS int

	LogLevel string
}

// FromEnv builds a Config from environment variables, applying defaults.
// An invalid or out-of-range PORT is a hard error so the process can refuse
// to start.
func FromEnv() (Config, error) {
	cfg := Config{
		Host:              ParseString("HOST", "0.0.0.0"),
		ExternalHost:      ParseString("EXTERNAL_HOST", "localhost"),
		ExternalScheme:    ParseString("EXTERNAL_SCHEME", "http"),
		CORSAllowedOrigin: ParseString("CORS_ALLOWED_ORIGIN", "*"),
		ManifestTimeout:   ParseDuration("MANIFEST_TIMEOUT", 30*time.Second),
		SegmentTimeout:    ParseDuration("SEGMENT_TIMEOUT", 60*time.Second),
		InitCacheSize:     ParseInt("INIT_CACHE_SIZE", 64),
		RateLimitRPS:      ParseInt("RATE_LIMIT_RPS", 0),
		LogLevel:          ParseString("LOG_LEVEL", ""),
	}

	rawPort := ParseString("PORT", "8080")
	port, err := strconv.Atoi(rawPort)
	if err != nil {
		return Config{}, fmt.Errorf("invalid PORT %q: %w", rawPort, err)
	}
	if port < 1 || port > 65535 {
		return Config{}, fmt.Errorf("PORT %d out of range (1-65535)", port)
	}
	cfg.Port = port

	if cfg.ExternalScheme != "http" && cfg.ExternalScheme != "https" {
		return Config{}, fmt.Errorf("EXTERNAL_SCHEME must be http or https, got %q", cfg.ExternalScheme)
	}
	if cfg.InitCacheSize < 1 {
		return Config{}, fmt.Errorf("INIT_CACHE_SIZE must be positive, got %d", cfg.InitCacheSize)
	}

	return cfg, nil
}

// ListenAddr returns the host:port the server binds to.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BaseURL returns the externally visible base URL used for rewritten URIs.
// The port is included unless it is the default for the scheme.
func (c Config) BaseURL() (*url.URL, error) {
	host := c.ExternalHost
	if !hasDefaultPort(c.ExternalScheme, c.Port) {
		host = fmt.Sprintf("%s:%d", c.ExternalHost, c.Port)
	}
	return url.Parse(c.ExternalScheme + "://" + host)
}

func hasDefaultPort(scheme string, port int) bool {
	return (scheme == "http" && port == 80) || (scheme == "https" && port == 443)
}
