// Package config loads runtime configuration from the environment and
// site descriptors from disk, validating both eagerly so a bad setup
// fails at startup instead of mid-crawl.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Browser   BrowserConfig
	Crawl     CrawlConfig
	RateLimit RateLimitConfig
	Webhook   WebhookConfig
	Log       LogConfig
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the proxy URL for all browser traffic.
	Proxy string

	// Stealth toggles anti-detection script injection.
	Stealth bool // default: true

	// AcceptLanguage is sent as the Accept-Language header.
	AcceptLanguage string // default: "en-US,en;q=0.9"
}

// CrawlConfig controls crawl behavior.
type CrawlConfig struct {
	// RenderTimeout bounds one page's navigation-plus-readiness wait.
	RenderTimeout time.Duration // default: 30s

	// HTTPTimeout is the deadline for the plain HTTP engine.
	HTTPTimeout time.Duration // default: 10s

	// PollAttempts and PollInterval bound the pagination click's
	// change-detection poll.
	PollAttempts int           // default: 50
	PollInterval time.Duration // default: 100ms

	// MaxPages caps listing pages visited per start URL; 0 means unbounded.
	MaxPages int // default: 0

	// DescriptorDir is searched for site descriptors by name.
	DescriptorDir string // default: "descriptors"
}

// RateLimitConfig controls the crawl's request pacing.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained fetch rate.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum fetch burst.
	Burst int // default: 2
}

// WebhookConfig controls the optional webhook record sink.
type WebhookConfig struct {
	// URL receives one POST per assembled record; empty disables the sink.
	URL string

	// Secret signs deliveries with HMAC-SHA256 when set.
	Secret string

	// Timeout bounds one delivery attempt.
	Timeout time.Duration // default: 10s
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:       envBoolOr("GLEANER_HEADLESS", true),
			NoSandbox:      envBoolOr("GLEANER_NO_SANDBOX", false),
			BrowserBin:     os.Getenv("GLEANER_BROWSER_BIN"),
			Proxy:          os.Getenv("GLEANER_PROXY"),
			Stealth:        envBoolOr("GLEANER_STEALTH", true),
			AcceptLanguage: envOr("GLEANER_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
		},
		Crawl: CrawlConfig{
			RenderTimeout: envDurationOr("GLEANER_RENDER_TIMEOUT", 30*time.Second),
			HTTPTimeout:   envDurationOr("GLEANER_HTTP_TIMEOUT", 10*time.Second),
			PollAttempts:  envIntOr("GLEANER_POLL_ATTEMPTS", 50),
			PollInterval:  envDurationOr("GLEANER_POLL_INTERVAL", 100*time.Millisecond),
			MaxPages:      envIntOr("GLEANER_MAX_PAGES", 0),
			DescriptorDir: envOr("GLEANER_DESCRIPTOR_DIR", "descriptors"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("GLEANER_RATE_RPS", 1.0),
			Burst:             envIntOr("GLEANER_RATE_BURST", 2),
		},
		Webhook: WebhookConfig{
			URL:     os.Getenv("GLEANER_WEBHOOK_URL"),
			Secret:  os.Getenv("GLEANER_WEBHOOK_SECRET"),
			Timeout: envDurationOr("GLEANER_WEBHOOK_TIMEOUT", 10*time.Second),
		},
		Log: LogConfig{
			Level:  envOr("GLEANER_LOG_LEVEL", "info"),
			Format: envOr("GLEANER_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
