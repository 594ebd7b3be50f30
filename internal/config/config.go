package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port           string
	Env            string
	WebhookBaseURL string // public base URL the remote calls; "/dms" is appended
	FrontendURL    string
	RedisURL       string // optional; rate limiting is disabled without it

	// Sessions and tokens
	SessionTimeout time.Duration
	SweepInterval  time.Duration
	TokenMaxAge    time.Duration
	TokenClockSkew time.Duration

	ActivityLimit   int
	OutboundTimeout time.Duration
	CustomerName    string
	MaxBodyBytes    int64

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "3001"),
		Env:              getEnv("ENV", "development"),
		WebhookBaseURL:   strings.TrimRight(os.Getenv("WEBHOOK_BASE_URL"), "/"),
		FrontendURL:      os.Getenv("FRONTEND_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		SessionTimeout:   getDuration("SESSION_TIMEOUT", 30*time.Minute),
		SweepInterval:    getDuration("SWEEP_INTERVAL", 5*time.Minute),
		TokenMaxAge:      getDuration("TOKEN_MAX_AGE", 300*time.Second),
		TokenClockSkew:   getDuration("TOKEN_CLOCK_SKEW", 30*time.Second),
		ActivityLimit:    getInt("ACTIVITY_LIMIT", 1000),
		OutboundTimeout:  getDuration("OUTBOUND_TIMEOUT", 10*time.Second),
		CustomerName:     getEnv("CUSTOMER_NAME", "Customer"),
		MaxBodyBytes:     int64(getInt("MAX_BODY_BYTES", 1<<20)),
		AutoBlockEnabled: getEnv("AUTO_BLOCK_ENABLED", "false") == "true",
	}

	// Parse whitelist (comma-separated IPs or CIDRs)
	if whitelist := os.Getenv("RATE_LIMIT_WHITELIST"); whitelist != "" {
		for _, entry := range strings.Split(whitelist, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.RateLimitWhitelist = append(cfg.RateLimitWhitelist, entry)
			}
		}
	}

	// In production the remote must be given a reachable webhook
	if cfg.Env == "production" && cfg.WebhookBaseURL == "" {
		panic("WEBHOOK_BASE_URL is required in production")
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// WebhookURL returns the inbound webhook URL, or "" when no base URL is set.
func (c *Config) WebhookURL() string {
	if c.WebhookBaseURL == "" {
		return ""
	}
	return c.WebhookBaseURL + "/dms"
}

// AllowedOrigins returns the browser origins allowed to call the API.
func (c *Config) AllowedOrigins() []string {
	origins := []string{}
	if c.FrontendURL != "" {
		origins = append(origins, c.FrontendURL)
	}
	if c.IsDevelopment() {
		origins = append(origins, "http://localhost:3000", "http://localhost:5173", "http://localhost:8080")
	}
	return origins
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}
