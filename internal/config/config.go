package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all service configuration
type Config struct {
	//Remote end configuration
	Endpoints           []string      `yaml:"endpoints"`
	HandshakeTimeout    time.Duration `yaml:"handshake_timeout"`
	CommandTimeout      time.Duration `yaml:"command_timeout"`
	EventQueueSize      int           `yaml:"event_queue_size"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`

	//HTTP surface configuration
	ServerPort string  `yaml:"server_port"`
	RateLimit  float64 `yaml:"rate_limit"`
	RateBurst  int     `yaml:"rate_burst"`

	//Session configuration
	MaxSessions         int           `yaml:"max_sessions"`
	MaxSessionsPerAgent int           `yaml:"max_sessions_per_agent"`
	SessionIdleTimeout  time.Duration `yaml:"session_idle_timeout"`
	CleanupInterval     time.Duration `yaml:"cleanup_interval"`

	//Redis configuration
	RedisEnabled  bool          `yaml:"redis_enabled"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	SessionTTL    time.Duration `yaml:"session_ttl"`

	// TraceExporter is "none" or "stdout".
	TraceExporter string `yaml:"trace_exporter"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Endpoints:           []string{"ws://localhost:9222/session"},
		HandshakeTimeout:    10 * time.Second,
		CommandTimeout:      30 * time.Second,
		HealthCheckInterval: 30 * time.Second,

		ServerPort: "8080",
		RateLimit:  50,
		RateBurst:  100,

		MaxSessions:         100,
		MaxSessionsPerAgent: 10,
		SessionIdleTimeout:  30 * time.Minute,
		CleanupInterval:     time.Minute,

		RedisAddr:  "localhost:6379",
		SessionTTL: time.Hour,

		TraceExporter: "none",
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// BIDI_CONFIG, then environment variables.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit config file. An empty path falls back to
// BIDI_CONFIG.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("BIDI_CONFIG")
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Endpoints = getEnvAsList("BIDI_ENDPOINTS", c.Endpoints)
	c.HandshakeTimeout = getEnvAsDuration("BIDI_HANDSHAKE_TIMEOUT", c.HandshakeTimeout)
	c.CommandTimeout = getEnvAsDuration("BIDI_COMMAND_TIMEOUT", c.CommandTimeout)
	c.EventQueueSize = getEnvAsInt("BIDI_EVENT_QUEUE_SIZE", c.EventQueueSize)
	c.HealthCheckInterval = getEnvAsDuration("HEALTH_CHECK_INTERVAL", c.HealthCheckInterval)

	c.ServerPort = getEnv("SERVER_PORT", c.ServerPort)
	c.RateLimit = getEnvAsFloat("RATE_LIMIT", c.RateLimit)
	c.RateBurst = getEnvAsInt("RATE_BURST", c.RateBurst)

	c.MaxSessions = getEnvAsInt("MAX_SESSIONS", c.MaxSessions)
	c.MaxSessionsPerAgent = getEnvAsInt("MAX_SESSIONS_PER_AGENT", c.MaxSessionsPerAgent)
	c.SessionIdleTimeout = getEnvAsDuration("SESSION_IDLE_TIMEOUT", c.SessionIdleTimeout)
	c.CleanupInterval = getEnvAsDuration("CLEANUP_INTERVAL", c.CleanupInterval)

	// Redis defaults
	c.RedisEnabled = getEnvAsBool("REDIS_ENABLED", c.RedisEnabled)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getEnvAsInt("REDIS_DB", c.RedisDB)
	c.SessionTTL = getEnvAsDuration("SESSION_TTL", c.SessionTTL)

	c.TraceExporter = getEnv("TRACE_EXPORTER", c.TraceExporter)
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("at least one endpoint is required")
	}
	for _, endpoint := range c.Endpoints {
		u, err := url.Parse(endpoint)
		if err != nil {
			return fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
		}
		switch u.Scheme {
		case "ws", "wss", "http", "https":
		default:
			return fmt.Errorf("invalid endpoint %q: scheme must be ws, wss, http or https", endpoint)
		}
		if u.Host == "" {
			return fmt.Errorf("invalid endpoint %q: missing host", endpoint)
		}
	}

	durations := map[string]time.Duration{
		"handshake_timeout":     c.HandshakeTimeout,
		"command_timeout":       c.CommandTimeout,
		"health_check_interval": c.HealthCheckInterval,
		"session_idle_timeout":  c.SessionIdleTimeout,
		"cleanup_interval":      c.CleanupInterval,
		"session_ttl":           c.SessionTTL,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.EventQueueSize < 0 {
		return fmt.Errorf("event_queue_size must not be negative")
	}
	if c.MaxSessions < 1 || c.MaxSessionsPerAgent < 1 {
		return fmt.Errorf("session limits must be at least 1")
	}
	if c.RateLimit <= 0 || c.RateBurst < 1 {
		return fmt.Errorf("rate_limit and rate_burst must be positive")
	}
	if _, err := strconv.Atoi(c.ServerPort); err != nil {
		return fmt.Errorf("invalid server_port %q", c.ServerPort)
	}

	switch c.TraceExporter {
	case "none", "stdout":
	default:
		return fmt.Errorf("trace_exporter must be none or stdout, got %q", c.TraceExporter)
	}
	return nil
}

func getEnv(key string, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return intVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	floatVal, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return floatVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	boolVal, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return boolVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}

	return duration
}

// getEnvAsList splits a comma separated value, dropping blank entries
func getEnvAsList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}

	var list []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	if len(list) == 0 {
		return defaultVal
	}
	return list
}
