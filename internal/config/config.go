package config

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// Config holds all configuration for the dish application.
// Values are loaded from environment variables; see printUsage() for the full list.
type Config struct {
	HTTPAddr    string `json:"http_addr"`
	AccessToken string `json:"access_token,omitempty"`
	TrackerPath string `json:"tracker_path"`
	RedisAddr   string `json:"redis_addr,omitempty"`

	DockerImage      string `json:"docker_image"`
	DockerHostPath   string `json:"docker_host_path"`
	DockerExportPath string `json:"docker_export_path"`
	DockerMemory     string `json:"docker_memory"`

	DockerLogTimeout    time.Duration `json:"-"`
	DockerLogTimeoutStr string        `json:"docker_log_timeout"`

	DispatchMaxAttempts      int           `json:"dispatch_max_attempts"`
	DispatchRetryInterval    time.Duration `json:"-"`
	DispatchRetryIntervalStr string        `json:"dispatch_retry_interval"`

	MarketCacheEnabled     bool `json:"market_cache_enabled"`
	MarketCacheMaxAgeHours int  `json:"market_cache_max_age_hours"`

	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`

	ReconcileEnabled     bool          `json:"reconcile_enabled"`
	ReconcileInterval    time.Duration `json:"-"`
	ReconcileIntervalStr string        `json:"reconcile_interval"`

	// ContainerRetention is how long exited job containers stay inspectable
	// before the reconciler removes them.
	ContainerRetention    time.Duration `json:"-"`
	ContainerRetentionStr string        `json:"container_retention"`

	EventBusBufferSize int `json:"eventbus_buffer_size"`

	// CircuitBreakerThreshold: 0 disables the circuit breaker.
	CircuitBreakerThreshold   int           `json:"circuit_breaker_threshold"`
	CircuitBreakerCooldown    time.Duration `json:"-"`
	CircuitBreakerCooldownStr string        `json:"circuit_breaker_cooldown"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		HTTPAddr:                 os.Getenv("HTTP_ADDR"),
		AccessToken:              os.Getenv("DISH_ACCESS_TOKEN"),
		TrackerPath:              os.Getenv("TRACKER_PATH"),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		DockerImage:              os.Getenv("DOCKER_IMAGE"),
		DockerHostPath:           os.Getenv("DOCKER_HOST_PATH"),
		DockerExportPath:         os.Getenv("DOCKER_EXPORT_PATH"),
		DockerMemory:             os.Getenv("DOCKER_MEMORY"),
		DockerLogTimeoutStr:      os.Getenv("DOCKER_LOG_TIMEOUT"),
		DispatchRetryIntervalStr: os.Getenv("DISPATCH_RETRY_INTERVAL"),
		MarketCacheEnabled:       os.Getenv("MARKET_CACHE_ENABLED") == "true",
		HTTPShutdownTimeoutStr:   os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		MetricsEnabled:           os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:              os.Getenv("METRICS_PATH"),
		ReconcileEnabled:         os.Getenv("RECONCILE_ENABLED") != "false",
		ReconcileIntervalStr:     os.Getenv("RECONCILE_INTERVAL"),
		ContainerRetentionStr:    os.Getenv("CONTAINER_RETENTION"),
	}

	if attemptsStr := os.Getenv("DISPATCH_MAX_ATTEMPTS"); attemptsStr != "" {
		if n, err := parseInt(attemptsStr); err == nil && n > 0 {
			cfg.DispatchMaxAttempts = n
		} else {
			log.Printf("config: invalid DISPATCH_MAX_ATTEMPTS %q (must be a positive integer), using default 3", attemptsStr)
		}
	}
	if cfg.DispatchMaxAttempts == 0 {
		cfg.DispatchMaxAttempts = 3
	}

	if ageStr := os.Getenv("MARKET_CACHE_MAX_AGE_HOURS"); ageStr != "" {
		if n, err := parseInt(ageStr); err == nil && n > 0 {
			cfg.MarketCacheMaxAgeHours = n
		} else {
			log.Printf("config: invalid MARKET_CACHE_MAX_AGE_HOURS %q (must be a positive integer), using default 24", ageStr)
		}
	}
	if cfg.MarketCacheMaxAgeHours == 0 {
		cfg.MarketCacheMaxAgeHours = 24
	}

	if bufStr := os.Getenv("EVENTBUS_BUFFER_SIZE"); bufStr != "" {
		if n, err := parseInt(bufStr); err == nil && n > 0 {
			cfg.EventBusBufferSize = n
		} else {
			log.Printf("config: invalid EVENTBUS_BUFFER_SIZE %q (must be a positive integer), using default 100", bufStr)
		}
	}
	if cfg.EventBusBufferSize == 0 {
		cfg.EventBusBufferSize = 100
	}

	if cbThreshStr := os.Getenv("CIRCUIT_BREAKER_THRESHOLD"); cbThreshStr != "" {
		if n, err := parseInt(cbThreshStr); err == nil {
			cfg.CircuitBreakerThreshold = n
		} else {
			log.Printf("config: invalid CIRCUIT_BREAKER_THRESHOLD %q, using default 5", cbThreshStr)
		}
	}
	if cfg.CircuitBreakerThreshold == 0 && os.Getenv("CIRCUIT_BREAKER_THRESHOLD") == "" {
		cfg.CircuitBreakerThreshold = 5
	}
	cfg.CircuitBreakerCooldownStr = os.Getenv("CIRCUIT_BREAKER_COOLDOWN")

	// Support Railway's PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.TrackerPath == "" {
		cfg.TrackerPath = "delta-jobs.json"
	}
	if cfg.DockerImage == "" {
		cfg.DockerImage = "bloomreach/shopify-to-bloomreach:latest"
	}
	if cfg.DockerExportPath == "" {
		cfg.DockerExportPath = "/export"
	}
	if cfg.DockerMemory == "" {
		cfg.DockerMemory = "4GB"
	}
	if cfg.DockerLogTimeoutStr == "" {
		cfg.DockerLogTimeoutStr = "30s"
	}
	if cfg.DispatchRetryIntervalStr == "" {
		cfg.DispatchRetryIntervalStr = "2s"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.ReconcileIntervalStr == "" {
		cfg.ReconcileIntervalStr = "5m"
	}
	if cfg.ContainerRetentionStr == "" {
		cfg.ContainerRetentionStr = "1h"
	}
	if cfg.CircuitBreakerCooldownStr == "" {
		cfg.CircuitBreakerCooldownStr = "2m"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.DockerLogTimeoutStr); err == nil {
		cfg.DockerLogTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DispatchRetryIntervalStr); err == nil {
		cfg.DispatchRetryInterval = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.ReconcileIntervalStr); err == nil {
		cfg.ReconcileInterval = d
	}
	if d, err := time.ParseDuration(cfg.ContainerRetentionStr); err == nil {
		cfg.ContainerRetention = d
	}
	if d, err := time.ParseDuration(cfg.CircuitBreakerCooldownStr); err == nil {
		cfg.CircuitBreakerCooldown = d
	}

	return cfg
}

// parseInt parses a string as an integer.
func parseInt(s string) (int, error) {
	if s == "" {
		return 0, os.ErrInvalid
	}
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := struct {
		HTTPAddr                string `json:"http_addr"`
		AccessToken             string `json:"access_token,omitempty"`
		TrackerPath             string `json:"tracker_path"`
		RedisAddr               string `json:"redis_addr,omitempty"`
		DockerImage             string `json:"docker_image"`
		DockerHostPath          string `json:"docker_host_path"`
		DockerExportPath        string `json:"docker_export_path"`
		DockerMemory            string `json:"docker_memory"`
		DockerLogTimeout        string `json:"docker_log_timeout"`
		DispatchMaxAttempts     int    `json:"dispatch_max_attempts"`
		DispatchRetryInterval   string `json:"dispatch_retry_interval"`
		MarketCacheEnabled      bool   `json:"market_cache_enabled"`
		MarketCacheMaxAgeHours  int    `json:"market_cache_max_age_hours"`
		HTTPShutdownTimeout     string `json:"http_shutdown_timeout"`
		MetricsEnabled          bool   `json:"metrics_enabled"`
		MetricsPath             string `json:"metrics_path"`
		ReconcileEnabled        bool   `json:"reconcile_enabled"`
		ReconcileInterval       string `json:"reconcile_interval"`
		ContainerRetention      string `json:"container_retention"`
		EventBusBufferSize      int    `json:"eventbus_buffer_size"`
		CircuitBreakerThreshold int    `json:"circuit_breaker_threshold"`
		CircuitBreakerCooldown  string `json:"circuit_breaker_cooldown"`
	}{
		HTTPAddr:                c.HTTPAddr,
		AccessToken:             maskSecret(c.AccessToken),
		TrackerPath:             c.TrackerPath,
		RedisAddr:               c.RedisAddr,
		DockerImage:             c.DockerImage,
		DockerHostPath:          c.DockerHostPath,
		DockerExportPath:        c.DockerExportPath,
		DockerMemory:            c.DockerMemory,
		DockerLogTimeout:        c.DockerLogTimeoutStr,
		DispatchMaxAttempts:     c.DispatchMaxAttempts,
		DispatchRetryInterval:   c.DispatchRetryIntervalStr,
		MarketCacheEnabled:      c.MarketCacheEnabled,
		MarketCacheMaxAgeHours:  c.MarketCacheMaxAgeHours,
		HTTPShutdownTimeout:     c.HTTPShutdownTimeoutStr,
		MetricsEnabled:          c.MetricsEnabled,
		MetricsPath:             c.MetricsPath,
		ReconcileEnabled:        c.ReconcileEnabled,
		ReconcileInterval:       c.ReconcileIntervalStr,
		ContainerRetention:      c.ContainerRetentionStr,
		EventBusBufferSize:      c.EventBusBufferSize,
		CircuitBreakerThreshold: c.CircuitBreakerThreshold,
		CircuitBreakerCooldown:  c.CircuitBreakerCooldownStr,
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret hides a secret value entirely.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
