package config

import (
	"fmt"
	"time"

	"github.com/bloomreach/shopify-to-bloomreach/internal/docker"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	// DOCKER_HOST_PATH is required: job containers mount it for exports
	if cfg.DockerHostPath == "" {
		errs = append(errs, ValidationError{
			Field:   "DOCKER_HOST_PATH",
			Message: "required",
		})
	}

	if cfg.DockerMemory != "" {
		if _, err := docker.ParseMemorySize(cfg.DockerMemory); err != nil {
			errs = append(errs, ValidationError{
				Field:   "DOCKER_MEMORY",
				Message: fmt.Sprintf("invalid size: %v", err),
			})
		}
	}

	for field, str := range map[string]string{
		"DOCKER_LOG_TIMEOUT":      cfg.DockerLogTimeoutStr,
		"DISPATCH_RETRY_INTERVAL": cfg.DispatchRetryIntervalStr,
		"HTTP_SHUTDOWN_TIMEOUT":   cfg.HTTPShutdownTimeoutStr,
		"RECONCILE_INTERVAL":      cfg.ReconcileIntervalStr,
		"CONTAINER_RETENTION":     cfg.ContainerRetentionStr,
		"CIRCUIT_BREAKER_COOLDOWN": cfg.CircuitBreakerCooldownStr,
	} {
		if str == "" {
			continue
		}
		d, err := time.ParseDuration(str)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid duration: %v", err),
			})
		} else if d <= 0 {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "must be positive",
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
