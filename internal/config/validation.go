package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks the top-level configuration for internally consistent values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: configuration object is nil")
	}
	if err := validateHTTPConfig(&cfg.HTTPClient); err != nil {
		return fmt.Errorf("config: http_client is invalid: %w", err)
	}
	if err := validateScheduler(&cfg.Scheduler); err != nil {
		return fmt.Errorf("config: scheduler is invalid: %w", err)
	}
	if err := validateCheckpoint(&cfg.Checkpoint); err != nil {
		return fmt.Errorf("config: checkpoint is invalid: %w", err)
	}
	if err := validateBroker(&cfg.Broker); err != nil {
		return fmt.Errorf("config: broker is invalid: %w", err)
	}
	return nil
}

func validateHTTPConfig(h *HTTPClient) error {
	if h.RetryCount < 0 || h.RetryCount > 20 {
		return fmt.Errorf("retry_count must be between 0 and 20: %d", h.RetryCount)
	}

	durations := map[string]time.Duration{
		"retry_wait_time":     h.RetryWaitTime,
		"retry_max_wait_time": h.RetryMaxWaitTime,
		"timeout":             h.Timeout,
	}
	for name, d := range durations {
		if err := validateDuration(d, name, 100*time.Second); err != nil {
			return err
		}
	}
	return validateProxy(&h.Proxy)
}

func validateScheduler(s *Scheduler) error {
	if s.MaxParallel < 1 {
		return fmt.Errorf("max_parallel_tools must be >= 1: %d", s.MaxParallel)
	}
	if s.MaxParallelFlows < 1 {
		return fmt.Errorf("max_parallel_workflows must be >= 1: %d", s.MaxParallelFlows)
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0: %d", s.MaxRetries)
	}
	if s.BackoffFactor < 1.0 {
		return fmt.Errorf("backoff_factor must be >= 1.0: %v", s.BackoffFactor)
	}
	if err := validateDuration(s.PerTaskTimeout, "per_task_timeout", 24*time.Hour); err != nil {
		return err
	}
	if err := validateDuration(s.BaseBackoff, "base_backoff", time.Hour); err != nil {
		return err
	}
	if err := validateDuration(s.MaxBackoff, "max_backoff", 24*time.Hour); err != nil {
		return err
	}
	if s.MaxBackoff < s.BaseBackoff {
		return fmt.Errorf("max_backoff (%v) must be >= base_backoff (%v)", s.MaxBackoff, s.BaseBackoff)
	}
	return nil
}

func validateCheckpoint(c *Checkpoint) error {
	if c.RetentionCount < 0 {
		return fmt.Errorf("retention_count must be >= 0: %d", c.RetentionCount)
	}
	return nil
}

func validateBroker(b *Broker) error {
	if b.MaxInFlight < 1 {
		return fmt.Errorf("max_in_flight must be >= 1: %d", b.MaxInFlight)
	}
	switch b.OnBusy {
	case "queue", "reject":
	default:
		return fmt.Errorf("on_busy must be 'queue' or 'reject': %q", b.OnBusy)
	}
	return nil
}

// validateDuration checks that a time.Duration is non-negative and within a ceiling.
func validateDuration(d time.Duration, name string, max time.Duration) error {
	if d < 0 {
		return fmt.Errorf("invalid duration for %s: %v cannot be negative", name, d)
	}
	if d > max {
		return fmt.Errorf("%s duration is too long: %v exceeds maximum of %v", name, d, max)
	}
	return nil
}

// validateProxy normalizes and validates the optional forward-proxy settings.
func validateProxy(proxy *Proxy) error {
	if proxy.Host == "" || proxy.Port == 0 {
		return nil
	}
	if err := validateHost(&proxy.Host); err != nil {
		return err
	}
	return validatePort(proxy.Port)
}

// validateHost ensures the host carries a scheme, defaulting to http.
func validateHost(host *string) error {
	if !strings.Contains(*host, "://") {
		*host = "http://" + *host
	}
	*host = strings.TrimRight(*host, "/")

	_, err := url.Parse(*host)
	if err != nil {
		return fmt.Errorf("invalid proxy host URL: %w", err)
	}
	return nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// String returns "host:port" if a proxy is configured, or "".
func (p Proxy) String() string {
	if p.Host == "" || p.Port == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}
