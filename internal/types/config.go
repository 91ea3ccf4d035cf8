package types

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

const (
	// SyncDebounce is the quiet period a burst of preference mutations
	// must respect before a single batched sync call is issued.
	SyncDebounce = 1500 * time.Millisecond

	// MaxBatchSize caps the number of pending changes carried by one
	// sync call; additional changes spill into a follow-up call.
	MaxBatchSize = 50

	// LoginGracePeriod is the settling window after login during which
	// session-expiry signals are suppressed.
	LoginGracePeriod = 3000 * time.Millisecond

	DefaultRequestTimeout = 30 * time.Second
)

// ClientConfig drives the behavior of the request gateway and the
// preference sync engine. It is loaded from a YAML file with
// environment overrides applied by the cmd wiring.
// BaseURL is the API origin all endpoint paths are resolved against.
// SilentEndpoints lists endpoint path prefixes whose 401/404 failures
// are expected and must not be logged as errors.
// SyncDebounceMS/MaxBatchSize/GracePeriodMS override the defaults
// above when positive.
type ClientConfig struct {
	BaseURL         string   `json:"base_url" yaml:"base_url"`
	SilentEndpoints []string `json:"silent_endpoints" yaml:"silent_endpoints"`
	SyncDebounceMS  int      `json:"sync_debounce_ms" yaml:"sync_debounce_ms"`
	MaxBatchSize    int      `json:"max_batch_size" yaml:"max_batch_size"`
	GracePeriodMS   int      `json:"grace_period_ms" yaml:"grace_period_ms"`
	RequestTimeoutS int      `json:"request_timeout_s" yaml:"request_timeout_s"`
}

func (c ClientConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base_url must be an http(s) origin")
	}
	if c.SyncDebounceMS < 0 {
		return fmt.Errorf("sync_debounce_ms must be non-negative. 0 for default")
	}
	if c.MaxBatchSize < 0 {
		return fmt.Errorf("max_batch_size must be non-negative. 0 for default")
	}
	if c.GracePeriodMS < 0 {
		return fmt.Errorf("grace_period_ms must be non-negative. 0 for default")
	}
	return nil
}

// Debounce returns the configured debounce window, falling back to the
// default.
func (c ClientConfig) Debounce() time.Duration {
	if c.SyncDebounceMS > 0 {
		return time.Duration(c.SyncDebounceMS) * time.Millisecond
	}
	return SyncDebounce
}

func (c ClientConfig) BatchSize() int {
	if c.MaxBatchSize > 0 {
		return c.MaxBatchSize
	}
	return MaxBatchSize
}

func (c ClientConfig) GracePeriod() time.Duration {
	if c.GracePeriodMS > 0 {
		return time.Duration(c.GracePeriodMS) * time.Millisecond
	}
	return LoginGracePeriod
}

func (c ClientConfig) RequestTimeout() time.Duration {
	if c.RequestTimeoutS > 0 {
		return time.Duration(c.RequestTimeoutS) * time.Second
	}
	return DefaultRequestTimeout
}

// LoadClientConfig reads and validates a YAML config file. The
// BASE_URL env var, when set, overrides the file value.
func LoadClientConfig(path string) (ClientConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ClientConfig{}, Err(ErrInvalidConfig, err, "read %q", path)
	}
	var cfg ClientConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return ClientConfig{}, Err(ErrInvalidConfig, err, "parse %q", path)
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if err := cfg.Validate(); err != nil {
		return ClientConfig{}, Err(ErrInvalidConfig, err, "")
	}
	return cfg, nil
}
