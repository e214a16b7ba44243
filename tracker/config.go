package tracker

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Defaults applied by DefaultConfig.
const (
	DefaultFlushAtLaunch = true
	DefaultMaxRetryCount = 3
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid tracker config")

// Config is supplied once to Initialize and not modified afterwards.
//
// The zero value of FlushAtLaunch is false; start from DefaultConfig to get
// the documented defaults.
type Config struct {
	// APIKey is sent as X-API-Key with every event. Required.
	APIKey string
	// Endpoint is the collector URL events are POSTed to. Required.
	Endpoint string
	// FlushAtLaunch re-sends everything left from a previous run once the
	// queue is loaded.
	FlushAtLaunch bool
	// MaxRetryCount is the number of failed attempts after which an event
	// stops being retried automatically.
	MaxRetryCount int

	// StorePath is the queue file. Empty means the user cache directory.
	StorePath string
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
	// HTTPClient defaults to a client with a 10 second timeout.
	HTTPClient *http.Client
	// TracerProvider defaults to the global otel provider.
	TracerProvider trace.TracerProvider
}

// DefaultConfig returns a Config with FlushAtLaunch and MaxRetryCount set to
// their defaults.
func DefaultConfig(apiKey, endpoint string) Config {
	return Config{
		APIKey:        apiKey,
		Endpoint:      endpoint,
		FlushAtLaunch: DefaultFlushAtLaunch,
		MaxRetryCount: DefaultMaxRetryCount,
	}
}

// Validate reports missing or malformed required fields.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: api key required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("%w: endpoint required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("%w: endpoint: %v", ErrInvalidConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: endpoint must be an http or https URL", ErrInvalidConfig)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: endpoint host required", ErrInvalidConfig)
	}
	if c.MaxRetryCount < 0 {
		return fmt.Errorf("%w: max retry count must be >= 0", ErrInvalidConfig)
	}
	return nil
}
