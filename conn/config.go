package conn

import "time"

const (
	defaultURL              = "ws://localhost:9001"
	defaultMaxAttempts      = 5
	defaultBaseDelay        = time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultQueueSize        = 256
)

// Config holds connection manager parameters.
type Config struct {
	URL              string        `yaml:"url" json:"url,omitempty"`
	MaxAttempts      int           `yaml:"max_attempts" json:"max_attempts,omitempty"`           // consecutive failures retried before giving up
	BaseDelay        time.Duration `yaml:"base_delay" json:"base_delay,omitempty"`               // retry n waits n*BaseDelay
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" json:"handshake_timeout,omitempty"` // bound on a single dial
	ReadLimit        int64         `yaml:"read_limit" json:"read_limit,omitempty"`               // max frame bytes; 0 disables the limit
	QueueSize        int           `yaml:"queue_size" json:"queue_size,omitempty"`               // frames buffered ahead of the processing loop
}

// DefaultConfig returns the configuration of the original dashboard: a local
// producer, five retries at 1s steps.
func DefaultConfig() Config {
	return Config{
		URL:              defaultURL,
		MaxAttempts:      defaultMaxAttempts,
		BaseDelay:        defaultBaseDelay,
		HandshakeTimeout: defaultHandshakeTimeout,
		QueueSize:        defaultQueueSize,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.URL != "" {
		c.URL = source.URL
	}
	if source.MaxAttempts > 0 {
		c.MaxAttempts = source.MaxAttempts
	}
	if source.BaseDelay > 0 {
		c.BaseDelay = source.BaseDelay
	}
	if source.HandshakeTimeout > 0 {
		c.HandshakeTimeout = source.HandshakeTimeout
	}
	if source.ReadLimit > 0 {
		c.ReadLimit = source.ReadLimit
	}
	if source.QueueSize > 0 {
		c.QueueSize = source.QueueSize
	}
}

// Delay returns the wait before retry number attempt (1-based).
func (c *Config) Delay(attempt int) time.Duration {
	return time.Duration(min(attempt, c.MaxAttempts)) * c.BaseDelay
}
