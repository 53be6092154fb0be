package odata4

import "github.com/sirupsen/logrus"

// Config holds a Handler's tunables. Build one with NewHandler's functional
// options rather than constructing it directly.
type Config struct {
	baseURL            string
	maxBatchOperations int
	log                *logrus.Logger
}

// Option configures a Handler at construction time.
type Option func(*Config)

func defaultConfig() Config {
	return Config{
		baseURL:            "",
		maxBatchOperations: 1000,
		log:                logrus.New(),
	}
}

// WithBaseURL sets the URL prefix used to build @odata.context values and
// the delta feed's @deltaLink. Default is "".
func WithBaseURL(u string) Option {
	return func(c *Config) { c.baseURL = u }
}

// WithMaxBatchOperations overrides the per-changeset operation cap
// (spec §4.6, default 1000).
func WithMaxBatchOperations(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.maxBatchOperations = n
		}
	}
}

// WithLogger overrides the structured logger used for request and batch
// diagnostics. Default is a new logrus.Logger with logrus's defaults.
func WithLogger(l *logrus.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.log = l
		}
	}
}
