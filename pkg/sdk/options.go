package fedsearch

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	configPath string
	configYAML []byte
	tenant     string
	runWorker  bool

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithConfigFile loads the node configuration from a YAML file.
func WithConfigFile(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.configPath = path
	})
}

// WithConfigYAML uses an in-memory YAML configuration.
// ${VAR} references are expanded from the environment.
func WithConfigYAML(data []byte) Option {
	return optionFunc(func(c *clientConfig) {
		c.configYAML = data
	})
}

// WithTenant sets the tenant used when a call does not name one.
func WithTenant(tenant string) Option {
	return optionFunc(func(c *clientConfig) {
		c.tenant = tenant
	})
}

// WithWorker starts an in-process worker that consumes indexing jobs
// until Close is called. Without it, jobs wait for a separate worker.
func WithWorker() Option {
	return optionFunc(func(c *clientConfig) {
		c.runWorker = true
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
