package zplbox

import (
	"runtime"
	"time"

	"go.uber.org/zap"
)

// pipelineConfig holds internal configuration for a Pipeline.
type pipelineConfig struct {
	logger         *zap.Logger
	transport      Transport
	tempDir        string
	renderLimit    int64
	connectTimeout time.Duration
	writeTimeout   time.Duration
}

func defaultConfig() pipelineConfig {
	return pipelineConfig{
		logger:         zap.NewNop(),
		renderLimit:    int64(runtime.NumCPU()),
		connectTimeout: DefaultConnectTimeout,
		writeTimeout:   DefaultWriteTimeout,
	}
}

// Option configures a [Pipeline].
type Option func(*pipelineConfig)

// WithLogger sets the logger used for stage timings and cleanup warnings.
// Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *pipelineConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTransport replaces the TCP transport used to deliver labels.
func WithTransport(t Transport) Option {
	return func(c *pipelineConfig) {
		c.transport = t
	}
}

// WithTempDir sets the directory for files materialized from inline data.
// Defaults to the system temp directory.
func WithTempDir(dir string) Option {
	return func(c *pipelineConfig) {
		c.tempDir = dir
	}
}

// WithRenderLimit bounds the number of renders in flight. Defaults to the
// number of CPUs. Values below one are treated as one.
func WithRenderLimit(n int) Option {
	return func(c *pipelineConfig) {
		c.renderLimit = int64(max(n, 1))
	}
}

// WithDeliveryTimeouts sets the connect and write timeouts of the default
// TCP transport. Zero keeps the corresponding default.
func WithDeliveryTimeouts(connect, write time.Duration) Option {
	return func(c *pipelineConfig) {
		if connect > 0 {
			c.connectTimeout = connect
		}
		if write > 0 {
			c.writeTimeout = write
		}
	}
}
