package render

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// config holds internal configuration shared by the HTML and PDF renderers.
// Options that do not apply to a renderer are ignored by it.
type config struct {
	chromePath   string
	remoteURL    string
	timeout      time.Duration
	noSandbox    bool
	headless     string
	autoDownload bool

	pdftoppmPath string
	maxPixels    int64
	maxDocument  int64
	httpClient   *http.Client

	logger *zap.Logger
}

func defaultConfig() config {
	return config{
		timeout:     30 * time.Second,
		headless:    "new",
		maxPixels:   40_000_000,
		maxDocument: 64 << 20,
		httpClient:  http.DefaultClient,
		logger:      zap.NewNop(),
	}
}

// Option configures a renderer.
type Option func(*config)

// WithChromePath sets the path to the Chrome or Chromium executable.
// By default chromedp searches standard locations automatically.
func WithChromePath(path string) Option {
	return func(c *config) {
		c.chromePath = path
	}
}

// WithRemoteURL connects to an already running browser through its DevTools
// websocket URL instead of launching one.
func WithRemoteURL(url string) Option {
	return func(c *config) {
		c.remoteURL = url
	}
}

// WithTimeout sets the maximum duration for a single render.
// Defaults to 30 seconds. A zero or negative value disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithNoSandbox disables the Chrome sandbox. This is required when
// running as root, for example inside Docker containers.
func WithNoSandbox() Option {
	return func(c *config) {
		c.noSandbox = true
	}
}

// WithHeadful shows the browser window. Useful when debugging templates.
func WithHeadful() Option {
	return func(c *config) {
		c.headless = "false"
	}
}

// WithAutoDownload downloads a compatible Chromium build when no browser
// path is configured. The build is cached between runs.
func WithAutoDownload() Option {
	return func(c *config) {
		c.autoDownload = true
	}
}

// WithPdftoppmPath sets the poppler pdftoppm executable used for PDF
// rasterization. By default it is looked up in PATH.
func WithPdftoppmPath(path string) Option {
	return func(c *config) {
		c.pdftoppmPath = path
	}
}

// WithMaxPixels limits the bitmap size, in dots, of a rendered HTML page or
// rasterized PDF page. Larger pages are rejected before rendering starts.
func WithMaxPixels(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxPixels = n
		}
	}
}

// WithHTTPClient sets the client used to download remote PDF documents.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the renderer's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxDocumentSize limits the size of PDF documents downloaded for
// rendering. Defaults to 64 MiB.
func WithMaxDocumentSize(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocument = n
		}
	}
}
