// Package config loads zplbox settings from an optional TOML file and
// ZPLBOX_ environment variables.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/porticus-lab/zplbox"
	"github.com/porticus-lab/zplbox/render"
)

// Config holds all service configuration.
type Config struct {
	App     AppConfig
	HTTP    HTTPConfig
	Log     LogConfig
	Render  RenderConfig
	Printer PrinterConfig
}

type AppConfig struct {
	Name string
	Env  string
}

type HTTPConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodySize  int64
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// RenderConfig configures the HTML and PDF renderers.
type RenderConfig struct {
	ChromePath   string
	RemoteURL    string // DevTools websocket of an external browser
	NoSandbox    bool
	AutoDownload bool
	Headless     bool
	Timeout      time.Duration
	HTMLDPI      int
	PDFDPI       int
	PdftoppmPath string
	MaxPixels    int64
	MaxDocument  int64
	// MaxConcurrent bounds renders in flight across all requests.
	MaxConcurrent int
}

type PrinterConfig struct {
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	DefaultPort    int
}

// Load reads configuration. When path is empty, zplbox.toml is looked up in
// the working directory and /etc/zplbox; a missing file is not an error.
// Environment variables such as ZPLBOX_HTTP_ADDR override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("zplbox")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/zplbox")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("ZPLBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("render.headless", true)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		HTTP: HTTPConfig{
			Addr:         v.GetString("http.addr"),
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
			IdleTimeout:  v.GetDuration("http.idle_timeout"),
			MaxBodySize:  v.GetInt64("http.max_body_size"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Render: RenderConfig{
			ChromePath:    v.GetString("render.chrome_path"),
			RemoteURL:     v.GetString("render.remote_url"),
			NoSandbox:     v.GetBool("render.no_sandbox"),
			AutoDownload:  v.GetBool("render.auto_download"),
			Headless:      v.GetBool("render.headless"),
			Timeout:       v.GetDuration("render.timeout"),
			HTMLDPI:       v.GetInt("render.html_dpi"),
			PDFDPI:        v.GetInt("render.pdf_dpi"),
			PdftoppmPath:  v.GetString("render.pdftoppm_path"),
			MaxPixels:     v.GetInt64("render.max_pixels"),
			MaxDocument:   v.GetInt64("render.max_document_size"),
			MaxConcurrent: v.GetInt("render.max_concurrent"),
		},
		Printer: PrinterConfig{
			ConnectTimeout: v.GetDuration("printer.connect_timeout"),
			WriteTimeout:   v.GetDuration("printer.write_timeout"),
			DefaultPort:    v.GetInt("printer.default_port"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "zplbox"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 30 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 90 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 120 * time.Second
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 32 << 20
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Render.Timeout == 0 {
		cfg.Render.Timeout = 30 * time.Second
	}
	if cfg.Render.HTMLDPI == 0 {
		cfg.Render.HTMLDPI = render.DefaultDPI
	}
	if cfg.Render.PDFDPI == 0 {
		cfg.Render.PDFDPI = render.DefaultDPI
	}
	if cfg.Render.MaxPixels == 0 {
		cfg.Render.MaxPixels = 40_000_000
	}
	if cfg.Render.MaxDocument == 0 {
		cfg.Render.MaxDocument = 64 << 20
	}
	if cfg.Render.MaxConcurrent == 0 {
		cfg.Render.MaxConcurrent = runtime.NumCPU()
	}
	if cfg.Printer.ConnectTimeout == 0 {
		cfg.Printer.ConnectTimeout = zplbox.DefaultConnectTimeout
	}
	if cfg.Printer.WriteTimeout == 0 {
		cfg.Printer.WriteTimeout = zplbox.DefaultWriteTimeout
	}
	if cfg.Printer.DefaultPort == 0 {
		cfg.Printer.DefaultPort = zplbox.DefaultPrinterPort
	}
}

func (c *Config) validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("log.format must be json or console; got %q", c.Log.Format)
	}
	for name, dpi := range map[string]int{"render.html_dpi": c.Render.HTMLDPI, "render.pdf_dpi": c.Render.PDFDPI} {
		if dpi < render.MinDPI || dpi > render.MaxDPI {
			return fmt.Errorf("%s must be between %d and %d, got %d", name, render.MinDPI, render.MaxDPI, dpi)
		}
	}
	if c.Render.MaxConcurrent < 0 {
		return fmt.Errorf("render.max_concurrent cannot be negative")
	}
	if c.Render.MaxPixels < 0 || c.Render.MaxDocument < 0 || c.HTTP.MaxBodySize < 0 {
		return fmt.Errorf("size limits cannot be negative")
	}
	if c.Printer.DefaultPort < 1 || c.Printer.DefaultPort > 65535 {
		return fmt.Errorf("printer.default_port must be a TCP port, got %d", c.Printer.DefaultPort)
	}
	if c.Render.ChromePath != "" && c.Render.RemoteURL != "" {
		return fmt.Errorf("render.chrome_path and render.remote_url are mutually exclusive")
	}
	return nil
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
