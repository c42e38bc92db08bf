package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inEmptyDir runs the test from a directory without a zplbox.toml.
func inEmptyDir(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zplbox.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	inEmptyDir(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "zplbox", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, int64(32<<20), cfg.HTTP.MaxBodySize)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "stdout", cfg.Log.Output)
	assert.True(t, cfg.Render.Headless)
	assert.Equal(t, 203, cfg.Render.HTMLDPI)
	assert.Equal(t, 203, cfg.Render.PDFDPI)
	assert.Equal(t, 30*time.Second, cfg.Render.Timeout)
	assert.Positive(t, cfg.Render.MaxConcurrent)
	assert.Equal(t, 5*time.Second, cfg.Printer.ConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.Printer.WriteTimeout)
	assert.Equal(t, 9100, cfg.Printer.DefaultPort)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_File(t *testing.T) {
	inEmptyDir(t)
	path := writeConfig(t, `
[app]
env = "production"

[http]
addr = "127.0.0.1:9000"
read_timeout = "5s"

[log]
level = "debug"
format = "json"

[render]
no_sandbox = true
headless = false
html_dpi = 300
max_concurrent = 2

[printer]
connect_timeout = "750ms"
default_port = 6101
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Render.NoSandbox)
	assert.False(t, cfg.Render.Headless)
	assert.Equal(t, 300, cfg.Render.HTMLDPI)
	assert.Equal(t, 203, cfg.Render.PDFDPI)
	assert.Equal(t, 2, cfg.Render.MaxConcurrent)
	assert.Equal(t, 750*time.Millisecond, cfg.Printer.ConnectTimeout)
	assert.Equal(t, 6101, cfg.Printer.DefaultPort)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	inEmptyDir(t)
	path := writeConfig(t, "[http]\naddr = \":7000\"\n")
	t.Setenv("ZPLBOX_HTTP_ADDR", ":7100")
	t.Setenv("ZPLBOX_RENDER_PDF_DPI", "600")
	t.Setenv("ZPLBOX_RENDER_CHROME_PATH", "/usr/bin/chromium")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7100", cfg.HTTP.Addr)
	assert.Equal(t, 600, cfg.Render.PDFDPI)
	assert.Equal(t, "/usr/bin/chromium", cfg.Render.ChromePath)
}

func TestLoad_SearchesWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zplbox.toml"), []byte("[app]\nname = \"labels\"\n"), 0o600))
	t.Chdir(dir)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "labels", cfg.App.Name)
}

func TestLoad_Errors(t *testing.T) {
	inEmptyDir(t)

	tests := []struct {
		name string
		body string
	}{
		{"bad level", "[log]\nlevel = \"trace\"\n"},
		{"bad format", "[log]\nformat = \"xml\"\n"},
		{"dpi too low", "[render]\nhtml_dpi = 10\n"},
		{"dpi too high", "[render]\npdf_dpi = 5000\n"},
		{"bad port", "[printer]\ndefault_port = 70000\n"},
		{"negative concurrency", "[render]\nmax_concurrent = -1\n"},
		{"both browsers", "[render]\nchrome_path = \"/bin/chrome\"\nremote_url = \"ws://x\"\n"},
		{"broken toml", "[render\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
