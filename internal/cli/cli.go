// Package cli implements the zplbox command-line interface.
package cli

import (
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/porticus-lab/zplbox"
	"github.com/porticus-lab/zplbox/internal/buildinfo"
	"github.com/porticus-lab/zplbox/internal/config"
	"github.com/porticus-lab/zplbox/internal/logger"
	"github.com/porticus-lab/zplbox/render"
)

const appName = "zplbox"

// CLI holds shared state for all commands.
type CLI struct {
	Out    io.Writer
	Err    io.Writer
	Config *config.Config
	Logger *zap.Logger

	configPath string
	verbose    bool
}

// New creates a CLI writing results to out and diagnostics to errOut.
func New(out, errOut io.Writer) *CLI {
	return &CLI{Out: out, Err: errOut, Logger: zap.NewNop()}
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "zplbox converts HTML and PDF documents into ZPL labels",
		Long: `zplbox renders web pages and PDF documents at printer resolution, reduces
them to one bit per dot and encodes them as ZPL II graphic fields, ready to be
sent to a label printer's raw TCP port.`,
		Version:           buildinfo.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}
	root.SetVersionTemplate(buildinfo.Template())
	root.SetOut(c.Out)
	root.SetErr(c.Err)

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (default: ./zplbox.toml or /etc/zplbox/zplbox.toml)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(c.serveCommand())
	root.AddCommand(c.html2zplCommand())
	root.AddCommand(c.pdf2zplCommand())
	root.AddCommand(c.inspectCommand())
	root.AddCommand(c.versionCommand())
	return root
}

// setup loads configuration and builds the logger before any command runs.
func (c *CLI) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.Config = cfg

	lc := &logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output}
	if c.verbose {
		lc.Level = "debug"
	}
	// Conversion commands write labels to stdout.
	if cmd.Name() != "serve" && lc.Output == "stdout" {
		lc.Output = "stderr"
	}
	l, err := logger.New(lc)
	if err != nil {
		return err
	}
	c.Logger = l.Named(appName)
	cmd.SetContext(logger.WithContext(cmd.Context(), c.Logger))
	return nil
}

func (c *CLI) newPipeline() *zplbox.Pipeline {
	rc, pc := c.Config.Render, c.Config.Printer
	return zplbox.NewPipeline(
		zplbox.WithLogger(c.Logger.Named("pipeline")),
		zplbox.WithRenderLimit(rc.MaxConcurrent),
		zplbox.WithDeliveryTimeouts(pc.ConnectTimeout, pc.WriteTimeout),
	)
}

// renderOptions translates the render section into renderer options.
func (c *CLI) renderOptions() []render.Option {
	rc := c.Config.Render
	opts := []render.Option{
		render.WithTimeout(rc.Timeout),
		render.WithMaxPixels(rc.MaxPixels),
		render.WithMaxDocumentSize(rc.MaxDocument),
		render.WithLogger(c.Logger.Named("render")),
	}
	if rc.ChromePath != "" {
		opts = append(opts, render.WithChromePath(rc.ChromePath))
	}
	if rc.RemoteURL != "" {
		opts = append(opts, render.WithRemoteURL(rc.RemoteURL))
	}
	if rc.NoSandbox {
		opts = append(opts, render.WithNoSandbox())
	}
	if rc.AutoDownload {
		opts = append(opts, render.WithAutoDownload())
	}
	if !rc.Headless {
		opts = append(opts, render.WithHeadful())
	}
	if rc.PdftoppmPath != "" {
		opts = append(opts, render.WithPdftoppmPath(rc.PdftoppmPath))
	}
	return opts
}
