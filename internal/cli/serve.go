package cli

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/porticus-lab/zplbox/internal/buildinfo"
	"github.com/porticus-lab/zplbox/internal/server"
	"github.com/porticus-lab/zplbox/render"
)

func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API. The server stops accepting requests on SIGINT or SIGTERM
and waits for in-flight conversions before exiting.

A renderer that cannot start (no Chrome, no pdftoppm) is logged and its
routes fail with RENDER_FAILURE; the other routes keep working.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := c.Config
			if addr == "" {
				addr = cfg.HTTP.Addr
			}
			if cfg.IsProduction() {
				gin.SetMode(gin.ReleaseMode)
			}

			opts := server.Options{
				Pipeline:     c.newPipeline(),
				Logger:       c.Logger.Named("http"),
				Version:      buildinfo.Version,
				HTMLDPI:      cfg.Render.HTMLDPI,
				PDFDPI:       cfg.Render.PDFDPI,
				DefaultPort:  cfg.Printer.DefaultPort,
				MaxBodySize:  cfg.HTTP.MaxBodySize,
				ReadTimeout:  cfg.HTTP.ReadTimeout,
				WriteTimeout: cfg.HTTP.WriteTimeout,
				IdleTimeout:  cfg.HTTP.IdleTimeout,
			}

			html, err := render.NewHTMLRenderer(c.renderOptions()...)
			if err != nil {
				c.Logger.Warn("HTML rendering disabled", zap.Error(err))
			} else {
				defer html.Close()
				opts.HTML = html
			}
			pdf, err := render.NewPDFRenderer(c.renderOptions()...)
			if err != nil {
				c.Logger.Warn("PDF rendering disabled", zap.Error(err))
			} else {
				opts.PDF = pdf
			}

			c.Logger.Info("starting zplbox",
				zap.String("version", buildinfo.Version),
				zap.String("env", cfg.App.Env),
				zap.String("addr", addr))
			return server.New(opts).ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	return cmd
}
