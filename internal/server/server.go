// Package server exposes the conversion pipeline over HTTP.
package server

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/porticus-lab/zplbox"
	"github.com/porticus-lab/zplbox/internal/logger"
	"github.com/porticus-lab/zplbox/render"
)

// HTMLRenderers hands out renderers sized for a label stock.
// [render.HTMLRenderer] implements it.
type HTMLRenderers interface {
	For(pg *render.Page) zplbox.Renderer
}

// PDFRenderers hands out renderers for a resolution.
// [render.PDFRenderer] implements it.
type PDFRenderers interface {
	For(dpi int) zplbox.Renderer
}

// Options configures a Server. A nil HTML or PDF renderer disables the
// corresponding routes' rendering, which then fails with RENDER_FAILURE.
type Options struct {
	Pipeline *zplbox.Pipeline
	HTML     HTMLRenderers
	PDF      PDFRenderers
	Logger   *zap.Logger
	Version  string

	HTMLDPI     int
	PDFDPI      int
	DefaultPort int
	MaxBodySize int64

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Server is the zplbox HTTP API.
type Server struct {
	opts   Options
	log    *zap.Logger
	engine *gin.Engine
}

type output int

const (
	outputLabel output = iota
	outputPrint
	outputImage
)

type docType int

const (
	docHTML docType = iota
	docPDF
)

// New builds the router.
func New(opts Options) *Server {
	setupValidator()
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Pipeline == nil {
		opts.Pipeline = zplbox.NewPipeline(zplbox.WithLogger(opts.Logger))
	}
	if opts.HTMLDPI == 0 {
		opts.HTMLDPI = render.DefaultDPI
	}
	if opts.PDFDPI == 0 {
		opts.PDFDPI = render.DefaultDPI
	}
	if opts.DefaultPort == 0 {
		opts.DefaultPort = zplbox.DefaultPrinterPort
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{opts: opts, log: opts.Logger}
	e := gin.New()
	e.Use(logger.RequestID(), logger.GinMiddleware(s.log), logger.Recovery(s.log))

	e.GET("/health", s.health)

	v1 := e.Group("/v1")
	if opts.MaxBodySize > 0 {
		v1.Use(bodyLimit(opts.MaxBodySize))
	}
	for path, doc := range map[string]docType{"/html2zpl": docHTML, "/pdf2zpl": docPDF} {
		g := v1.Group(path)
		g.POST("", s.convert(doc, outputLabel))
		g.POST("/print/:tcpAddress", s.convert(doc, outputPrint))
		g.POST("/render", s.convert(doc, outputImage))
	}
	s.engine = e
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": s.opts.Version,
		"html":    s.opts.HTML != nil,
		"pdf":     s.opts.PDF != nil,
	})
}

func (s *Server) convert(doc docType, out output) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RenderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, zplbox.WrapError(zplbox.KindInvalidInput, err, "invalid request body"))
			return
		}
		r, err := s.renderer(doc, &req)
		if err != nil {
			fail(c, err)
			return
		}
		ctx := c.Request.Context()

		switch out {
		case outputImage:
			img, err := s.opts.Pipeline.Render(ctx, req.source(), r)
			if err != nil {
				fail(c, err)
				return
			}
			var buf bytes.Buffer
			if err := png.Encode(&buf, img); err != nil {
				fail(c, zplbox.WrapError(zplbox.KindRenderFailure, err, "encoding PNG"))
				return
			}
			c.Data(http.StatusOK, "image/png", buf.Bytes())

		case outputLabel:
			label, err := s.opts.Pipeline.Run(ctx, zplbox.Request{Source: req.source(), Renderer: r})
			if err != nil {
				fail(c, err)
				return
			}
			c.Data(http.StatusOK, "text/plain; charset=utf-8", label.Bytes())

		case outputPrint:
			ep, err := zplbox.ParseEndpointDefault(c.Param("tcpAddress"), s.opts.DefaultPort)
			if err != nil {
				fail(c, err)
				return
			}
			_, err = s.opts.Pipeline.Run(ctx, zplbox.Request{Source: req.source(), Renderer: r, PrintTo: &ep})
			if err != nil {
				fail(c, err)
				return
			}
			logger.GetGinLogger(c).Info("label printed", zap.Stringer("printer", ep))
			c.Status(http.StatusOK)
		}
	}
}

func (s *Server) renderer(doc docType, req *RenderRequest) (zplbox.Renderer, error) {
	switch doc {
	case docHTML:
		if s.opts.HTML == nil {
			return nil, zplbox.NewError(zplbox.KindRenderFailure, "HTML rendering is not available")
		}
		return s.opts.HTML.For(req.page(s.opts.HTMLDPI)), nil
	default:
		if s.opts.PDF == nil {
			return nil, zplbox.NewError(zplbox.KindRenderFailure, "PDF rendering is not available")
		}
		return s.opts.PDF.For(req.dpi(s.opts.PDFDPI)), nil
	}
}

func bodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > n {
			fail(c, zplbox.NewError(zplbox.KindInvalidInput, "request body exceeds %d bytes", n))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

// Serve accepts connections on ln until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.engine,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and calls [Server.Serve].
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}
