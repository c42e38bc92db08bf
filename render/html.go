package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/porticus-lab/zplbox"
)

// HTMLRenderer renders web pages into label-sized bitmaps with headless
// Chrome.
//
// An HTMLRenderer manages a browser instance that is reused across renders.
// It is safe for concurrent use; every render gets its own tab.
//
// Call [HTMLRenderer.Close] when the renderer is no longer needed to release
// browser resources.
type HTMLRenderer struct {
	cfg           config
	log           *zap.Logger
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewHTMLRenderer creates an HTMLRenderer with the given options.
//
// It starts the browser eagerly so configuration errors surface here. The
// caller must call [HTMLRenderer.Close] when finished.
func NewHTMLRenderer(opts ...Option) (*HTMLRenderer, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.chromePath == "" && cfg.remoteURL == "" && cfg.autoDownload {
		if _, ok := lookupBrowser(); !ok {
			path, err := resolveBrowser()
			if err != nil {
				return nil, err
			}
			cfg.chromePath = path
		}
	}

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if cfg.remoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.remoteURL)
	} else {
		allocOpts := append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-extensions", true),
			chromedp.Flag("disable-background-networking", true),
			chromedp.Flag("disable-sync", true),
			chromedp.Flag("disable-translate", true),
			chromedp.Flag("no-first-run", true),
			chromedp.Flag("hide-scrollbars", true),
			chromedp.Flag("font-render-hinting", "none"),
			chromedp.Flag("headless", cfg.headless),
		)
		if cfg.chromePath != "" {
			allocOpts = append(allocOpts, chromedp.ExecPath(cfg.chromePath))
		}
		if cfg.noSandbox {
			allocOpts = append(allocOpts, chromedp.Flag("no-sandbox", true))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), allocOpts...)
	}
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("render: starting browser: %w", err)
	}
	cfg.logger.Info("browser started",
		zap.String("chrome_path", cfg.chromePath),
		zap.String("remote_url", cfg.remoteURL))

	return &HTMLRenderer{
		cfg:           cfg,
		log:           cfg.logger,
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Close releases all resources held by the renderer, including the browser
// process. Close is idempotent.
func (r *HTMLRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.browserCancel()
	r.allocCancel()
	return nil
}

// For returns a [zplbox.Renderer] that renders onto pg. A nil pg means
// [DefaultPage].
func (r *HTMLRenderer) For(pg *Page) zplbox.Renderer {
	return htmlPage{r: r, pg: pg.resolved()}
}

type htmlPage struct {
	r  *HTMLRenderer
	pg Page
}

func (h htmlPage) SourceExt() string { return "html" }

func (h htmlPage) Render(ctx context.Context, src *zplbox.Source) (image.Image, error) {
	return h.r.Render(ctx, src, &h.pg)
}

// Render loads src in a fresh tab sized to the label and captures it. The
// bitmap measures exactly [Page.Dots].
func (r *HTMLRenderer) Render(ctx context.Context, src *zplbox.Source, pg *Page) (image.Image, error) {
	if err := r.checkClosed(); err != nil {
		return nil, err
	}
	if src == nil || src.URL == "" {
		return nil, zplbox.NewError(zplbox.KindInvalidInput, "no document to render")
	}
	if err := pg.Validate(); err != nil {
		return nil, err
	}
	if w, h := pg.Dots(); int64(w)*int64(h) > r.cfg.maxPixels {
		return nil, zplbox.NewError(zplbox.KindInvalidInput,
			"page renders to %dx%d dots, over the %d pixel limit", w, h, r.cfg.maxPixels)
	}

	if r.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.timeout)
		defer cancel()
	}

	tabCtx, tabCancel := chromedp.NewContext(r.browserCtx)
	defer tabCancel()

	// Tie the tab's lifetime to the caller's context.
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	width, height, scale := pg.viewport()
	var buf []byte
	if err := chromedp.Run(tabCtx,
		emulation.SetDeviceMetricsOverride(width, height, scale, false),
		chromedp.Navigate(src.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				WithFromSurface(true).
				Do(ctx)
			return err
		}),
	); err != nil {
		return nil, r.renderError(ctx, src, err)
	}

	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, zplbox.WrapError(zplbox.KindRenderFailure, err, "decoding screenshot")
	}
	w, h := pg.Dots()
	return fit(img, w, h), nil
}

// renderError classifies a failed browser run the way the caller will want
// to report it.
func (r *HTMLRenderer) renderError(ctx context.Context, src *zplbox.Source, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		r.log.Warn("render timed out", zap.String("url", src.URL), zap.Duration("timeout", r.cfg.timeout))
		return zplbox.WrapError(zplbox.KindRenderFailure, ctx.Err(), "rendering %s timed out", src.URL)
	case errors.Is(ctx.Err(), context.Canceled):
		return zplbox.WrapError(zplbox.KindRenderFailure, ctx.Err(), "rendering %s canceled", src.URL)
	}
	return zplbox.WrapError(zplbox.KindRenderFailure, err, "rendering %s", src.URL)
}

func (r *HTMLRenderer) checkClosed() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return zplbox.ErrClosed
	}
	return nil
}
