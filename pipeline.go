package zplbox

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Renderer turns a resolved document into a bitmap.
type Renderer interface {
	Render(ctx context.Context, src *Source) (image.Image, error)
}

// RendererFunc adapts a function to [Renderer].
type RendererFunc func(ctx context.Context, src *Source) (image.Image, error)

// Render implements [Renderer].
func (f RendererFunc) Render(ctx context.Context, src *Source) (image.Image, error) {
	return f(ctx, src)
}

// SourceExter is implemented by renderers that need inline documents stored
// under a particular file extension, such as "html" or "pdf".
type SourceExter interface {
	SourceExt() string
}

// Request describes one conversion.
type Request struct {
	Source   SourceSpec
	Renderer Renderer
	// PrintTo, when set, receives the finished label.
	PrintTo *Endpoint
}

// Pipeline converts documents into labels: resolve the source, render it,
// reduce it to one bit per dot, encode it as ZPL and optionally deliver it.
//
// A Pipeline holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	cfg       pipelineConfig
	log       *zap.Logger
	transport Transport
	renders   *semaphore.Weighted
}

// NewPipeline creates a Pipeline with the given options.
func NewPipeline(opts ...Option) *Pipeline {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	tr := cfg.transport
	if tr == nil {
		tr = &TCPTransport{ConnectTimeout: cfg.connectTimeout, WriteTimeout: cfg.writeTimeout}
	}
	return &Pipeline{
		cfg:       cfg,
		log:       cfg.logger,
		transport: tr,
		renders:   semaphore.NewWeighted(cfg.renderLimit),
	}
}

// Run converts the requested document into a label. When req.PrintTo is set
// the label is also sent to that printer, and returned as well.
//
// The source's transient resources are released exactly once on every path.
// No partial label is returned on failure.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Label, error) {
	img, err := p.Render(ctx, req.Source, req.Renderer)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	raster, err := ToMonochrome(img)
	if err != nil {
		return nil, err
	}
	p.stageDone("monochrome", start, zap.Int("width", raster.Width), zap.Int("height", raster.Height))

	start = time.Now()
	label, err := Encode(raster)
	if err != nil {
		return nil, err
	}
	p.stageDone("encode", start, zap.Int("bytes", label.Len()))

	if req.PrintTo == nil {
		return label, nil
	}
	start = time.Now()
	if err := p.transport.Deliver(ctx, label, *req.PrintTo); err != nil {
		return nil, err
	}
	p.stageDone("deliver", start, zap.Stringer("printer", req.PrintTo))
	return label, nil
}

// Render resolves spec and renders it with r without converting the result.
// The source is released as soon as rendering finishes.
func (p *Pipeline) Render(ctx context.Context, spec SourceSpec, r Renderer) (image.Image, error) {
	if r == nil {
		return nil, NewError(KindInvalidInput, "no renderer")
	}
	ext := ""
	if e, ok := r.(SourceExter); ok {
		ext = e.SourceExt()
	}

	start := time.Now()
	src, err := ResolveSource(spec, p.cfg.tempDir, ext)
	if err != nil {
		return nil, err
	}
	released := false
	defer func() {
		if !released {
			p.release(src)
		}
	}()
	p.stageDone("resolve", start, zap.Bool("inline", src.Inline()))

	start = time.Now()
	img, err := p.render(ctx, r, src)
	released = true
	p.release(src)
	if err != nil {
		var zerr *Error
		if errors.As(err, &zerr) {
			return nil, err
		}
		return nil, WrapError(KindRenderFailure, err, "rendering document")
	}
	if img == nil {
		return nil, NewError(KindRenderFailure, "renderer returned no image")
	}
	b := img.Bounds()
	p.stageDone("render", start, zap.String("size", fmt.Sprintf("%dx%d", b.Dx(), b.Dy())))
	return img, nil
}

// render runs r while holding a render slot.
func (p *Pipeline) render(ctx context.Context, r Renderer, src *Source) (image.Image, error) {
	if err := p.renders.Acquire(ctx, 1); err != nil {
		return nil, WrapError(KindRenderFailure, err, "waiting for a render slot")
	}
	defer p.renders.Release(1)
	return r.Render(ctx, src)
}

// release frees src, logging rather than returning any failure.
func (p *Pipeline) release(src *Source) {
	if err := src.Release(); err != nil {
		p.log.Warn("releasing source", zap.String("url", src.URL), zap.Error(err))
	}
}

func (p *Pipeline) stageDone(stage string, start time.Time, fields ...zap.Field) {
	fields = append(fields, zap.String("stage", stage), zap.Duration("duration", time.Since(start)))
	p.log.Debug("stage complete", fields...)
}
