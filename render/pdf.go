package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/porticus-lab/zplbox"
	"github.com/porticus-lab/zplbox/internal/pdfinfo"
)

const defaultPdftoppm = "pdftoppm"

// PDFRenderer rasterizes the first page of a PDF with poppler's pdftoppm.
//
// A PDFRenderer holds no per-render state and is safe for concurrent use.
type PDFRenderer struct {
	cfg config
	log *zap.Logger
	bin string
}

// NewPDFRenderer creates a PDFRenderer. It fails when the pdftoppm
// executable cannot be found.
func NewPDFRenderer(opts ...Option) (*PDFRenderer, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	path := cfg.pdftoppmPath
	if path == "" {
		path = defaultPdftoppm
	}
	bin, err := resolveBinary(path)
	if err != nil {
		return nil, fmt.Errorf("render: pdftoppm not found: %w", err)
	}
	return &PDFRenderer{cfg: cfg, log: cfg.logger, bin: bin}, nil
}

func resolveBinary(path string) (string, error) {
	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err != nil {
			return "", err
		}
		return path, nil
	}
	return exec.LookPath(path)
}

// For returns a [zplbox.Renderer] that rasterizes at dpi. Zero means
// [DefaultDPI].
func (r *PDFRenderer) For(dpi int) zplbox.Renderer {
	return pdfPage{r: r, dpi: dpi}
}

type pdfPage struct {
	r   *PDFRenderer
	dpi int
}

func (p pdfPage) SourceExt() string { return "pdf" }

func (p pdfPage) Render(ctx context.Context, src *zplbox.Source) (image.Image, error) {
	return p.r.Render(ctx, src, p.dpi)
}

// Render rasterizes the first page of src at dpi. Pages whose bitmap would
// exceed the configured pixel limit are rejected before rasterizing.
func (r *PDFRenderer) Render(ctx context.Context, src *zplbox.Source, dpi int) (image.Image, error) {
	if src == nil || src.URL == "" {
		return nil, zplbox.NewError(zplbox.KindInvalidInput, "no document to render")
	}
	if dpi == 0 {
		dpi = DefaultDPI
	}
	if dpi < MinDPI || dpi > MaxDPI {
		return nil, zplbox.NewError(zplbox.KindInvalidInput, "dots per inch %d outside [%d, %d]", dpi, MinDPI, MaxDPI)
	}

	if r.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.timeout)
		defer cancel()
	}

	data, in, err := r.load(ctx, src)
	if err != nil {
		return nil, err
	}
	if err := r.checkGeometry(data, dpi); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "zplbox-pdf-*")
	if err != nil {
		return nil, zplbox.WrapError(zplbox.KindRenderFailure, err, "creating work directory")
	}
	defer os.RemoveAll(dir)

	if in == "" {
		in = filepath.Join(dir, "document.pdf")
		if err := os.WriteFile(in, data, 0o600); err != nil {
			return nil, zplbox.WrapError(zplbox.KindRenderFailure, err, "writing document")
		}
	}
	out := filepath.Join(dir, "page")
	args := []string{"-png", "-r", strconv.Itoa(dpi), "-f", "1", "-l", "1", "-singlefile", in, out}

	r.log.Debug("executing pdftoppm", zap.String("binary", r.bin), zap.Strings("args", args))
	cmd := exec.CommandContext(ctx, r.bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			r.log.Warn("render timed out", zap.String("url", src.URL), zap.Duration("timeout", r.cfg.timeout))
			return nil, zplbox.WrapError(zplbox.KindRenderFailure, ctx.Err(), "rasterizing %s timed out", src.URL)
		case errors.Is(ctx.Err(), context.Canceled):
			return nil, zplbox.WrapError(zplbox.KindRenderFailure, ctx.Err(), "rasterizing %s canceled", src.URL)
		}
		r.log.Error("pdftoppm failed", zap.Error(err), zap.String("stderr", stderr.String()))
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "no diagnostics"
		}
		return nil, zplbox.WrapError(zplbox.KindRenderFailure, err, "pdftoppm: %s", msg)
	}

	f, err := os.Open(out + ".png")
	if err != nil {
		return nil, zplbox.WrapError(zplbox.KindRenderFailure, err, "pdftoppm produced no image")
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, zplbox.WrapError(zplbox.KindRenderFailure, err, "decoding rasterized page")
	}
	return img, nil
}

// load returns the document bytes and, for local documents, the file path.
func (r *PDFRenderer) load(ctx context.Context, src *zplbox.Source) ([]byte, string, error) {
	path := src.Path
	if path == "" {
		if u, err := url.Parse(src.URL); err == nil && u.Scheme == "file" {
			path = filepath.FromSlash(u.Path)
		}
	}
	if path == "" {
		data, err := fetch(ctx, r.cfg.httpClient, src.URL, r.cfg.maxDocument)
		return data, "", err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", zplbox.WrapError(zplbox.KindInvalidInput, err, "document %s not found", path)
	}
	if err != nil {
		return nil, "", zplbox.WrapError(zplbox.KindRenderFailure, err, "reading document")
	}
	return data, path, nil
}

func (r *PDFRenderer) checkGeometry(data []byte, dpi int) error {
	doc, err := pdfinfo.Load(data)
	if err != nil {
		return zplbox.WrapError(zplbox.KindInvalidInput, err, "unreadable PDF")
	}
	page, err := doc.FirstPage()
	if err != nil {
		return zplbox.WrapError(zplbox.KindInvalidInput, err, "unreadable PDF")
	}
	w, h := page.Pixels(dpi)
	if w <= 0 || h <= 0 {
		return zplbox.NewError(zplbox.KindInvalidInput, "first page has no area")
	}
	if int64(w)*int64(h) > r.cfg.maxPixels {
		return zplbox.NewError(zplbox.KindInvalidInput,
			"first page rasterizes to %dx%d dots, over the %d pixel limit", w, h, r.cfg.maxPixels)
	}
	r.log.Debug("pdf page", zap.Float64("width_pts", page.Width), zap.Float64("height_pts", page.Height),
		zap.Int("rotation", page.Rotation), zap.Int("dpi", dpi))
	return nil
}
