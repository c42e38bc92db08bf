package render_test

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/porticus-lab/zplbox"
	"github.com/porticus-lab/zplbox/render"
)

// labelPDF returns a one-page PDF of the given size in points with a black
// square in the lower left corner.
func labelPDF(width, height float64) []byte {
	var b strings.Builder
	offsets := make([]int, 5)
	b.WriteString("%PDF-1.4\n")
	content := "0 0 0 rg 0 0 36 36 re f\n"
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %g %g] /Contents 4 0 R >>", width, height),
		fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", len(content), content),
	}
	for i, o := range objs {
		offsets[i+1] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	b.WriteString("xref\n0 5\n0000000000 65535 f \n")
	for _, off := range offsets[1:] {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size 5 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xref)
	return []byte(b.String())
}

// fakeRasterizer installs a stand-in for pdftoppm that records its
// arguments and emits a fixed w x h PNG. It returns the executable and the
// argument log.
func fakeRasterizer(t *testing.T, w, h int) (bin, argLog string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping: shell script rasterizer")
	}
	dir := t.TempDir()
	fixture := filepath.Join(dir, "fixture.png")
	f, err := os.Create(fixture)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, w, h))))
	require.NoError(t, f.Close())

	argLog = filepath.Join(dir, "args")
	bin = filepath.Join(dir, "pdftoppm")
	script := fmt.Sprintf("#!/bin/sh\nfor a in \"$@\"; do out=\"$a\"; done\nprintf '%%s\\n' \"$@\" > %q\ncp %q \"$out.png\"\n", argLog, fixture)
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))
	return bin, argLog
}

func failingRasterizer(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping: shell script rasterizer")
	}
	bin := filepath.Join(t.TempDir(), "pdftoppm")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\necho 'Syntax Error: broken xref' >&2\nexit 1\n"), 0o755))
	return bin
}

func readArgs(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func fileSource(t *testing.T, data []byte) *zplbox.Source {
	t.Helper()
	path := filepath.Join(t.TempDir(), "label.pdf")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return zplbox.NewSource("file://"+filepath.ToSlash(path), nil)
}

func TestPDFRenderer_LocalFile(t *testing.T) {
	bin, argLog := fakeRasterizer(t, 20, 10)
	r, err := render.NewPDFRenderer(render.WithPdftoppmPath(bin))
	require.NoError(t, err)

	src := fileSource(t, labelPDF(144, 72))
	img, err := r.Render(context.Background(), src, 300)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 10), img.Bounds())

	args := readArgs(t, argLog)
	require.Len(t, args, 10)
	assert.Equal(t, []string{"-png", "-r", "300", "-f", "1", "-l", "1", "-singlefile"}, args[:8])
	assert.True(t, strings.HasSuffix(args[8], "label.pdf"), args[8])
}

func TestPDFRenderer_RemoteDocument(t *testing.T) {
	bin, argLog := fakeRasterizer(t, 8, 8)
	doc := labelPDF(72, 72)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(doc)
	}))
	defer srv.Close()

	r, err := render.NewPDFRenderer(render.WithPdftoppmPath(bin))
	require.NoError(t, err)
	_, err = r.For(0).Render(context.Background(), zplbox.NewSource(srv.URL+"/label.pdf", nil))
	require.NoError(t, err)

	args := readArgs(t, argLog)
	assert.Equal(t, "203", args[2])
	assert.Equal(t, "document.pdf", filepath.Base(args[8]))
}

func TestPDFRenderer_RejectsOversizedPage(t *testing.T) {
	bin, argLog := fakeRasterizer(t, 8, 8)
	r, err := render.NewPDFRenderer(render.WithPdftoppmPath(bin), render.WithMaxPixels(100_000))
	require.NoError(t, err)

	// 4x6 inches at 203 dpi is 812x1218 dots.
	_, err = r.Render(context.Background(), fileSource(t, labelPDF(288, 432)), 203)
	assert.Equal(t, zplbox.KindInvalidInput, zplbox.KindOf(err))
	assert.ErrorContains(t, err, "812x1218")

	_, statErr := os.Stat(argLog)
	assert.True(t, os.IsNotExist(statErr), "rasterizer ran for a rejected page")
}

func TestPDFRenderer_InvalidInput(t *testing.T) {
	bin, _ := fakeRasterizer(t, 8, 8)
	r, err := render.NewPDFRenderer(render.WithPdftoppmPath(bin))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = r.Render(ctx, fileSource(t, []byte("<html>not a pdf</html>")), 203)
	assert.Equal(t, zplbox.KindInvalidInput, zplbox.KindOf(err))

	_, err = r.Render(ctx, fileSource(t, labelPDF(72, 72)), 10)
	assert.Equal(t, zplbox.KindInvalidInput, zplbox.KindOf(err))

	_, err = r.Render(ctx, zplbox.NewSource("file:///does/not/exist.pdf", nil), 203)
	assert.Equal(t, zplbox.KindInvalidInput, zplbox.KindOf(err))

	_, err = r.Render(ctx, nil, 203)
	assert.Equal(t, zplbox.KindInvalidInput, zplbox.KindOf(err))
}

func TestPDFRenderer_DownloadFailures(t *testing.T) {
	bin, _ := fakeRasterizer(t, 8, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/big.pdf" {
			w.Write(make([]byte, 2048))
			return
		}
		http.NotFound(w, req)
	}))
	defer srv.Close()

	r, err := render.NewPDFRenderer(render.WithPdftoppmPath(bin), render.WithMaxDocumentSize(1024))
	require.NoError(t, err)

	_, err = r.Render(context.Background(), zplbox.NewSource(srv.URL+"/missing.pdf", nil), 203)
	assert.Equal(t, zplbox.KindRenderFailure, zplbox.KindOf(err))
	assert.ErrorContains(t, err, "404")

	_, err = r.Render(context.Background(), zplbox.NewSource(srv.URL+"/big.pdf", nil), 203)
	assert.Equal(t, zplbox.KindInvalidInput, zplbox.KindOf(err))
}

func TestPDFRenderer_RasterizerFailure(t *testing.T) {
	r, err := render.NewPDFRenderer(render.WithPdftoppmPath(failingRasterizer(t)))
	require.NoError(t, err)

	_, err = r.Render(context.Background(), fileSource(t, labelPDF(72, 72)), 203)
	assert.Equal(t, zplbox.KindRenderFailure, zplbox.KindOf(err))
	assert.ErrorContains(t, err, "Syntax Error: broken xref")
}

func TestNewPDFRenderer_MissingBinary(t *testing.T) {
	_, err := render.NewPDFRenderer(render.WithPdftoppmPath("/nonexistent/pdftoppm"))
	assert.Error(t, err)
}

func TestPDFRenderer_Poppler(t *testing.T) {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		t.Skip("skipping: pdftoppm not found in PATH")
	}
	r, err := render.NewPDFRenderer()
	require.NoError(t, err)

	p := zplbox.NewPipeline(zplbox.WithTempDir(t.TempDir()))
	label, err := p.Run(context.Background(), zplbox.Request{
		Source:   zplbox.SourceSpec{DataBase64: base64.StdEncoding.EncodeToString(labelPDF(144, 72))},
		Renderer: r.For(203),
	})
	require.NoError(t, err)
	assert.Equal(t, 406, label.Width)
	assert.Equal(t, 203, label.Height)

	raster, err := label.Raster()
	require.NoError(t, err)
	// The 36pt square covers the bottom-left 101x101 dots, give or take edge pixels.
	assert.True(t, raster.Black(10, 200))
	assert.False(t, raster.Black(400, 10))
}
