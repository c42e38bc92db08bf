package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/porticus-lab/zplbox"
	"github.com/porticus-lab/zplbox/render"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// halfBlack is a 16x2 image whose left half is black.
func halfBlack() image.Image {
	img := image.NewGray(image.Rect(0, 0, 16, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 16; x++ {
			c := color.Gray{Y: 0xff}
			if x < 8 {
				c.Y = 0
			}
			img.SetGray(x, y, c)
		}
	}
	return img
}

const halfBlackLabel = "^XA\n^PW16\n^LL2\n^FO0,0^GFA,4,4,2,FF,:^FS\n^XZ\n"

type fakeHTML struct {
	mu    sync.Mutex
	pages []render.Page
	err   error
}

func (f *fakeHTML) For(pg *render.Page) zplbox.Renderer {
	f.mu.Lock()
	f.pages = append(f.pages, *pg)
	f.mu.Unlock()
	return zplbox.RendererFunc(func(context.Context, *zplbox.Source) (image.Image, error) {
		return halfBlack(), f.err
	})
}

type fakePDF struct {
	dpis []int
}

func (f *fakePDF) For(dpi int) zplbox.Renderer {
	f.dpis = append(f.dpis, dpi)
	return zplbox.RendererFunc(func(_ context.Context, src *zplbox.Source) (image.Image, error) {
		if !src.Inline() {
			return nil, zplbox.NewError(zplbox.KindInvalidInput, "document %s not found", src.URL)
		}
		return halfBlack(), nil
	})
}

func newTestServer(t *testing.T, opts Options) (*Server, *fakeHTML, *fakePDF) {
	t.Helper()
	html, pdf := &fakeHTML{}, &fakePDF{}
	opts.HTML, opts.PDF = html, pdf
	if opts.Pipeline == nil {
		opts.Pipeline = zplbox.NewPipeline(zplbox.WithTempDir(t.TempDir()),
			zplbox.WithDeliveryTimeouts(time.Second, time.Second))
	}
	return New(opts), html, pdf
}

func post(t *testing.T, s *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func inlineBody(extra string) string {
	data := base64.StdEncoding.EncodeToString([]byte("<p>hello</p>"))
	return `{"dataBase64":"` + data + `"` + extra + `}`
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) Problem {
	t.Helper()
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, ProblemContentType, w.Header().Get("Content-Type"))
	var p Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return p
}

func TestHTML2ZPL(t *testing.T) {
	s, html, _ := newTestServer(t, Options{})

	w := post(t, s, "/v1/html2zpl", inlineBody(`,"widthPts":144,"heightPts":72`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, halfBlackLabel, w.Body.String())

	require.Len(t, html.pages, 1)
	assert.Equal(t, render.Page{WidthPts: 144, HeightPts: 72, DPI: 203}, html.pages[0])
}

func TestHTML2ZPL_DPIFromRequestAndConfig(t *testing.T) {
	s, html, _ := newTestServer(t, Options{HTMLDPI: 300})

	post(t, s, "/v1/html2zpl", inlineBody(`,"widthPts":72,"heightPts":72`))
	post(t, s, "/v1/html2zpl", inlineBody(`,"widthPts":72,"heightPts":72,"dotsPerInch":600`))
	require.Len(t, html.pages, 2)
	assert.Equal(t, 300, html.pages[0].DPI)
	assert.Equal(t, 600, html.pages[1].DPI)
}

func TestPDF2ZPL(t *testing.T) {
	s, _, pdf := newTestServer(t, Options{})

	w := post(t, s, "/v1/pdf2zpl", inlineBody(`,"dotsPerInch":300`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, halfBlackLabel, w.Body.String())
	assert.Equal(t, []int{300}, pdf.dpis)
}

func TestRender_PNG(t *testing.T) {
	s, _, _ := newTestServer(t, Options{})

	for _, path := range []string{"/v1/html2zpl/render", "/v1/pdf2zpl/render"} {
		w := post(t, s, path, inlineBody(""))
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		img, err := png.Decode(w.Body)
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 16, 2), img.Bounds())
	}
}

// printer accepts one connection and returns what was written to it.
func printer(t *testing.T) (addr string, received <-chan []byte) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	ch := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		ch <- data
	}()
	return ln.Addr().String(), ch
}

func TestPrint(t *testing.T) {
	s, _, _ := newTestServer(t, Options{})
	addr, received := printer(t)

	w := post(t, s, "/v1/html2zpl/print/"+addr, inlineBody(""))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, w.Body.String())

	select {
	case data := <-received:
		assert.Equal(t, halfBlackLabel, string(data))
	case <-time.After(5 * time.Second):
		t.Fatal("printer received nothing")
	}
}

func TestPrint_DeliveryFailed(t *testing.T) {
	s, _, _ := newTestServer(t, Options{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	p := decodeProblem(t, post(t, s, "/v1/pdf2zpl/print/"+addr, inlineBody("")))
	assert.Equal(t, zplbox.KindDeliveryFailed, p.Kind)
	assert.Equal(t, "Printer delivery failed", p.Title)
}

func TestPrint_InvalidAddress(t *testing.T) {
	s, _, _ := newTestServer(t, Options{})

	p := decodeProblem(t, post(t, s, "/v1/html2zpl/print/printer:99999", inlineBody("")))
	assert.Equal(t, zplbox.KindInvalidInput, p.Kind)
}

func TestProblem(t *testing.T) {
	s, html, _ := newTestServer(t, Options{})
	html.err = zplbox.NewError(zplbox.KindRenderFailure, "navigation failed")

	req := httptest.NewRequest(http.MethodPost, "/v1/html2zpl", strings.NewReader(inlineBody("")))
	req.Header.Set("X-Request-ID", "req-7")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	p := decodeProblem(t, w)
	assert.Equal(t, Problem{
		Type:      "about:blank",
		Title:     "Rendering failed",
		Status:    400,
		Detail:    "navigation failed",
		Instance:  "/v1/html2zpl",
		Kind:      zplbox.KindRenderFailure,
		RequestID: "req-7",
	}, p)
}

func TestBadRequests(t *testing.T) {
	s, _, _ := newTestServer(t, Options{})

	tests := []struct {
		name  string
		path  string
		body  string
		field string
	}{
		{"not json", "/v1/html2zpl", "{", ""},
		{"no source", "/v1/html2zpl", `{}`, ""},
		{"bad base64", "/v1/pdf2zpl", `{"dataBase64":"***"}`, ""},
		{"ftp url", "/v1/pdf2zpl", `{"url":"ftp://example.com/a.pdf"}`, ""},
		{"not a url", "/v1/html2zpl", `{"url":"nope"}`, "url"},
		{"negative width", "/v1/html2zpl", inlineBody(`,"widthPts":-1`), "widthPts"},
		{"dpi too high", "/v1/pdf2zpl", inlineBody(`,"dotsPerInch":5000`), "dotsPerInch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := decodeProblem(t, post(t, s, tt.path, tt.body))
			assert.Equal(t, zplbox.KindInvalidInput, p.Kind)
			if tt.field != "" {
				require.Len(t, p.Errors, 1)
				assert.Equal(t, tt.field, p.Errors[0].Field)
			}
		})
	}
}

func TestBodyLimit(t *testing.T) {
	s, _, _ := newTestServer(t, Options{MaxBodySize: 64})

	p := decodeProblem(t, post(t, s, "/v1/html2zpl", `{"dataBase64":"`+strings.Repeat("A", 128)+`"}`))
	assert.Equal(t, zplbox.KindInvalidInput, p.Kind)
}

func TestRendererUnavailable(t *testing.T) {
	s := New(Options{})

	p := decodeProblem(t, post(t, s, "/v1/pdf2zpl", inlineBody("")))
	assert.Equal(t, zplbox.KindRenderFailure, p.Kind)
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t, Options{Version: "1.2.3"})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "1.2.3", body["version"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestServe_GracefulShutdown(t *testing.T) {
	s, _, _ := newTestServer(t, Options{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Post("http://"+ln.Addr().String()+"/v1/html2zpl", "application/json",
		bytes.NewReader([]byte(inlineBody(""))))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
