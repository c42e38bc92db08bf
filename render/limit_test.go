package render

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/porticus-lab/zplbox"
)

// unstartedRenderer is an HTMLRenderer without a browser. Requests rejected
// before navigation never reach chromedp.
func unstartedRenderer(opts ...Option) *HTMLRenderer {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &HTMLRenderer{cfg: cfg, log: zap.NewNop()}
}

func TestHTMLRenderer_PageOverPixelLimit(t *testing.T) {
	r := unstartedRenderer()
	src := zplbox.NewSource("https://example.com/label.html", nil)

	huge := Page{WidthPts: 14400, HeightPts: 14400, DPI: MaxDPI}
	require.NoError(t, huge.Validate())

	_, err := r.Render(context.Background(), src, &huge)
	require.Error(t, err)
	assert.Equal(t, zplbox.KindInvalidInput, zplbox.KindOf(err))
	assert.ErrorContains(t, err, "240000x240000")
}

func TestHTMLRenderer_CustomPixelLimit(t *testing.T) {
	// 4x6 at 203 dpi is 812x1218 dots.
	r := unstartedRenderer(WithMaxPixels(500_000))
	src := zplbox.NewSource("https://example.com/label.html", nil)

	_, err := r.Render(context.Background(), src, &Page{WidthPts: 288, HeightPts: 432, DPI: 203})
	assert.Equal(t, zplbox.KindInvalidInput, zplbox.KindOf(err))
}
