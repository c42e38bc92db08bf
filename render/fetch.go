package render

import (
	"context"
	"io"
	"net/http"

	"github.com/porticus-lab/zplbox"
)

// fetch downloads url, refusing bodies larger than limit bytes.
func fetch(ctx context.Context, hc *http.Client, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, zplbox.WrapError(zplbox.KindInvalidInput, err, "invalid URL %q", url)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, zplbox.WrapError(zplbox.KindRenderFailure, err, "fetching %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, zplbox.NewError(zplbox.KindRenderFailure, "fetching %s: %s", url, resp.Status)
	}
	if resp.ContentLength > limit {
		return nil, zplbox.NewError(zplbox.KindInvalidInput, "document at %s exceeds %d bytes", url, limit)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, zplbox.WrapError(zplbox.KindRenderFailure, err, "reading %s", url)
	}
	if int64(len(data)) > limit {
		return nil, zplbox.NewError(zplbox.KindInvalidInput, "document at %s exceeds %d bytes", url, limit)
	}
	return data, nil
}
