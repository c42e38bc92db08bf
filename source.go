package zplbox

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// SourceSpec identifies the document to render: either a remote URL or the
// document itself as base64 text. When both are set the URL wins.
type SourceSpec struct {
	URL        string `json:"url,omitempty"`
	DataBase64 string `json:"dataBase64,omitempty"`
}

// Source is a resolved document reference. Sources materialized from inline
// data own a temporary file that is deleted by [Source.Release].
type Source struct {
	// URL is an http, https or file URL a renderer can load.
	URL string
	// Path is the local file backing the source, empty for remote documents.
	Path string

	release func() error
	once    sync.Once
	err     error
}

// NewSource wraps rawURL as a Source. release, if non-nil, runs on the
// first call to [Source.Release].
func NewSource(rawURL string, release func() error) *Source {
	return &Source{URL: rawURL, release: release}
}

// Inline reports whether the source was materialized from inline data.
func (s *Source) Inline() bool {
	return s.Path != ""
}

// Release frees the transient resources of the source. Only the first call
// does any work; later calls return the first call's result.
func (s *Source) Release() error {
	s.once.Do(func() {
		if s.release != nil {
			s.err = s.release()
		}
	})
	return s.err
}

// ResolveSource turns spec into a Source. Inline data is written to a new
// file in dir (the system temp directory when empty) named with ext.
func ResolveSource(spec SourceSpec, dir, ext string) (*Source, error) {
	if raw := strings.TrimSpace(spec.URL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, WrapError(KindInvalidInput, err, "invalid URL %q", raw)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, NewError(KindInvalidInput, "unsupported URL scheme %q", u.Scheme)
		}
		if u.Host == "" {
			return nil, NewError(KindInvalidInput, "URL %q has no host", raw)
		}
		return NewSource(u.String(), nil), nil
	}

	if strings.TrimSpace(spec.DataBase64) == "" {
		return nil, NewError(KindInvalidInput, "either url or dataBase64 is required")
	}
	data, err := decodeInline(spec.DataBase64)
	if err != nil {
		return nil, err
	}
	return materialize(data, dir, ext)
}

// decodeInline accepts plain base64 (standard or URL alphabet, padded or
// not) and data URLs.
func decodeInline(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return nil, NewError(KindInvalidInput, "malformed data URL")
		}
		meta, payload := s[len("data:"):comma], s[comma+1:]
		if !strings.HasSuffix(meta, ";base64") {
			data, err := url.PathUnescape(payload)
			if err != nil {
				return nil, WrapError(KindInvalidInput, err, "malformed data URL")
			}
			return nonEmpty([]byte(data))
		}
		s = payload
	}

	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)

	var firstErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		data, err := enc.DecodeString(s)
		if err == nil {
			return nonEmpty(data)
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, WrapError(KindInvalidInput, firstErr, "dataBase64 is not valid base64")
}

func nonEmpty(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, NewError(KindInvalidInput, "inline document is empty")
	}
	return data, nil
}

func materialize(data []byte, dir, ext string) (*Source, error) {
	pattern := "zplbox-*"
	if ext != "" {
		pattern += "." + strings.TrimPrefix(ext, ".")
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("zplbox: creating temp file: %w", err)
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return nil, fmt.Errorf("zplbox: writing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return nil, fmt.Errorf("zplbox: closing temp file: %w", err)
	}

	abs, err := filepath.Abs(name)
	if err != nil {
		os.Remove(name)
		return nil, fmt.Errorf("zplbox: resolving path: %w", err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	src := NewSource(u.String(), func() error {
		if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	})
	src.Path = abs
	return src, nil
}
