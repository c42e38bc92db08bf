package zplbox

import (
	"bytes"
	"encoding/base64"
	"io"
	"os"
)

// Label holds the ZPL commands for one label together with the geometry of
// its graphic field.
//
// A Label is returned by [Encode] and [Pipeline.Run]. Its data is never
// modified after creation.
type Label struct {
	data []byte

	Width       int // dots
	Height      int // dots
	BytesPerRow int
	TotalBytes  int // uncompressed graphic field size
}

// Bytes returns the raw ZPL text.
func (l *Label) Bytes() []byte {
	return l.data
}

// String returns the ZPL text.
func (l *Label) String() string {
	return string(l.data)
}

// Base64 returns the ZPL encoded as a standard base64 string (RFC 4648).
func (l *Label) Base64() string {
	return base64.StdEncoding.EncodeToString(l.data)
}

// Reader returns an [*bytes.Reader] over the ZPL text.
func (l *Label) Reader() *bytes.Reader {
	return bytes.NewReader(l.data)
}

// WriteTo writes the full label to w. It implements [io.WriterTo].
func (l *Label) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(l.data)
	return int64(n), err
}

// WriteToFile writes the label to the file at path, creating it if needed.
func (l *Label) WriteToFile(path string, perm os.FileMode) error {
	return os.WriteFile(path, l.data, perm)
}

// Len returns the size of the ZPL text in bytes.
func (l *Label) Len() int {
	return len(l.data)
}

// Raster decodes the label's graphic field.
func (l *Label) Raster() (*Raster, error) {
	return DecodeLabel(l.data)
}
