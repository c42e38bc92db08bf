package zplbox

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Markers of the ZPL alternative compression scheme.
const (
	markFillZero  = ','
	markFillOne   = '!'
	markRepeatRow = ':'
	maxRunLength  = 419 // z (400) + Y (19)
)

const hexDigits = "0123456789ABCDEF"

// Encode renders r as a complete ZPL label: label start, print width, label
// length, one ASCII graphic field at the origin, label end. The graphic
// field data is compressed with repeat counts, end-of-row fill markers and
// repeated-row markers; the byte counts in its header describe the
// uncompressed raster.
func Encode(r *Raster) (*Label, error) {
	if r == nil {
		return nil, NewError(KindMalformedRaster, "raster is nil")
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	total := r.Stride * r.Height
	var buf bytes.Buffer
	buf.Grow(total/2 + 64)
	fmt.Fprintf(&buf, "^XA\n^PW%d\n^LL%d\n", r.Width, r.Height)
	fmt.Fprintf(&buf, "^FO0,0^GFA,%d,%d,%d,", total, total, r.Stride)
	writeGraphicData(&buf, r)
	buf.WriteString("^FS\n^XZ\n")

	return &Label{
		data:        buf.Bytes(),
		Width:       r.Width,
		Height:      r.Height,
		BytesPerRow: r.Stride,
		TotalBytes:  total,
	}, nil
}

// writeGraphicData appends the compressed hex rows of r to buf.
func writeGraphicData(buf *bytes.Buffer, r *Raster) {
	row := make([]byte, 2*r.Stride)
	var prev []byte
	for y := 0; y < r.Height; y++ {
		cur := r.Row(y)
		if prev != nil && bytes.Equal(cur, prev) {
			buf.WriteByte(markRepeatRow)
			continue
		}
		prev = cur
		for i, b := range cur {
			row[2*i] = hexDigits[b>>4]
			row[2*i+1] = hexDigits[b&0x0f]
		}
		compressRow(buf, row)
	}
}

// compressRow appends one hex row using run-length counts. A run reaching
// the end of the row collapses to a fill marker when it is all 0 or all F.
func compressRow(buf *bytes.Buffer, row []byte) {
	for i := 0; i < len(row); {
		c := row[i]
		j := i + 1
		for j < len(row) && row[j] == c {
			j++
		}
		n := j - i
		switch {
		case j == len(row) && c == '0':
			buf.WriteByte(markFillZero)
		case j == len(row) && c == 'F':
			buf.WriteByte(markFillOne)
		default:
			writeRun(buf, c, n)
		}
		i = j
	}
}

func writeRun(buf *bytes.Buffer, c byte, n int) {
	for n > 0 {
		k := min(n, maxRunLength)
		n -= k
		if k < 3 {
			for ; k > 0; k-- {
				buf.WriteByte(c)
			}
			continue
		}
		if hi := k / 20; hi > 0 {
			buf.WriteByte('f' + byte(hi))
		}
		if lo := k % 20; lo > 0 {
			buf.WriteByte('F' + byte(lo))
		}
		buf.WriteByte(c)
	}
}

// repeatCount returns the run length encoded by count character c.
func repeatCount(c byte) (int, bool) {
	switch {
	case c >= 'G' && c <= 'Y':
		return int(c-'G') + 1, true
	case c >= 'g' && c <= 'z':
		return (int(c-'g') + 1) * 20, true
	}
	return 0, false
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}

// DecodeGraphic expands compressed ASCII graphic field data into a raster of
// totalBytes/bytesPerRow rows. width is the number of meaningful dots per
// row; zero means every bit of every byte.
func DecodeGraphic(data []byte, totalBytes, bytesPerRow, width int) (*Raster, error) {
	if bytesPerRow <= 0 || totalBytes <= 0 || totalBytes%bytesPerRow != 0 {
		return nil, NewError(KindMalformedRaster, "invalid graphic geometry total=%d bytesPerRow=%d", totalBytes, bytesPerRow)
	}
	if width <= 0 || width > bytesPerRow*8 {
		width = bytesPerRow * 8
	}
	if BytesPerRow(width) != bytesPerRow {
		return nil, NewError(KindMalformedRaster, "width %d does not fit %d bytes per row", width, bytesPerRow)
	}
	height := totalBytes / bytesPerRow
	rowLen := 2 * bytesPerRow

	r := NewRaster(width, height)
	row := make([]byte, 0, rowLen)
	var prev []byte
	y := 0
	count := 0

	finish := func() error {
		if y >= height {
			return NewError(KindMalformedRaster, "graphic data holds more than %d rows", height)
		}
		dst := r.Row(y)
		if _, err := hex.Decode(dst, row); err != nil {
			return WrapError(KindMalformedRaster, err, "row %d", y)
		}
		prev = dst
		row = row[:0]
		y++
		return nil
	}
	fill := func(c byte) error {
		if count != 0 {
			return NewError(KindMalformedRaster, "repeat count before fill marker in row %d", y)
		}
		for len(row) < rowLen {
			row = append(row, c)
		}
		return finish()
	}

	for i := 0; i < len(data); i++ {
		c := data[i]
		switch {
		case c == ' ' || c == '\r' || c == '\n' || c == '\t':
		case c == markRepeatRow:
			if count != 0 || len(row) != 0 || prev == nil {
				return nil, NewError(KindMalformedRaster, "unexpected repeat-row marker at offset %d", i)
			}
			row = append(row, strings.ToUpper(hex.EncodeToString(prev))...)
			if err := finish(); err != nil {
				return nil, err
			}
		case c == markFillZero:
			if err := fill('0'); err != nil {
				return nil, err
			}
		case c == markFillOne:
			if err := fill('F'); err != nil {
				return nil, err
			}
		case isHexDigit(c):
			n := max(count, 1)
			count = 0
			if len(row)+n > rowLen {
				return nil, NewError(KindMalformedRaster, "row %d overflows %d hex digits", y, rowLen)
			}
			for ; n > 0; n-- {
				row = append(row, c)
			}
			if len(row) == rowLen {
				if err := finish(); err != nil {
					return nil, err
				}
			}
		default:
			n, ok := repeatCount(c)
			if !ok {
				return nil, NewError(KindMalformedRaster, "invalid character %q at offset %d", c, i)
			}
			count += n
		}
	}
	if count != 0 || len(row) != 0 {
		return nil, NewError(KindMalformedRaster, "graphic data ends inside row %d", y)
	}
	if y != height {
		return nil, NewError(KindMalformedRaster, "graphic data holds %d rows, want %d", y, height)
	}

	// Foreign labels may carry ink in the padding bits.
	if pad := bytesPerRow*8 - width; pad > 0 {
		mask := ^(byte(1)<<pad - 1)
		for y := 0; y < height; y++ {
			r.Pix[y*bytesPerRow+bytesPerRow-1] &= mask
		}
	}
	return r, nil
}

// DecodeLabel parses the first ASCII graphic field of a ZPL label back into
// a raster. The raster width comes from the label's print width when it is
// present and consistent with the field, otherwise from the field itself.
func DecodeLabel(label []byte) (*Raster, error) {
	s := string(label)
	start := strings.Index(s, "^GFA,")
	if start < 0 {
		return nil, NewError(KindMalformedRaster, "label has no ASCII graphic field")
	}
	rest := s[start+len("^GFA,"):]
	parts := strings.SplitN(rest, ",", 4)
	if len(parts) != 4 {
		return nil, NewError(KindMalformedRaster, "truncated graphic field header")
	}
	var header [3]int
	for i := range header {
		v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return nil, WrapError(KindMalformedRaster, err, "graphic field header")
		}
		header[i] = v
	}
	data := parts[3]
	if end := strings.IndexByte(data, '^'); end >= 0 {
		data = data[:end]
	}

	width := 0
	if i := strings.Index(s, "^PW"); i >= 0 {
		v := s[i+3:]
		if end := strings.IndexAny(v, "^\r\n"); end >= 0 {
			v = v[:end]
		}
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && BytesPerRow(n) == header[2] {
			width = n
		}
	}
	return DecodeGraphic([]byte(data), header[1], header[2], width)
}
