package zplbox

import (
	"bytes"
	"image"
	"image/color"
)

// Raster is a 1-bit image packed most-significant-bit first. A set bit is a
// black dot. Each row occupies Stride bytes and the unused low bits of the
// last byte in a row are always zero.
//
// Raster implements [image.Image] so it can be written out with image/png
// for inspection.
type Raster struct {
	Width  int
	Height int
	Stride int
	Pix    []byte
}

// NewRaster returns an all-white raster of the given size.
func NewRaster(width, height int) *Raster {
	if width < 0 || height < 0 {
		width, height = 0, 0
	}
	stride := BytesPerRow(width)
	return &Raster{
		Width:  width,
		Height: height,
		Stride: stride,
		Pix:    make([]byte, stride*height),
	}
}

// BytesPerRow returns the number of packed bytes needed for a row of width dots.
func BytesPerRow(width int) int {
	return (width + 7) / 8
}

// Set marks the dot at (x, y) black or white. Out of range coordinates are ignored.
func (r *Raster) Set(x, y int, black bool) {
	if x < 0 || y < 0 || x >= r.Width || y >= r.Height {
		return
	}
	i := y*r.Stride + x/8
	mask := byte(0x80) >> (x % 8)
	if black {
		r.Pix[i] |= mask
	} else {
		r.Pix[i] &^= mask
	}
}

// Black reports whether the dot at (x, y) is black.
func (r *Raster) Black(x, y int) bool {
	if x < 0 || y < 0 || x >= r.Width || y >= r.Height {
		return false
	}
	return r.Pix[y*r.Stride+x/8]&(byte(0x80)>>(x%8)) != 0
}

// Row returns the packed bytes of row y.
func (r *Raster) Row(y int) []byte {
	return r.Pix[y*r.Stride : (y+1)*r.Stride]
}

// Validate checks that the pixel buffer matches the declared geometry and
// that every padding bit is clear.
func (r *Raster) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return NewError(KindMalformedRaster, "raster has zero size %dx%d", r.Width, r.Height)
	}
	if r.Stride != BytesPerRow(r.Width) {
		return NewError(KindMalformedRaster, "stride %d does not match width %d", r.Stride, r.Width)
	}
	if len(r.Pix) != r.Stride*r.Height {
		return NewError(KindMalformedRaster, "pixel buffer holds %d bytes, want %d", len(r.Pix), r.Stride*r.Height)
	}
	if pad := r.Stride*8 - r.Width; pad > 0 {
		mask := byte(1)<<pad - 1
		for y := 0; y < r.Height; y++ {
			if r.Pix[y*r.Stride+r.Stride-1]&mask != 0 {
				return NewError(KindMalformedRaster, "row %d has padding bits set", y)
			}
		}
	}
	return nil
}

// Equal reports whether r and o hold the same dots.
func (r *Raster) Equal(o *Raster) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.Width == o.Width && r.Height == o.Height && r.Stride == o.Stride &&
		bytes.Equal(r.Pix, o.Pix)
}

// BlackCount returns the number of black dots.
func (r *Raster) BlackCount() int {
	n := 0
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			if r.Black(x, y) {
				n++
			}
		}
	}
	return n
}

// ColorModel implements [image.Image].
func (r *Raster) ColorModel() color.Model { return color.GrayModel }

// Bounds implements [image.Image].
func (r *Raster) Bounds() image.Rectangle { return image.Rect(0, 0, r.Width, r.Height) }

// At implements [image.Image].
func (r *Raster) At(x, y int) color.Color {
	if r.Black(x, y) {
		return color.Gray{Y: 0}
	}
	return color.Gray{Y: 0xff}
}
