package zplbox

import (
	"image"
	"image/color"
)

// threshold separates black from white after error diffusion.
const threshold = 128

// ToMonochrome reduces img to a 1-bit raster of the same size using
// Floyd–Steinberg error diffusion over luma (0.299R + 0.587G + 0.114B).
// Pixels that are not fully opaque are treated as white.
//
// The result depends only on the pixel values of img.
func ToMonochrome(img image.Image) (*Raster, error) {
	if img == nil {
		return nil, NewError(KindInvalidInput, "image is nil")
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, NewError(KindInvalidInput, "image has zero size %dx%d", w, h)
	}

	r := NewRaster(w, h)

	// cur holds the luma of the row being quantized plus the error already
	// diffused into it; next collects the error for the row below.
	cur := make([]float64, w)
	next := make([]float64, w)
	for x := 0; x < w; x++ {
		cur[x] = luma(img.At(b.Min.X+x, b.Min.Y))
	}

	for y := 0; y < h; y++ {
		if y+1 < h {
			for x := 0; x < w; x++ {
				next[x] = luma(img.At(b.Min.X+x, b.Min.Y+y+1))
			}
		}
		for x := 0; x < w; x++ {
			old := cur[x]
			v := 255.0
			if old < threshold {
				v = 0
				r.Set(x, y, true)
			}
			e := old - v
			if x+1 < w {
				cur[x+1] += e * 7 / 16
			}
			if y+1 < h {
				if x > 0 {
					next[x-1] += e * 3 / 16
				}
				next[x] += e * 5 / 16
				if x+1 < w {
					next[x+1] += e * 1 / 16
				}
			}
		}
		cur, next = next, cur
	}
	return r, nil
}

// luma returns the 8-bit luminance of c. Translucent pixels read as white.
func luma(c color.Color) float64 {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	if n.A < 0xff {
		return 255
	}
	return float64(299*int(n.R)+587*int(n.G)+114*int(n.B)) / 1000
}
