package render

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// fit returns img scaled to exactly w x h. Browser screenshots can be a dot
// off the requested size because the viewport is sized in whole CSS pixels.
// Transparent areas are flattened onto white.
func fit(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h && b.Min == (image.Point{}) {
		return img
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if b.Dx() >= w && b.Dy() >= h && b.Dx()-w <= 2 && b.Dy()-h <= 2 {
		// Crop rather than resample a near miss.
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
