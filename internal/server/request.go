package server

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/porticus-lab/zplbox"
	"github.com/porticus-lab/zplbox/render"
)

// RenderRequest is the JSON body accepted by every conversion route.
// WidthPts and HeightPts size HTML labels; DotsPerInch sets the resolution
// of both renderers.
type RenderRequest struct {
	URL         string  `json:"url" binding:"omitempty,url"`
	DataBase64  string  `json:"dataBase64"`
	WidthPts    float64 `json:"widthPts" binding:"omitempty,gt=0,lte=14400"`
	HeightPts   float64 `json:"heightPts" binding:"omitempty,gt=0,lte=14400"`
	DotsPerInch int     `json:"dotsPerInch" binding:"omitempty,min=72,max=1200"`
}

func (r *RenderRequest) source() zplbox.SourceSpec {
	return zplbox.SourceSpec{URL: r.URL, DataBase64: r.DataBase64}
}

// page returns the label stock for HTML rendering. Missing dimensions fall
// back to a 4x6 inch label.
func (r *RenderRequest) page(defaultDPI int) *render.Page {
	pg := render.Page{WidthPts: r.WidthPts, HeightPts: r.HeightPts, DPI: r.DotsPerInch}
	if pg.DPI == 0 {
		pg.DPI = defaultDPI
	}
	return &pg
}

func (r *RenderRequest) dpi(defaultDPI int) int {
	if r.DotsPerInch != 0 {
		return r.DotsPerInch
	}
	return defaultDPI
}

var setupOnce sync.Once

// setupValidator reports fields by their JSON names.
func setupValidator() {
	setupOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func fieldErrors(verrs validator.ValidationErrors) []FieldError {
	out := make([]FieldError, 0, len(verrs))
	for _, e := range verrs {
		out = append(out, FieldError{Field: e.Field(), Message: validationMessage(e)})
	}
	return out
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "url":
		return "Invalid URL format"
	case "gt":
		return "Must be greater than " + e.Param()
	case "lte", "max":
		return "Must be at most " + e.Param()
	case "min":
		return "Must be at least " + e.Param()
	default:
		return "Invalid value"
	}
}
