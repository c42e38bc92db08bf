package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/porticus-lab/zplbox"
	"github.com/porticus-lab/zplbox/internal/logger"
)

// ProblemContentType is the media type of error responses (RFC 9457).
const ProblemContentType = "application/problem+json"

// Problem is the body of every failed request.
type Problem struct {
	Type      string       `json:"type"`
	Title     string       `json:"title"`
	Status    int          `json:"status"`
	Detail    string       `json:"detail"`
	Instance  string       `json:"instance"`
	Kind      zplbox.Kind  `json:"kind"`
	RequestID string       `json:"requestId,omitempty"`
	Errors    []FieldError `json:"errors,omitempty"`
}

var titles = map[zplbox.Kind]string{
	zplbox.KindInvalidInput:    "Invalid input",
	zplbox.KindRenderFailure:   "Rendering failed",
	zplbox.KindMalformedRaster: "Malformed raster",
	zplbox.KindDeliveryTimeout: "Printer timed out",
	zplbox.KindDeliveryFailed:  "Printer delivery failed",
}

// problemFor maps err to the response body. All failures are reported as
// 400 Bad Request, with the kind telling them apart.
func problemFor(c *gin.Context, err error) Problem {
	kind := zplbox.KindOf(err)
	if kind == "" {
		kind = zplbox.KindRenderFailure
	}
	p := Problem{
		Type:      "about:blank",
		Title:     titles[kind],
		Status:    http.StatusBadRequest,
		Detail:    zplbox.Message(err),
		Instance:  c.Request.URL.Path,
		Kind:      kind,
		RequestID: logger.GetRequestIDFromGin(c),
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		p.Detail = "request validation failed"
		p.Errors = fieldErrors(verrs)
	}
	return p
}

// fail writes the problem response for err.
func fail(c *gin.Context, err error) {
	p := problemFor(c, err)
	logger.GetGinLogger(c).Warn("request failed", zap.String("kind", string(p.Kind)), zap.Error(err))
	_ = c.Error(err)
	c.Header("Content-Type", ProblemContentType)
	c.AbortWithStatusJSON(p.Status, p)
}
