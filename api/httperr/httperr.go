// Package httperr maps the shared gateway.Kind error taxonomy onto
// HTTP status codes, used by every REST-shaped protocol surface
// (spec.md section 7).
package httperr

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/proofport/gateway/models/gateway"
)

// Status maps a gateway.Kind to its HTTP status code.
func Status(kind gateway.Kind) int {
	switch kind {
	case gateway.KindInvalidArgument:
		return http.StatusBadRequest
	case gateway.KindNotFound:
		return http.StatusNotFound
	case gateway.KindInvalidTransition:
		return http.StatusConflict
	case gateway.KindUnauthenticated:
		return http.StatusUnauthorized
	case gateway.KindPaymentRequired:
		return http.StatusPaymentRequired
	case gateway.KindRateLimited:
		return http.StatusTooManyRequests
	case gateway.KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case gateway.KindUpstreamFailure:
		return http.StatusBadGateway
	case gateway.KindNotRoutable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Respond renders err as a JSON error body with the mapped status,
// attaching Retry-After for rate-limited responses.
func Respond(c echo.Context, err error) error {
	gerr, ok := err.(*gateway.Error)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if gerr.Kind == gateway.KindRateLimited && gerr.RetryAfter > 0 {
		c.Response().Header().Set("Retry-After", strconv.Itoa(gerr.RetryAfter))
	}
	return c.JSON(Status(gerr.Kind), map[string]string{
		"error":   string(gerr.Kind),
		"message": gerr.Message,
	})
}
