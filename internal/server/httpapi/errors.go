package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/sitevisit/internal/common"
	"github.com/labstack/echo/v4"
)

type errorBody struct {
	Detail string `json:"detail"`
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code, detail := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Error(c.Request().Context(), "request failed", "path", c.Path(), "error", err)
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(code)
	} else {
		werr = c.JSON(code, errorBody{Detail: detail})
	}
	if werr != nil {
		s.log.Error(c.Request().Context(), "write error response", "error", werr)
	}
}

// statusFor maps service errors to a status code and the detail shown to
// the client. Internal failures never expose their message.
func statusFor(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprint(he.Message)
	}

	switch {
	case errors.Is(err, common.ErrMalformedInput),
		errors.Is(err, common.ErrPolicyViolation),
		errors.Is(err, common.ErrStorageMode):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, common.ErrStatusTransition):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
}
