package httpapi

import (
	"github.com/dmitrijs2005/sitevisit/internal/common"
	"github.com/dmitrijs2005/sitevisit/internal/logging"
	"github.com/dmitrijs2005/sitevisit/internal/server/auth"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const callerKey = "caller_id"

// tagRequest puts the request id into the request context so every log
// line written while serving the request carries it.
func tagRequest(c echo.Context, id string) {
	req := c.Request()
	c.SetRequest(req.WithContext(logging.ContextWith(req.Context(), "request_id", id)))
}

func setCaller(c echo.Context, id string) {
	c.Set(callerKey, id)
	req := c.Request()
	c.SetRequest(req.WithContext(logging.ContextWith(req.Context(), callerKey, id)))
}

// requestLogger logs one line per request and feeds the HTTP metrics.
// Errors are handled here so the logged status is the one sent.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ctx := c.Request().Context()
			args := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"ip", v.RemoteIP,
				"latency", v.Latency,
			}
			if v.Error != nil {
				args = append(args, "error", v.Error.Error())
			}

			switch {
			case v.Status >= 500:
				s.log.Error(ctx, "request", args...)
			case v.Status >= 400:
				s.log.Warn(ctx, "request", args...)
			default:
				s.log.Info(ctx, "request", args...)
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			s.metrics.RecordHTTPRequest(v.Method, path, v.Status, v.Latency.Seconds())
			return nil
		},
	})
}

// identify resolves the caller of an /api request. A request without an
// Authorization header is anonymous; a header that does not verify is
// rejected. With auth disabled every request runs as the public caller.
func (s *Server) identify(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.config.AuthDisabled {
			setCaller(c, common.PublicUserID)
			return next(c)
		}

		header := c.Request().Header.Get(common.AuthorizationHeaderName)
		if header == "" {
			return next(c)
		}

		token, err := auth.BearerToken(header)
		if err != nil {
			return err
		}
		userID, err := auth.GetUserIDFromToken(token, []byte(s.config.SecretKey))
		if err != nil {
			return err
		}
		setCaller(c, userID)
		return next(c)
	}
}

func callerID(c echo.Context) string {
	id, _ := c.Get(callerKey).(string)
	return id
}
