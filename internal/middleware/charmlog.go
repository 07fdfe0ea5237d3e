// Package middleware holds echo middleware shared by the control server.
package middleware

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
)

// CharmLog logs every request through the package-level charm logger.
// Server errors are logged at error level, everything else at debug.
func CharmLog() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			fields := []any{
				"method", req.Method,
				"uri", req.RequestURI,
				"status", res.Status,
				"latency", time.Since(start),
			}
			if res.Status >= 500 {
				log.Error("control request failed", append(fields, "err", err)...)
			} else {
				log.Debug("control request", fields...)
			}
			return nil
		}
	}
}
