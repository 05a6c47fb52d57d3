package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Logger emits one structured event per request. Liveness probes and
// metrics scrapes log at debug so patient lookups stay findable in
// production output; the vendor tag is included whenever the route
// carries one.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid, _ := c.Get("request_id").(string)

			err := next(c)

			var evt *zerolog.Event
			switch {
			case err != nil:
				evt = logger.Error().Err(err)
			case req.URL.Path == "/health" || req.URL.Path == "/metrics":
				evt = logger.Debug()
			default:
				evt = logger.Info()
			}

			route := c.Path()
			if route == "" {
				route = req.URL.Path
			}
			evt = evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("route", route).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Int64("bytes_out", c.Response().Size).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP())
			if vendor := c.Param("vendor"); vendor != "" {
				evt = evt.Str("vendor", vendor)
			}
			evt.Msg("request")

			return err
		}
	}
}
