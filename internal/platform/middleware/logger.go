package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/wardline/mar/internal/platform/auth"
	"github.com/wardline/mar/internal/platform/metrics"
)

// Logger logs one line per request and, when metrics are provided, records
// the request duration histogram. m may be nil.
func Logger(logger zerolog.Logger, m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid, _ := c.Get("request_id").(string)

			err := next(c)

			latency := time.Since(start)
			status := c.Response().Status

			evt := logger.Info()
			if err != nil {
				evt = logger.Error().Err(err)
			}

			evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("user_id", auth.UserIDFromContext(req.Context())).
				Int("status", status).
				Dur("latency", latency).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			if m != nil {
				m.RequestDuration.
					WithLabelValues(req.Method, c.Path(), strconv.Itoa(status)).
					Observe(latency.Seconds())
			}

			return err
		}
	}
}
