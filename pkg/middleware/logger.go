package middleware

import (
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/metrics"
)

// Logger writes one line per request and observes its latency. Server errors log at
// error level so a failed apply or undo stands out from routine review traffic.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			elapsed := time.Since(start)

			req, res := c.Request(), c.Response()
			ctx := req.Context()
			metrics.HTTPRequestDuration.
				WithLabelValues(req.Method, c.Path(), fmt.Sprintf("%dxx", res.Status/100)).
				Observe(elapsed.Seconds())

			entry := logger.WithContext(ctx).WithFields(map[string]any{
				"request_id":    context.GetRequestID(ctx),
				"user_id":       context.GetUserID(ctx),
				"user_role":     context.GetUserRole(ctx),
				"method":        req.Method,
				"uri":           req.RequestURI,
				"route":         c.Path(),
				"status":        res.Status,
				"remote_ip":     c.RealIP(),
				"user_agent":    req.UserAgent(),
				"response_time": elapsed,
				"response_size": res.Size,
			})
			if res.Status >= 500 {
				entry.Error("Request")
			} else {
				entry.Info("Request")
			}
			return nil
		}
	}
}
