package middleware

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"subkeeper/internal/common"
	"subkeeper/internal/logger"
	"subkeeper/internal/metrics"
)

// RequestID assigns (or propagates) X-Request-Id and exposes it to loggers through the request context.
func RequestID() echo.MiddlewareFunc {
	return echoMiddleware.RequestIDWithConfig(echoMiddleware.RequestIDConfig{
		RequestIDHandler: func(c echo.Context, id string) {
			ctx := context.WithValue(c.Request().Context(), common.RequestIDKey, id)
			c.SetRequest(c.Request().WithContext(ctx))
		},
	})
}

// RequestLogger logs one line per request and records the request metrics.
// Errors are handed to the global error handler first so the logged status is the one sent.
func RequestLogger(log *slog.Logger, m *metrics.Collector) echo.MiddlewareFunc {
	return echoMiddleware.RequestLoggerWithConfig(echoMiddleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
		HandleError:  true,
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogRoutePath: true,
		LogStatus:    true,
		LogError:     true,
		LogRemoteIP:  true,
		LogValuesFunc: func(c echo.Context, v echoMiddleware.RequestLoggerValues) error {
			route := v.RoutePath
			if route == "" {
				route = "unmatched"
			}
			m.RecordHTTPRequest(v.Method, route, strconv.Itoa(v.Status), v.Latency)

			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", v.RemoteIP),
			}
			ctx := c.Request().Context()
			switch {
			case v.Status >= 500:
				if v.Error != nil {
					attrs = append(attrs, logger.Error(v.Error))
				}
				log.LogAttrs(ctx, slog.LevelError, "request failed", attrs...)
			case v.Status >= 400:
				log.LogAttrs(ctx, slog.LevelWarn, "request rejected", attrs...)
			default:
				log.LogAttrs(ctx, slog.LevelInfo, "request", attrs...)
			}
			return nil
		},
	})
}
