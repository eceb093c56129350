package http

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/avalia-hub/avalia-hub/pkg/logger"
)

// requestIDMiddleware assigns every request an id, echoes it back in the
// X-Request-ID header and attaches a request-scoped logger to the context.
func requestIDMiddleware(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)

			ctx := logger.WithContext(req.Context(), log.WithRequestID(id))
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

// accessLogMiddleware logs one line per request. Errors are handed to the
// error handler first so the logged status is the one the client saw.
func accessLogMiddleware(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			fields := []logger.Field{
				logger.String("method", req.Method),
				logger.String("path", req.URL.Path),
				logger.StatusCode(c.Response().Status),
				logger.Latency(time.Since(start)),
				logger.String("ip", c.RealIP()),
				logger.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			}
			if c.Response().Status >= 500 {
				log.Warn("http request", fields...)
			} else {
				log.Info("http request", fields...)
			}
			return nil
		}
	}
}

// recoverMiddleware turns a handler panic into a 500 response.
func recoverMiddleware(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered",
						logger.Any("panic", r),
						logger.String("stack", string(debug.Stack())),
						logger.String("path", c.Request().URL.Path),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(c)
		}
	}
}
