package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/avalia-hub/avalia-hub/internal/application/saga"
	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
	"github.com/avalia-hub/avalia-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// cascadeErrorBody tells the caller how far a roster cascade got, so it can
// re-read the affected data and resume the run.
type cascadeErrorBody struct {
	Error     string   `json:"error"`
	RunID     string   `json:"runId"`
	ClassID   string   `json:"classId"`
	StudentID string   `json:"studentId"`
	Step      string   `json:"step"`
	Completed []string `json:"completed"`
	Remaining []string `json:"remaining"`
	Retryable bool     `json:"retryable"`
}

// newHTTPErrorHandler maps domain error kinds onto status codes.
// A partially applied cascade is checked first: it also unwraps to the
// kind of its cause.
func newHTTPErrorHandler(log *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var (
			code    int
			message interface{}
			herr    *echo.HTTPError
			verrs   validator.ValidationErrors
			cerr    *saga.CascadeError
		)

		switch {
		case errors.As(err, &cerr):
			code = http.StatusConflict
			message = cascadeErrorBody{
				Error:     cerr.Error(),
				RunID:     cerr.RunID,
				ClassID:   cerr.ClassID,
				StudentID: cerr.StudentID,
				Step:      string(cerr.Step),
				Completed: nonNil(cerr.Completed),
				Remaining: nonNil(cerr.Remaining),
				Retryable: cerr.IsRetryable(),
			}
		case errors.As(err, &herr):
			if herr.Internal != nil {
				var inner *echo.HTTPError
				if errors.As(herr.Internal, &inner) {
					herr = inner
				}
			}
			code = herr.Code
			message = herr.Message
		case errors.As(err, &verrs):
			fldErrs := make(map[string]string, len(verrs))
			for _, vErr := range verrs {
				fldErrs[vErr.Field()] = describeFieldError(vErr)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case shared.IsValidation(err):
			code = http.StatusBadRequest
			message = err.Error()
		case shared.IsNotFound(err):
			code = http.StatusNotFound
			message = err.Error()
		case shared.IsAlreadyExists(err), shared.IsConflict(err):
			code = http.StatusConflict
			message = err.Error()
		case shared.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
			code = http.StatusGatewayTimeout
			message = http.StatusText(http.StatusGatewayTimeout)
			log.Warn("request timed out", logger.Err(err), logger.String("path", c.Request().URL.Path))
		default: // store failures and anything unexpected
			code = http.StatusInternalServerError
			message = http.StatusText(http.StatusInternalServerError)
			logger.FromContext(c.Request().Context()).Error("request failed",
				logger.Err(err),
				logger.String("path", c.Request().URL.Path),
			)
		}

		if c.Echo().Debug && code >= http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, message)
		}
		if err != nil {
			log.Error("write error response", logger.Err(err))
		}
	}
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	default:
		return fmt.Sprintf("failed on '%s'", fe.Tag())
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
