package http

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BINDING AND VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

type requestValidator struct {
	validate *validator.Validate
}

// newRequestValidator reports field errors under their wire names.
func newRequestValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "query"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})
	return &requestValidator{validate: v}
}

func (v *requestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

// bindBody decodes the JSON body and validates it.
func bindBody(c echo.Context, dst interface{}) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, dst); err != nil {
		return err
	}
	return c.Validate(dst)
}

// bindQuery decodes query parameters for any method and validates them.
func bindQuery(c echo.Context, dst interface{}) error {
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, dst); err != nil {
		return err
	}
	return c.Validate(dst)
}

// requireParam returns a mandatory query parameter.
func requireParam(c echo.Context, name string) (string, error) {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return "", shared.Validation("http", c.Path(), name+" query parameter is required")
	}
	return v, nil
}

// payloadText accepts a grade payload either as a JSON object or as a JSON
// string holding one, which is how it is persisted.
func payloadText(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", shared.Validation("evaluation", "Bind", "payload must be a JSON object or a JSON string")
		}
		return s, nil
	}
	return trimmed, nil
}
