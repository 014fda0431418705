package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/station-helpdesk/internal/auth"
	"github.com/spec-kit/station-helpdesk/internal/domain"
	apperrors "github.com/spec-kit/station-helpdesk/pkg/util/errorutil"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		for _, tag := range []string{"json", "query", "form"} {
			name := strings.SplitN(field.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return field.Name
	})
	return v
}

// validateStruct runs struct validation and converts failures into a field list.
func validateStruct(payload any) error {
	err := validate.Struct(payload)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	fields := make([]apperrors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperrors.FieldError{Field: fieldPath(fe), Message: describe(fe)})
	}
	return apperrors.NewFieldValidationError(fields)
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return "must be a valid email address"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "alphanum":
		return "must contain only letters and digits"
	case "uuid", "uuid4":
		return "must be a valid id"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// bindJSON decodes the body into dst and validates it. Strict decoding
// rejects fields dst does not declare.
func bindJSON(c *fiber.Ctx, dst any, strict bool) error {
	body := c.Body()
	if len(bytes.TrimSpace(body)) == 0 {
		return apperrors.NewValidationError("request body is required", nil)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dst); err != nil {
		return decodeError(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return apperrors.NewValidationError("request body must contain a single JSON object", nil)
	}
	return validateStruct(dst)
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return apperrors.NewFieldValidationError([]apperrors.FieldError{{
			Field:   typeErr.Field,
			Message: fmt.Sprintf("must be of type %s", typeErr.Type),
		}})
	}
	if strings.HasPrefix(err.Error(), "json: unknown field ") {
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return apperrors.NewFieldValidationError([]apperrors.FieldError{{Field: field, Message: "field is not allowed"}})
	}
	var timeErr *time.ParseError
	if errors.As(err, &timeErr) {
		return apperrors.NewValidationError("timestamps must be RFC 3339", nil)
	}
	return apperrors.NewValidationError("invalid JSON payload", nil)
}

// bindQuery parses query parameters into dst and validates it.
func bindQuery(c *fiber.Ctx, dst any) error {
	if err := c.QueryParser(dst); err != nil {
		return apperrors.NewValidationError("invalid query parameters", nil)
	}
	return validateStruct(dst)
}

// parseDateParam accepts RFC 3339 or a bare date. A bare date used as an
// upper bound covers the whole day.
func parseDateParam(field, raw string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return &t, nil
	}
	return nil, apperrors.NewFieldValidationError([]apperrors.FieldError{{
		Field:   field,
		Message: "must be a date (YYYY-MM-DD) or RFC 3339 timestamp",
	}})
}

func parseBoolParam(field, raw string) (*bool, error) {
	switch strings.ToLower(raw) {
	case "":
		return nil, nil
	case "true":
		v := true
		return &v, nil
	case "false":
		v := false
		return &v, nil
	}
	return nil, apperrors.NewFieldValidationError([]apperrors.FieldError{{Field: field, Message: "must be true or false"}})
}

// currentUser returns the authenticated user set by the auth middleware.
func currentUser(c *fiber.Ctx) (*domain.User, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return principal.User, nil
}

func respond(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(fiber.Map{"data": data})
}
