// Package validate checks caller input before it reaches the pipeline.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/atikulmunna/sagrag/internal/model"
	"github.com/go-playground/validator/v10"
)

// MaxQueryBytes bounds the size of a query string
const MaxQueryBytes = 8 * 1024

// ErrInvalidRequest marks caller errors; it is the only error the pipeline
// surfaces
var ErrInvalidRequest = errors.New("invalid request")

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("notblank", notBlank)
	_ = validate.RegisterValidation("maxbytes", maxBytes)
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func maxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxQueryBytes
}

// Request validates a query request
func Request(req model.QueryRequest) error {
	return Struct(req)
}

// Struct validates any value carrying validate tags. Failures wrap
// ErrInvalidRequest and name every offending field.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := toSnake(fe.Field())
	switch fe.Tag() {
	case "required", "notblank":
		return field + " is required"
	case "maxbytes":
		return fmt.Sprintf("%s exceeds %d bytes", field, MaxQueryBytes)
	case "min", "max":
		return fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s", field, fe.Tag())
}

// toSnake maps Go field names to their wire names (UserID -> user_id)
func toSnake(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		b.WriteString(strings.ToLower(string(r)))
	}
	return b.String()
}
