// Package validation configures the struct validator shared by the realtime
// router and the REST handlers.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"nexa/pkg/types"
)

// custom validation tags
const (
	entityIDTag = "entity_id"
	notBlankTag = "notblank"
)

// New returns a validator that reports fields by their JSON names and knows
// the entity_id and notblank tags.
func New() *validator.Validate {
	v := validator.New()

	// Use JSON tag names for errors instead of Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation(entityIDTag, func(fl validator.FieldLevel) bool {
		return types.IsValidID(fl.Field().String())
	})
	_ = v.RegisterValidation(notBlankTag, func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	return v
}

// Check validates s and converts a failure into an error wrapping
// types.ErrValidation that names the offending fields.
func Check(v *validator.Validate, s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", types.ErrValidation, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", types.ErrValidation, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", notBlankTag:
		return fe.Field() + " is required"
	case entityIDTag:
		return fe.Field() + " must be 1-64 characters, alphanumeric + underscore/hyphen only"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
