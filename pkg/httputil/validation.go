package httputil

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/gymflow/gymflow-backend/pkg/errors"
	"github.com/gymflow/gymflow-backend/pkg/i18n"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// report fields by their JSON names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		_, err := time.Parse("15:04", fl.Field().String())
		return err == nil && len(fl.Field().String()) == 5
	})
	v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := time.Parse("2006-01-02", fl.Field().String())
		return err == nil
	})

	return v
}

// Validate validates a struct using go-playground/validator
func Validate(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.BadRequest(err.Error())
	}

	details := make(map[string]string)
	for _, e := range validationErrors {
		details[e.Field()] = formatValidationError(e)
	}

	return errors.Validation(details)
}

func formatValidationError(e validator.FieldError) string {
	params := map[string]string{"field": e.Field(), "param": e.Param()}

	switch e.Tag() {
	case "required", "required_without", "required_if":
		return i18n.T("validation.required", params)
	case "max":
		return i18n.T("validation.max", params)
	case "oneof":
		return i18n.T("validation.oneof", params)
	case "hhmm":
		return i18n.T("validation.hhmm", params)
	case "isodate":
		return i18n.T("validation.isodate", params)
	case "gtfield":
		return i18n.T("validation.gtfield", params)
	default:
		return "invalid value"
	}
}
