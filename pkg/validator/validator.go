package validator

import (
	"github.com/go-playground/validator/v10"
	"github.com/ulule/limiter/v3"
)

type ErrorResponse struct {
	FailedField string `json:"failedField"`
	Tag         string `json:"tag"`
	Value       string `json:"value"`
}

var validate = validator.New()

func init() {
	// Rate strings in ulule/limiter format, e.g. "100-S" or "1000-H".
	validate.RegisterValidation("limiter_rate", func(fl validator.FieldLevel) bool {
		_, err := limiter.NewRateFromFormatted(fl.Field().String())
		return err == nil
	})
}

// Struct returns the raw validation error, for callers that only need to
// fail.
func Struct(data interface{}) error {
	return validate.Struct(data)
}

func ValidateStruct(data interface{}) []*ErrorResponse {
	var errors []*ErrorResponse
	err := validate.Struct(data)
	if err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return []*ErrorResponse{{FailedField: "", Tag: "invalid", Value: err.Error()}}
		}
		for _, err := range verrs {
			var element ErrorResponse
			element.FailedField = err.StructNamespace()
			element.Tag = err.Tag()
			element.Value = err.Param()
			errors = append(errors, &element)
		}
	}
	return errors
}
