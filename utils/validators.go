package utils

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var sessionStatuses = map[string]bool{
	"online":       true,
	"disconnected": true,
	"offline":      true,
}

func RegisterCustomValidators(v *validator.Validate) {
	v.RegisterValidation("session_status", ValidateSessionStatusRule)
	v.RegisterValidation("coordinates", ValidateCoordinatesRule)
}

var Validate *validator.Validate

// InitValidator registers the custom rules on both the standalone validator and gin's binding engine
func InitValidator() {
	Validate = validator.New()
	RegisterCustomValidators(Validate)
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		RegisterCustomValidators(v)
	}
}

func ValidateSessionStatusRule(fl validator.FieldLevel) bool {
	return sessionStatuses[fl.Field().String()]
}

// ValidateCoordinatesRule accepts free-form text, and when the value looks like "lat,lng" it must be in range
func ValidateCoordinatesRule(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if !LooksLikeCoordinates(value) {
		return true
	}
	_, _, ok := ParseCoordinates(value)
	return ok
}
