package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
)

// Validator validates request structs and sanitizes free text
type Validator struct {
	validator *validator.Validate
	sanitizer *bluemonday.Policy
}

// NewValidator creates a validator with the custom rules registered
func NewValidator() *Validator {
	v := &Validator{
		validator: validator.New(),
		sanitizer: bluemonday.StrictPolicy(),
	}
	v.registerCustomValidators()
	return v
}

// ValidationError represents a validation error with details
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", ve[0].Message)
}

// ValidateStruct validates a struct using struct tags
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validator.Struct(s)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	var validationErrs ValidationErrors
	for _, fe := range fieldErrs {
		validationErrs = append(validationErrs, ValidationError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: getErrorMessage(fe),
		})
	}
	return validationErrs
}

// Sanitize strips all markup from input, trims it and caps it at maxLen runes.
func (v *Validator) Sanitize(input string, maxLen int) string {
	if input == "" {
		return input
	}
	out := strings.TrimSpace(v.sanitizer.Sanitize(input))
	if maxLen > 0 && utf8.RuneCountInString(out) > maxLen {
		runes := []rune(out)
		out = strings.TrimSpace(string(runes[:maxLen]))
	}
	return out
}

var (
	networkRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{1,31}$`)
	assetRegex   = regexp.MustCompile(`^[A-Za-z0-9]{2,16}$`)
)

// registerCustomValidators registers custom validation rules
func (v *Validator) registerCustomValidators() {
	// positive decimal given as a string, e.g. "12.50"
	v.validator.RegisterValidation("decimal_positive", func(fl validator.FieldLevel) bool {
		value := strings.TrimSpace(fl.Field().String())
		if value == "" {
			return true
		}
		d, err := decimal.NewFromString(value)
		return err == nil && d.IsPositive()
	})

	v.validator.RegisterValidation("network", func(fl validator.FieldLevel) bool {
		return networkRegex.MatchString(fl.Field().String())
	})

	v.validator.RegisterValidation("asset", func(fl validator.FieldLevel) bool {
		return assetRegex.MatchString(fl.Field().String())
	})
}

// getErrorMessage returns a human-readable error message for validation errors
func getErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", fe.Field())
	case "decimal_positive":
		return fmt.Sprintf("%s must be a positive decimal", fe.Field())
	case "network":
		return fmt.Sprintf("%s must be a lowercase network name", fe.Field())
	case "asset":
		return fmt.Sprintf("%s must be an asset symbol", fe.Field())
	case "required_without", "excluded_with":
		return fmt.Sprintf("%s conflicts with or requires %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
