// Package validator provides struct validation utilities with custom validators.
package validator

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tp12121212/sit-builder/pkg/domain/scan"
)

// Validator wraps the go-playground validator with custom validations.
type Validator struct {
	validate *validator.Validate
}

// ValidationError represents a single field validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, e := range v {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return sb.String()
}

// New creates a new Validator with custom validators registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("scan_backend", validateScanBackend)
	_ = v.RegisterValidation("scan_status", validateScanStatus)
	_ = v.RegisterValidation("sit_category", validateCategory)

	return &Validator{validate: v}
}

// Validate validates a struct and returns ValidationErrors on failure.
func (v *Validator) Validate(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if stderrors.As(err, &invalid) {
		return fmt.Errorf("invalid validation target: %w", err)
	}

	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return err
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fieldName(fe),
			Message: messageFor(fe),
		})
	}
	return out
}

func fieldName(fe validator.FieldError) string {
	// Strip the struct name prefix: "AdmitRequest.Backend" -> "backend".
	parts := strings.Split(fe.Namespace(), ".")
	return strings.ToLower(parts[len(parts)-1])
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "scan_backend":
		return "must be one of: classic, bridged"
	case "scan_status":
		return "is not a valid scan status"
	case "sit_category":
		return "must be a fixed category or a non-empty custom label"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}

func validateScanBackend(fl validator.FieldLevel) bool {
	return scan.Backend(fl.Field().String()).IsValid()
}

func validateScanStatus(fl validator.FieldLevel) bool {
	return scan.Status(fl.Field().String()).IsValid()
}

func validateCategory(fl validator.FieldLevel) bool {
	_, err := scan.ResolveCategory(fl.Field().String())
	return err == nil
}
