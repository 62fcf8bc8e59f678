package types

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// category values contain spaces, so oneof is not usable here
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return ValidCategory(fl.Field().String())
	})
	return v
}

// ValidationError is reported when request input fails validation, before any
// store interaction takes place.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// CreateReport is the request body of POST /api/reports.
type CreateReport struct {
	GrowId    string `json:"growId" validate:"required"`
	Category  string `json:"category" validate:"required,category"`
	Complaint string `json:"complaint" validate:"required"`
}

func (r *CreateReport) Validate() error {
	return firstValidationError(validate.Struct(r))
}

// RespondReport is the request body of POST /api/reports/{id}/respond.
type RespondReport struct {
	Message string `json:"message" validate:"required"`
}

func (r *RespondReport) Validate() error {
	return firstValidationError(validate.Struct(r))
}

func firstValidationError(err error) error {
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return err
	}
	fe := errs[0]
	field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
	reason := "is invalid"
	if fe.Tag() == "required" {
		reason = "is required"
	}
	return &ValidationError{Field: field, Reason: reason}
}
