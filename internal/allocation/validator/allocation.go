package validator

import (
	"errors"
	"fmt"
	"strings"

	"concierge/pkg/logger"
	"concierge/pkg/model"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// Details flattens the errors for an AppError's details map.
func (v ValidationErrors) Details() map[string]any {
	details := make(map[string]any, len(v))
	for _, err := range v {
		details[err.Field] = err.Message
	}
	return details
}

type AllocationValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewAllocationValidator(log *logger.Logger) *AllocationValidator {
	v := validator.New()

	if err := v.RegisterValidation("request_status", validateRequestStatus); err != nil {
		log.Fatal("Failed to register 'request_status' validator", "error", err)
	}

	return &AllocationValidator{
		validate: v,
		logger:   log,
	}
}

func validateRequestStatus(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case model.RequestPending, model.RequestAccepted, model.RequestRefused,
		model.RequestSuperseded, model.RequestExpired:
		return true
	}
	return false
}

func (v *AllocationValidator) ValidateAccept(in *model.AcceptInput) error {
	return v.check(in)
}

func (v *AllocationValidator) ValidateRefuse(in *model.RefuseInput) error {
	return v.check(in)
}

func (v *AllocationValidator) ValidateQuery(q *model.RequestQuery) error {
	return v.check(q)
}

func (v *AllocationValidator) ValidateBroadcast(in *model.BroadcastInput) error {
	if err := v.check(in); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(in.EstablishmentIDs))
	for _, id := range in.EstablishmentIDs {
		if _, dup := seen[id]; dup {
			return ValidationErrors{{
				Field:   "EstablishmentIDs",
				Message: fmt.Sprintf("establishment %q is listed more than once", id),
			}}
		}
		seen[id] = struct{}{}
	}
	return nil
}

func (v *AllocationValidator) check(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *AllocationValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "gte":
			message = fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
		case "lte":
			message = fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "request_status":
			message = fmt.Sprintf("%s is not a known request status", err.Field())
		case "uuid":
			message = fmt.Sprintf("%s must be a valid UUID", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
