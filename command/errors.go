package command

import (
	"net/http"

	"github.com/goliatone/go-btpay/core"
	goerrors "github.com/goliatone/go-errors"
)

func commandDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.TextCodeInternal)
}

func commandValidationError(field string, message string) error {
	return goerrors.NewValidation("command: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.TextCodeValidationFailed).
		WithSeverity(goerrors.SeverityError)
}

// commandWrapValidation keeps the field envelope of a local validation
// failure and wraps anything else.
func commandWrapValidation(err error, message string) error {
	if err == nil {
		return nil
	}
	if typed, ok := core.AsError(err); ok {
		return typed.ToServiceError()
	}
	return goerrors.Wrap(err, goerrors.CategoryValidation, message).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.TextCodeValidationFailed)
}

// serviceError maps SDK failures onto go-errors envelopes for dispatchers.
func serviceError(err error) error {
	if err == nil {
		return nil
	}
	if typed, ok := core.AsError(err); ok {
		return typed.ToServiceError()
	}
	return err
}
