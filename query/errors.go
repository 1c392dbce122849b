package query

import (
	"net/http"

	"github.com/goliatone/go-btpay/core"
	goerrors "github.com/goliatone/go-errors"
)

func queryDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.TextCodeInternal)
}

func queryValidationError(field string, message string) error {
	return goerrors.NewValidation("query: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.TextCodeValidationFailed).
		WithSeverity(goerrors.SeverityError)
}

func serviceError(err error) error {
	if err == nil {
		return nil
	}
	if typed, ok := core.AsError(err); ok {
		return typed.ToServiceError()
	}
	return err
}
