package core

import (
	"errors"
	"fmt"
	"net"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	payloadValidatorOnce sync.Once
	payloadValidator     *validator.Validate
)

func paymentValidator() *validator.Validate {
	payloadValidatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		payloadValidator = v
	})
	return payloadValidator
}

// ValidatePaymentRequest checks a payment request locally before it is sent.
// Failures are returned as a KindValidation error keyed by JSON field path.
func ValidatePaymentRequest(req PaymentRequest) error {
	fields := map[string][]string{}
	add := func(field, message string) {
		fields[field] = append(fields[field], message)
	}

	if !req.Service.Valid() {
		add("service", fmt.Sprintf("must be one of %s, %s, %s",
			PaymentServiceSingle, PaymentServicePeriodic, PaymentServiceBulk))
	}
	if strings.TrimSpace(req.Product) == "" {
		add("product", "is required")
	}
	if ip := strings.TrimSpace(req.PSUIPAddress); ip != "" && net.ParseIP(ip) == nil {
		add("psuIpAddress", "must be a valid IP address")
	}
	if req.Payment == nil {
		add("payment", "is required")
	} else {
		for field, messages := range validatePaymentBody(req.Payment) {
			fields[field] = append(fields[field], messages...)
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return NewValidationError("create_payment", fields)
}

func validatePaymentBody(body PaymentBody) map[string][]string {
	fields := map[string][]string{}
	value := reflect.ValueOf(body)
	for value.Kind() == reflect.Pointer {
		if value.IsNil() {
			fields["payment"] = append(fields["payment"], "is required")
			return fields
		}
		value = value.Elem()
	}
	// Raw map bodies are sent as-is.
	if value.Kind() != reflect.Struct {
		return fields
	}

	if err := paymentValidator().Struct(value.Interface()); err != nil {
		var validationErrs validator.ValidationErrors
		if !errors.As(err, &validationErrs) {
			fields["payment"] = append(fields["payment"], err.Error())
			return fields
		}
		for _, fieldErr := range validationErrs {
			path := fieldPath(fieldErr.Namespace())
			fields[path] = append(fields[path], validationMessage(fieldErr))
		}
	}

	for path, amount := range paymentAmounts(value.Interface()) {
		if _, failed := fields[path]; failed {
			continue
		}
		parsed, err := decimal.NewFromString(strings.TrimSpace(amount))
		if err != nil {
			fields[path] = append(fields[path], "must be a decimal number")
			continue
		}
		if !parsed.IsPositive() {
			fields[path] = append(fields[path], "must be greater than zero")
		}
	}
	return fields
}

func paymentAmounts(body any) map[string]string {
	switch payment := body.(type) {
	case RonPayment:
		return map[string]string{"instructedAmount.amount": payment.InstructedAmount.Amount}
	case OtherCurrencyPayment:
		return map[string]string{"instructedAmount.amount": payment.InstructedAmount.Amount}
	case BulkRonPayment:
		out := make(map[string]string, len(payment.Payments))
		for i, entry := range payment.Payments {
			out[fmt.Sprintf("payments[%d].instructedAmount.amount", i)] = entry.InstructedAmount.Amount
		}
		return out
	default:
		return nil
	}
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

func validationMessage(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return "is required"
	case "min":
		if fieldErr.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s item(s)", fieldErr.Param())
		}
		return fmt.Sprintf("must be at least %s characters", fieldErr.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fieldErr.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", fieldErr.Param())
	case "numeric":
		return "must be numeric"
	case "alphanum":
		return "must be alphanumeric"
	case "bic":
		return "must be a valid BIC"
	case "iso3166_1_alpha2":
		return "must be an ISO 3166-1 alpha-2 country code"
	default:
		return fmt.Sprintf("failed %q validation", fieldErr.Tag())
	}
}
