package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

type ErrorKind string

const (
	KindAPI               ErrorKind = "api"
	KindAuthentication    ErrorKind = "authentication"
	KindNetwork           ErrorKind = "network"
	KindValidation        ErrorKind = "validation"
	KindPaymentInitiation ErrorKind = "payment_initiation"
)

const (
	TextCodeAPIError                = "BTPAY_API_ERROR"
	TextCodeAuthenticationFailed    = "BTPAY_AUTHENTICATION_FAILED"
	TextCodeNetworkError            = "BTPAY_NETWORK_ERROR"
	TextCodeValidationFailed        = "BTPAY_VALIDATION_FAILED"
	TextCodePaymentInitiationFailed = "BTPAY_PAYMENT_INITIATION_FAILED"
	TextCodeInternal                = "BTPAY_INTERNAL_ERROR"
)

// Error is the single failure type surfaced by the client. Kind is fixed at
// construction and never reclassified; Status is 0 when no HTTP response was
// involved.
type Error struct {
	Kind      ErrorKind
	Status    int
	Message   string
	Operation string
	Payload   any
	Fields    map[string][]string
	cause     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("btpay: ")
	if e.Operation != "" {
		b.WriteString(e.Operation)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Status > 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// IsAPIKind reports whether the error belongs to the API family
// (generic API, authentication, payment initiation).
func (e *Error) IsAPIKind() bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case KindAPI, KindAuthentication, KindPaymentInitiation:
		return true
	default:
		return false
	}
}

func (e *Error) TextCode() string {
	if e == nil {
		return TextCodeInternal
	}
	switch e.Kind {
	case KindAPI:
		return TextCodeAPIError
	case KindAuthentication:
		return TextCodeAuthenticationFailed
	case KindNetwork:
		return TextCodeNetworkError
	case KindValidation:
		return TextCodeValidationFailed
	case KindPaymentInitiation:
		return TextCodePaymentInitiationFailed
	default:
		return TextCodeInternal
	}
}

// ToServiceError maps the error into a go-errors envelope for command and
// query consumers.
func (e *Error) ToServiceError() *goerrors.Error {
	if e == nil {
		return nil
	}
	metadata := map[string]any{"kind": string(e.Kind)}
	if e.Operation != "" {
		metadata["operation"] = e.Operation
	}
	if e.Payload != nil {
		metadata["payload"] = e.Payload
	}

	if e.Kind == KindValidation {
		fields := make([]goerrors.FieldError, 0, len(e.Fields))
		for _, field := range sortedKeys(e.Fields) {
			for _, message := range e.Fields[field] {
				fields = append(fields, goerrors.FieldError{Field: field, Message: message})
			}
		}
		return goerrors.NewValidation(e.Message, fields...).
			WithCode(http.StatusBadRequest).
			WithTextCode(e.TextCode()).
			WithMetadata(metadata)
	}

	code := e.Status
	if code == 0 {
		code = defaultStatusForKind(e.Kind)
	}
	var rich *goerrors.Error
	if e.cause != nil {
		rich = goerrors.Wrap(e.cause, e.category(), e.Message)
	} else {
		rich = goerrors.New(e.Message, e.category())
	}
	return rich.
		WithCode(code).
		WithTextCode(e.TextCode()).
		WithMetadata(metadata)
}

func (e *Error) category() goerrors.Category {
	switch e.Kind {
	case KindAuthentication:
		return goerrors.CategoryAuth
	case KindValidation:
		return goerrors.CategoryValidation
	case KindNetwork:
		return goerrors.CategoryExternal
	case KindPaymentInitiation:
		return goerrors.CategoryOperation
	}
	switch {
	case e.Status == 0:
		return goerrors.CategoryInternal
	case e.Status == http.StatusForbidden:
		return goerrors.CategoryAuthz
	case e.Status == http.StatusNotFound:
		return goerrors.CategoryNotFound
	case e.Status == http.StatusConflict:
		return goerrors.CategoryConflict
	case e.Status == http.StatusTooManyRequests:
		return goerrors.CategoryRateLimit
	case e.Status >= 400 && e.Status < 500:
		return goerrors.CategoryBadInput
	default:
		return goerrors.CategoryExternal
	}
}

func defaultStatusForKind(kind ErrorKind) int {
	switch kind {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	case KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func NewAPIError(operation string, message string, status int, payload any) *Error {
	return &Error{Kind: KindAPI, Operation: operation, Message: message, Status: status, Payload: payload}
}

func NewAuthenticationError(operation string, message string, status int, payload any, cause error) *Error {
	if status == 0 {
		status = http.StatusUnauthorized
	}
	return &Error{
		Kind:      KindAuthentication,
		Operation: operation,
		Message:   message,
		Status:    status,
		Payload:   payload,
		cause:     cause,
	}
}

func NewNetworkError(operation string, cause error) *Error {
	return &Error{
		Kind:      KindNetwork,
		Operation: operation,
		Message:   "no response received",
		cause:     cause,
	}
}

// NewRequestError reports a request that could not be built or sent.
func NewRequestError(operation string, cause error) *Error {
	message := "request error"
	var payload any
	if cause != nil {
		payload = cause.Error()
	}
	return &Error{
		Kind:      KindAPI,
		Operation: operation,
		Message:   message,
		Payload:   payload,
		cause:     cause,
	}
}

func NewValidationError(operation string, fields map[string][]string) *Error {
	copied := make(map[string][]string, len(fields))
	for key, messages := range fields {
		copied[key] = append([]string(nil), messages...)
	}
	return &Error{
		Kind:      KindValidation,
		Operation: operation,
		Message:   "validation failed",
		Fields:    copied,
	}
}

// ClassifyResponse turns a non-2xx response into a typed error.
func ClassifyResponse(operation string, status int, body []byte) *Error {
	payload := decodePayload(body)
	if status == http.StatusUnauthorized {
		return NewAuthenticationError(operation, "API error: 401", status, payload, nil)
	}
	return NewAPIError(operation, fmt.Sprintf("API error: %d", status), status, payload)
}

// WrapOperationError keeps typed errors untouched and wraps anything else
// into the given kind with status 0.
func WrapOperationError(err error, operation string, kind ErrorKind, message string) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	var payload any = err.Error()
	return &Error{
		Kind:      kind,
		Operation: operation,
		Message:   message,
		Payload:   payload,
		cause:     err,
	}
}

func AsError(err error) (*Error, bool) {
	var typed *Error
	if errors.As(err, &typed) && typed != nil {
		return typed, true
	}
	return nil, false
}

// KindOf returns the error kind, or an empty kind for untyped errors.
func KindOf(err error) ErrorKind {
	if typed, ok := AsError(err); ok {
		return typed.Kind
	}
	return ""
}

func StatusOf(err error) int {
	if typed, ok := AsError(err); ok {
		return typed.Status
	}
	return 0
}

func IsAuthentication(err error) bool { return KindOf(err) == KindAuthentication }

func IsNetwork(err error) bool { return KindOf(err) == KindNetwork }

func IsValidation(err error) bool { return KindOf(err) == KindValidation }

func IsPaymentInitiation(err error) bool { return KindOf(err) == KindPaymentInitiation }

// IsAPI reports membership in the API family, subtypes included.
func IsAPI(err error) bool {
	typed, ok := AsError(err)
	return ok && typed.IsAPIKind()
}

type ErrorDetails struct {
	Message     string
	Code        string
	Recoverable bool
}

// Describe summarises an error for presentation. API errors with a 4xx
// status other than 401 and 403 are recoverable; Code is the first TPP
// message code found in the payload.
func Describe(err error) *ErrorDetails {
	if err == nil {
		return nil
	}
	details := &ErrorDetails{Message: err.Error()}
	typed, ok := AsError(err)
	if !ok || !typed.IsAPIKind() {
		return details
	}
	status := typed.Status
	details.Recoverable = status >= 400 && status < 500 &&
		status != http.StatusUnauthorized && status != http.StatusForbidden
	details.Code = firstTPPMessageCode(typed.Payload)
	return details
}

func firstTPPMessageCode(payload any) string {
	body, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	messages, ok := body["tppMessages"].([]any)
	if !ok || len(messages) == 0 {
		return ""
	}
	first, ok := messages[0].(map[string]any)
	if !ok {
		return ""
	}
	code, _ := first["code"].(string)
	return code
}

func decodePayload(body []byte) any {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil
	}
	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
		return decoded
	}
	return trimmed
}

func sortedKeys(values map[string][]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
