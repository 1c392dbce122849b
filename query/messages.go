package query

import (
	"strings"

	"github.com/goliatone/go-btpay/core"
)

const (
	TypeGetPaymentStatus  = "btpay.query.payment.status"
	TypeGetPaymentDetails = "btpay.query.payment.details"
)

// GetPaymentStatusMessage looks up a payment's status. Empty service and
// product default to payments and ron-payment.
type GetPaymentStatusMessage struct {
	Lookup core.PaymentLookup
}

func (GetPaymentStatusMessage) Type() string { return TypeGetPaymentStatus }

func (m GetPaymentStatusMessage) Validate() error {
	return validateLookup(m.Lookup)
}

type GetPaymentDetailsMessage struct {
	Lookup core.PaymentLookup
}

func (GetPaymentDetailsMessage) Type() string { return TypeGetPaymentDetails }

func (m GetPaymentDetailsMessage) Validate() error {
	return validateLookup(m.Lookup)
}

func validateLookup(lookup core.PaymentLookup) error {
	if strings.TrimSpace(lookup.PaymentID) == "" {
		return queryValidationError("paymentId", "is required")
	}
	if lookup.Service != "" && !lookup.Service.Valid() {
		return queryValidationError("paymentService", "must be payments, periodic-payments or bulk-payments")
	}
	return nil
}
