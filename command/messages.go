package command

import (
	"strings"

	"github.com/goliatone/go-btpay/core"
)

const (
	TypeAuthenticate       = "btpay.command.authenticate"
	TypeCreatePayment      = "btpay.command.payment.create"
	TypeConfirmBulkPayment = "btpay.command.bulk_payment.confirm"
)

type AuthenticateMessage struct{}

func (AuthenticateMessage) Type() string { return TypeAuthenticate }

func (AuthenticateMessage) Validate() error { return nil }

type CreatePaymentMessage struct {
	Request core.PaymentRequest
}

func (CreatePaymentMessage) Type() string { return TypeCreatePayment }

// Validate runs the same local checks CreatePayment performs before any
// network call.
func (m CreatePaymentMessage) Validate() error {
	if err := core.ValidatePaymentRequest(m.Request); err != nil {
		return commandWrapValidation(err, "command: invalid payment request")
	}
	return nil
}

type ConfirmBulkPaymentMessage struct {
	BulkPaymentID string
	Product       string
}

func (ConfirmBulkPaymentMessage) Type() string { return TypeConfirmBulkPayment }

func (m ConfirmBulkPaymentMessage) Validate() error {
	if strings.TrimSpace(m.BulkPaymentID) == "" {
		return commandValidationError("paymentBulkId", "is required")
	}
	return nil
}
