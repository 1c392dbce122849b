package command

import (
	"context"

	"github.com/goliatone/go-btpay/core"
	gocmd "github.com/goliatone/go-command"
)

type Authenticator interface {
	Authenticate(ctx context.Context) (bool, error)
}

type PaymentInitiator interface {
	CreatePayment(ctx context.Context, req core.PaymentRequest) (core.PaymentInitiationResult, error)
}

type BulkPaymentConfirmer interface {
	ConfirmBulkPayment(ctx context.Context, bulkPaymentID string, product string) (core.PaymentDetails, error)
}

type AuthenticateCommand struct {
	service Authenticator
}

func NewAuthenticateCommand(service Authenticator) *AuthenticateCommand {
	return &AuthenticateCommand{service: service}
}

// Execute stores whether a token was obtained. A token endpoint that answers
// without a token is reported as an authentication error.
func (c *AuthenticateCommand) Execute(ctx context.Context, _ AuthenticateMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authenticator is required")
	}
	ok, err := c.service.Authenticate(ctx)
	if err != nil {
		return serviceError(err)
	}
	storeResult(ctx, ok)
	if !ok {
		return serviceError(core.NewAuthenticationError("authenticate", "authentication returned no access token", 0, nil, nil))
	}
	return nil
}

type CreatePaymentCommand struct {
	service PaymentInitiator
}

func NewCreatePaymentCommand(service PaymentInitiator) *CreatePaymentCommand {
	return &CreatePaymentCommand{service: service}
}

func (c *CreatePaymentCommand) Execute(ctx context.Context, msg CreatePaymentMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: payment service is required")
	}
	out, err := c.service.CreatePayment(ctx, msg.Request)
	if err != nil {
		return serviceError(err)
	}
	storeResult(ctx, out)
	return nil
}

type ConfirmBulkPaymentCommand struct {
	service BulkPaymentConfirmer
}

func NewConfirmBulkPaymentCommand(service BulkPaymentConfirmer) *ConfirmBulkPaymentCommand {
	return &ConfirmBulkPaymentCommand{service: service}
}

func (c *ConfirmBulkPaymentCommand) Execute(ctx context.Context, msg ConfirmBulkPaymentMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: bulk payment service is required")
	}
	out, err := c.service.ConfirmBulkPayment(ctx, msg.BulkPaymentID, msg.Product)
	if err != nil {
		return serviceError(err)
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
