package command

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/goliatone/go-btpay/core"
	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
)

type stubPaymentService struct {
	authenticateFn func(ctx context.Context) (bool, error)
	createFn       func(ctx context.Context, req core.PaymentRequest) (core.PaymentInitiationResult, error)
	confirmFn      func(ctx context.Context, bulkPaymentID string, product string) (core.PaymentDetails, error)
}

func (s stubPaymentService) Authenticate(ctx context.Context) (bool, error) {
	return s.authenticateFn(ctx)
}

func (s stubPaymentService) CreatePayment(ctx context.Context, req core.PaymentRequest) (core.PaymentInitiationResult, error) {
	return s.createFn(ctx, req)
}

func (s stubPaymentService) ConfirmBulkPayment(ctx context.Context, bulkPaymentID string, product string) (core.PaymentDetails, error) {
	return s.confirmFn(ctx, bulkPaymentID, product)
}

func validPaymentRequest() core.PaymentRequest {
	return core.PaymentRequest{
		Service: core.PaymentServiceSingle,
		Product: core.PaymentProductRON,
		Payment: core.RonPayment{
			InstructedAmount: core.Amount{Currency: core.CurrencyRON, Amount: "10.00"},
			CreditorAccount:  core.Account{IBAN: "RO49AAAA1B31007593840000"},
			CreditorName:     "Creditor",
		},
	}
}

func TestCreatePaymentCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.PaymentInitiationResult{PaymentID: "p1", TransactionStatus: "RCVD"}
	svc := stubPaymentService{
		createFn: func(_ context.Context, req core.PaymentRequest) (core.PaymentInitiationResult, error) {
			if req.Product != core.PaymentProductRON {
				t.Fatalf("unexpected product %q", req.Product)
			}
			return expected, nil
		},
	}

	collector := gocmd.NewResult[core.PaymentInitiationResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := NewCreatePaymentCommand(svc).Execute(ctx, CreatePaymentMessage{Request: validPaymentRequest()}); err != nil {
		t.Fatalf("execute create payment: %v", err)
	}
	result, ok := collector.Load()
	if !ok || result.PaymentID != "p1" {
		t.Fatalf("expected stored result, got %#v", result)
	}
}

func TestCreatePaymentCommand_MapsSDKErrorsToEnvelope(t *testing.T) {
	svc := stubPaymentService{
		createFn: func(context.Context, core.PaymentRequest) (core.PaymentInitiationResult, error) {
			return core.PaymentInitiationResult{}, core.NewAPIError("create_payment", "API error: 404", http.StatusNotFound, nil)
		},
	}
	err := NewCreatePaymentCommand(svc).Execute(context.Background(), CreatePaymentMessage{Request: validPaymentRequest()})

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Code != http.StatusNotFound || rich.TextCode != core.TextCodeAPIError {
		t.Fatalf("unexpected envelope %d %q", rich.Code, rich.TextCode)
	}
}

func TestAuthenticateCommand_StoresOutcome(t *testing.T) {
	t.Run("token obtained", func(t *testing.T) {
		svc := stubPaymentService{authenticateFn: func(context.Context) (bool, error) { return true, nil }}
		collector := gocmd.NewResult[bool]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewAuthenticateCommand(svc).Execute(ctx, AuthenticateMessage{}); err != nil {
			t.Fatalf("execute authenticate: %v", err)
		}
		if ok, stored := collector.Load(); !stored || !ok {
			t.Fatalf("expected stored true outcome")
		}
	})

	t.Run("no token", func(t *testing.T) {
		svc := stubPaymentService{authenticateFn: func(context.Context) (bool, error) { return false, nil }}
		err := NewAuthenticateCommand(svc).Execute(context.Background(), AuthenticateMessage{})
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryAuth {
			t.Fatalf("expected auth envelope, got %v", err)
		}
	})

	t.Run("untyped failure passes through", func(t *testing.T) {
		boom := errors.New("boom")
		svc := stubPaymentService{authenticateFn: func(context.Context) (bool, error) { return false, boom }}
		if err := NewAuthenticateCommand(svc).Execute(context.Background(), AuthenticateMessage{}); !errors.Is(err, boom) {
			t.Fatalf("expected original error, got %v", err)
		}
	})
}

func TestConfirmBulkPaymentCommand_Delegates(t *testing.T) {
	svc := stubPaymentService{
		confirmFn: func(_ context.Context, bulkPaymentID string, product string) (core.PaymentDetails, error) {
			if bulkPaymentID != "b1" || product != "" {
				t.Fatalf("unexpected confirm payload %q %q", bulkPaymentID, product)
			}
			return core.PaymentDetails{"transactionStatus": "ACTC"}, nil
		},
	}
	collector := gocmd.NewResult[core.PaymentDetails]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := NewConfirmBulkPaymentCommand(svc).Execute(ctx, ConfirmBulkPaymentMessage{BulkPaymentID: "b1"}); err != nil {
		t.Fatalf("execute confirm: %v", err)
	}
	if details, ok := collector.Load(); !ok || details["transactionStatus"] != "ACTC" {
		t.Fatalf("unexpected stored details %#v", details)
	}
}

func TestMessages_ValidateReturnsRichErrors(t *testing.T) {
	req := validPaymentRequest()
	req.Payment = core.RonPayment{
		InstructedAmount: core.Amount{Currency: core.CurrencyRON, Amount: "-1"},
		CreditorAccount:  core.Account{IBAN: "RO49AAAA1B31007593840000"},
		CreditorName:     "Creditor",
	}
	for name, err := range map[string]error{
		"create":  CreatePaymentMessage{Request: req}.Validate(),
		"confirm": ConfirmBulkPaymentMessage{}.Validate(),
	} {
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			t.Fatalf("%s: expected go-errors envelope, got %T", name, err)
		}
		if rich.Category != goerrors.CategoryValidation || rich.TextCode != core.TextCodeValidationFailed {
			t.Fatalf("%s: unexpected envelope %q %q", name, rich.Category, rich.TextCode)
		}
	}
	if err := (CreatePaymentMessage{Request: validPaymentRequest()}).Validate(); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
}

func TestCommands_NilServiceReturnsRichError(t *testing.T) {
	var cmd *CreatePaymentCommand
	err := cmd.Execute(context.Background(), CreatePaymentMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal envelope, got %v", err)
	}
}
