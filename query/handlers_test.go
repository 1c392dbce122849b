package query

import (
	"context"
	"net/http"
	"testing"

	"github.com/goliatone/go-btpay/core"
	goerrors "github.com/goliatone/go-errors"
)

type stubReader struct {
	statusFn  func(ctx context.Context, lookup core.PaymentLookup) (core.PaymentStatus, error)
	detailsFn func(ctx context.Context, lookup core.PaymentLookup) (core.PaymentDetails, error)
}

func (s stubReader) GetPaymentStatus(ctx context.Context, lookup core.PaymentLookup) (core.PaymentStatus, error) {
	return s.statusFn(ctx, lookup)
}

func (s stubReader) GetPaymentDetails(ctx context.Context, lookup core.PaymentLookup) (core.PaymentDetails, error) {
	return s.detailsFn(ctx, lookup)
}

func TestGetPaymentStatusQuery_Delegates(t *testing.T) {
	reader := stubReader{
		statusFn: func(_ context.Context, lookup core.PaymentLookup) (core.PaymentStatus, error) {
			if lookup.PaymentID != "p1" {
				t.Fatalf("unexpected lookup %#v", lookup)
			}
			return core.PaymentStatus{TransactionStatus: core.StatusAcceptedSettlementCompleted}, nil
		},
	}
	status, err := NewGetPaymentStatusQuery(reader).Query(context.Background(), GetPaymentStatusMessage{
		Lookup: core.PaymentLookup{PaymentID: "p1"},
	})
	if err != nil {
		t.Fatalf("query status: %v", err)
	}
	if status.TransactionStatus != core.StatusAcceptedSettlementCompleted {
		t.Fatalf("unexpected status %q", status.TransactionStatus)
	}
}

func TestGetPaymentDetailsQuery_MapsSDKErrors(t *testing.T) {
	reader := stubReader{
		detailsFn: func(context.Context, core.PaymentLookup) (core.PaymentDetails, error) {
			return nil, core.NewAPIError("get_payment_details", "API error: 404", http.StatusNotFound, nil)
		},
	}
	_, err := NewGetPaymentDetailsQuery(reader).Query(context.Background(), GetPaymentDetailsMessage{
		Lookup: core.PaymentLookup{PaymentID: "missing"},
	})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Code != http.StatusNotFound || rich.Category != goerrors.CategoryNotFound {
		t.Fatalf("unexpected envelope %d %q", rich.Code, rich.Category)
	}
}

func TestMessages_ValidateLookup(t *testing.T) {
	cases := map[string]GetPaymentStatusMessage{
		"missing id":  {},
		"bad service": {Lookup: core.PaymentLookup{PaymentID: "p1", Service: "transfers"}},
	}
	for name, msg := range cases {
		var rich *goerrors.Error
		if err := msg.Validate(); !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryValidation {
			t.Fatalf("%s: expected validation envelope, got %v", name, err)
		}
	}
	if err := (GetPaymentDetailsMessage{Lookup: core.PaymentLookup{PaymentID: "p1"}}).Validate(); err != nil {
		t.Fatalf("expected valid lookup, got %v", err)
	}
}

func TestQueries_NilReaderReturnsRichError(t *testing.T) {
	var q *GetPaymentStatusQuery
	_, err := q.Query(context.Background(), GetPaymentStatusMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal envelope, got %v", err)
	}
}
