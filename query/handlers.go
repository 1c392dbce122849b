package query

import (
	"context"

	"github.com/goliatone/go-btpay/core"
)

type PaymentStatusReader interface {
	GetPaymentStatus(ctx context.Context, lookup core.PaymentLookup) (core.PaymentStatus, error)
}

type PaymentDetailsReader interface {
	GetPaymentDetails(ctx context.Context, lookup core.PaymentLookup) (core.PaymentDetails, error)
}

type GetPaymentStatusQuery struct {
	reader PaymentStatusReader
}

func NewGetPaymentStatusQuery(reader PaymentStatusReader) *GetPaymentStatusQuery {
	return &GetPaymentStatusQuery{reader: reader}
}

func (q *GetPaymentStatusQuery) Query(ctx context.Context, msg GetPaymentStatusMessage) (core.PaymentStatus, error) {
	if q == nil || q.reader == nil {
		return core.PaymentStatus{}, queryDependencyError("query: payment status reader is required")
	}
	status, err := q.reader.GetPaymentStatus(ctx, msg.Lookup)
	if err != nil {
		return core.PaymentStatus{}, serviceError(err)
	}
	return status, nil
}

type GetPaymentDetailsQuery struct {
	reader PaymentDetailsReader
}

func NewGetPaymentDetailsQuery(reader PaymentDetailsReader) *GetPaymentDetailsQuery {
	return &GetPaymentDetailsQuery{reader: reader}
}

func (q *GetPaymentDetailsQuery) Query(ctx context.Context, msg GetPaymentDetailsMessage) (core.PaymentDetails, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: payment details reader is required")
	}
	details, err := q.reader.GetPaymentDetails(ctx, msg.Lookup)
	if err != nil {
		return nil, serviceError(err)
	}
	return details, nil
}
