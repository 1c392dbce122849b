package query

import (
	"github.com/goliatone/go-btpay/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[GetPaymentStatusMessage, core.PaymentStatus]   = (*GetPaymentStatusQuery)(nil)
	_ gocmd.Querier[GetPaymentDetailsMessage, core.PaymentDetails] = (*GetPaymentDetailsQuery)(nil)
)
