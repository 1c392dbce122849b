package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[AuthenticateMessage]       = (*AuthenticateCommand)(nil)
	_ gocmd.Commander[CreatePaymentMessage]      = (*CreatePaymentCommand)(nil)
	_ gocmd.Commander[ConfirmBulkPaymentMessage] = (*ConfirmBulkPaymentCommand)(nil)
)
