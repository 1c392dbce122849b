package btpay

import (
	"fmt"

	"github.com/goliatone/go-btpay/adapters/gocommand"
	btpaycommand "github.com/goliatone/go-btpay/command"
	"github.com/goliatone/go-btpay/core"
	btpayquery "github.com/goliatone/go-btpay/query"
)

type CommandQueryService interface {
	btpaycommand.Authenticator
	btpaycommand.PaymentInitiator
	btpaycommand.BulkPaymentConfirmer
	btpayquery.PaymentStatusReader
	btpayquery.PaymentDetailsReader
}

type Commands struct {
	Authenticate       *btpaycommand.AuthenticateCommand
	CreatePayment      *btpaycommand.CreatePaymentCommand
	ConfirmBulkPayment *btpaycommand.ConfirmBulkPaymentCommand
}

type Queries struct {
	GetPaymentStatus  *btpayquery.GetPaymentStatusQuery
	GetPaymentDetails *btpayquery.GetPaymentDetailsQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("btpay: command/query service is required")
	}
	return &Facade{
		service: service,
		commands: Commands{
			Authenticate:       btpaycommand.NewAuthenticateCommand(service),
			CreatePayment:      btpaycommand.NewCreatePaymentCommand(service),
			ConfirmBulkPayment: btpaycommand.NewConfirmBulkPaymentCommand(service),
		},
		queries: Queries{
			GetPaymentStatus:  btpayquery.NewGetPaymentStatusQuery(service),
			GetPaymentDetails: btpayquery.NewGetPaymentDetailsQuery(service),
		},
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// Register subscribes every handler with the go-command dispatcher and
// records them in the registry. On failure the handlers already subscribed
// are released.
func (f *Facade) Register(adapter *gocommand.RegistryAdapter) (gocommand.Subscriptions, error) {
	if f == nil {
		return nil, fmt.Errorf("btpay: facade is required")
	}
	subscriptions := gocommand.Subscriptions{}
	err := subscriptions.Add(gocommand.RegisterAndSubscribe[btpaycommand.AuthenticateMessage](adapter, f.commands.Authenticate))
	if err == nil {
		err = subscriptions.Add(gocommand.RegisterAndSubscribe[btpaycommand.CreatePaymentMessage](adapter, f.commands.CreatePayment))
	}
	if err == nil {
		err = subscriptions.Add(gocommand.RegisterAndSubscribe[btpaycommand.ConfirmBulkPaymentMessage](adapter, f.commands.ConfirmBulkPayment))
	}
	if err == nil {
		err = subscriptions.Add(gocommand.RegisterAndSubscribeQuery[btpayquery.GetPaymentStatusMessage, core.PaymentStatus](adapter, f.queries.GetPaymentStatus))
	}
	if err == nil {
		err = subscriptions.Add(gocommand.RegisterAndSubscribeQuery[btpayquery.GetPaymentDetailsMessage, core.PaymentDetails](adapter, f.queries.GetPaymentDetails))
	}
	if err != nil {
		subscriptions.Unsubscribe()
		return nil, err
	}
	return subscriptions, nil
}
