package core

import (
	"strings"

	"github.com/samber/lo"
)

type PaymentService string

const (
	PaymentServiceSingle   PaymentService = "payments"
	PaymentServicePeriodic PaymentService = "periodic-payments"
	PaymentServiceBulk     PaymentService = "bulk-payments"
)

func (s PaymentService) Valid() bool {
	return lo.Contains([]PaymentService{PaymentServiceSingle, PaymentServicePeriodic, PaymentServiceBulk}, s)
}

const (
	PaymentProductRON           = "ron-payment"
	PaymentProductOtherCurrency = "other-currency-payment"
)

type Currency string

const (
	CurrencyRON Currency = "RON"
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
)

type TransactionStatus string

const (
	StatusReceived                    TransactionStatus = "RCVD"
	StatusAcceptedTechnicalValidation TransactionStatus = "ACTC"
	StatusAcceptedCustomerProfile     TransactionStatus = "ACCP"
	StatusAcceptedWithChange          TransactionStatus = "ACWC"
	StatusAcceptedFundsChecked        TransactionStatus = "ACFC"
	StatusAcceptedSettlementCompleted TransactionStatus = "ACSC"
	StatusRejected                    TransactionStatus = "RJCT"
	StatusPending                     TransactionStatus = "PDNG"
	StatusCancelled                   TransactionStatus = "CANC"
)

var terminalStatuses = []TransactionStatus{
	StatusAcceptedSettlementCompleted,
	StatusRejected,
	StatusCancelled,
}

var statusDescriptions = map[TransactionStatus]string{
	StatusReceived:                    "Received",
	StatusAcceptedTechnicalValidation: "Accepted technical validation",
	StatusAcceptedCustomerProfile:     "Accepted customer profile",
	StatusAcceptedWithChange:          "Accepted with change",
	StatusAcceptedFundsChecked:        "Accepted funds checked",
	StatusAcceptedSettlementCompleted: "Accepted settlement completed",
	StatusRejected:                    "Rejected",
	StatusPending:                     "Pending",
	StatusCancelled:                   "Cancelled",
}

// IsTerminal reports whether no further transition is expected after s.
func (s TransactionStatus) IsTerminal() bool {
	return lo.Contains(terminalStatuses, s.normalized())
}

func (s TransactionStatus) Known() bool {
	_, ok := statusDescriptions[s.normalized()]
	return ok
}

func (s TransactionStatus) Description() string {
	if description, ok := statusDescriptions[s.normalized()]; ok {
		return description
	}
	return "Unknown"
}

func (s TransactionStatus) normalized() TransactionStatus {
	return TransactionStatus(strings.ToUpper(strings.TrimSpace(string(s))))
}

func TerminalStatuses() []TransactionStatus {
	return append([]TransactionStatus(nil), terminalStatuses...)
}

type Account struct {
	IBAN string `json:"iban" validate:"required,alphanum,min=15,max=34"`
}

type Amount struct {
	Currency Currency `json:"currency" validate:"required,oneof=RON EUR USD GBP"`
	Amount   string   `json:"amount" validate:"required,numeric"`
}

type Address struct {
	Country        string `json:"country" validate:"required,iso3166_1_alpha2"`
	City           string `json:"city,omitempty"`
	Street         string `json:"street,omitempty"`
	BuildingNumber string `json:"buildingNumber,omitempty"`
}

// RonPayment is the body for the ron-payment product.
type RonPayment struct {
	DebtorAccount                     *Account `json:"debtorAccount,omitempty" validate:"omitempty"`
	InstructedAmount                  Amount   `json:"instructedAmount" validate:"required"`
	CreditorAccount                   Account  `json:"creditorAccount" validate:"required"`
	CreditorName                      string   `json:"creditorName" validate:"required,max=70"`
	DebtorID                          string   `json:"debtorId,omitempty"`
	EndToEndIdentification            string   `json:"endToEndIdentification,omitempty" validate:"max=35"`
	RemittanceInformationUnstructured string   `json:"remittanceInformationUnstructured,omitempty" validate:"max=140"`
}

// OtherCurrencyPayment is the body for the other-currency-payment product.
type OtherCurrencyPayment struct {
	DebtorAccount                     *Account `json:"debtorAccount,omitempty" validate:"omitempty"`
	InstructedAmount                  Amount   `json:"instructedAmount" validate:"required"`
	CreditorAccount                   Account  `json:"creditorAccount" validate:"required"`
	CreditorAgent                     string   `json:"creditorAgent" validate:"required,bic"`
	CreditorAgentName                 string   `json:"creditorAgentName" validate:"required"`
	CreditorName                      string   `json:"creditorName" validate:"required,max=70"`
	CreditorAddress                   Address  `json:"creditorAddress" validate:"required"`
	EndToEndIdentification            string   `json:"endToEndIdentification,omitempty" validate:"max=35"`
	RemittanceInformationUnstructured string   `json:"remittanceInformationUnstructured,omitempty" validate:"max=140"`
}

type BulkPayment struct {
	InstructedAmount                  Amount  `json:"instructedAmount" validate:"required"`
	CreditorAccount                   Account `json:"creditorAccount" validate:"required"`
	CreditorName                      string  `json:"creditorName" validate:"required,max=70"`
	DebtorID                          string  `json:"debtorId,omitempty"`
	EndToEndIdentification            string  `json:"endToEndIdentification,omitempty" validate:"max=35"`
	RemittanceInformationUnstructured string  `json:"remittanceInformationUnstructured,omitempty" validate:"max=140"`
}

type BulkRonPayment struct {
	DebtorAccount *Account      `json:"debtorAccount,omitempty" validate:"omitempty"`
	Payments      []BulkPayment `json:"payments" validate:"required,min=1,dive"`
}

type BulkConfirmation struct {
	PaymentBulkID string `json:"paymentBulkId"`
}

// PaymentBody is one of RonPayment, OtherCurrencyPayment or BulkRonPayment
// (or pointers to them).
type PaymentBody any

type PaymentRequest struct {
	Service        PaymentService
	Product        string
	Payment        PaymentBody
	RequestID      string
	PSUIPAddress   string
	PSUGeoLocation string
}

type TPPMessage struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Text     string `json:"text"`
}

type Link struct {
	Href string `json:"href"`
}

type PaymentInitiationResult struct {
	PaymentID         string          `json:"paymentId"`
	TransactionStatus string          `json:"transactionStatus"`
	PSUMessage        string          `json:"psuMessage,omitempty"`
	TPPMessages       []TPPMessage    `json:"tppMessages,omitempty"`
	Links             map[string]Link `json:"_links,omitempty"`
}

func (r PaymentInitiationResult) Status() TransactionStatus {
	return TransactionStatus(r.TransactionStatus)
}

type PaymentStatus struct {
	TransactionStatus TransactionStatus `json:"transactionStatus"`
}

// PaymentDetails is the decoded body of a details or confirmation response.
type PaymentDetails map[string]any

// PaymentLookup addresses an existing payment. Empty Service and Product
// default to single ron-payment.
type PaymentLookup struct {
	PaymentID string
	Service   PaymentService
	Product   string
}

func (l PaymentLookup) normalized() PaymentLookup {
	out := PaymentLookup{
		PaymentID: strings.TrimSpace(l.PaymentID),
		Service:   PaymentService(strings.TrimSpace(string(l.Service))),
		Product:   strings.TrimSpace(l.Product),
	}
	if out.Service == "" {
		out.Service = PaymentServiceSingle
	}
	if out.Product == "" {
		out.Product = PaymentProductRON
	}
	return out
}

func (l PaymentLookup) WithDefaults() PaymentLookup {
	return l.normalized()
}
