package core

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

const (
	HeaderRequestID      = "X-Request-ID"
	HeaderPSUIPAddress   = "PSU-IP-Address"
	HeaderPSUGeoLocation = "PSU-Geo-Location"
)

const (
	OperationCreatePayment      = "create_payment"
	OperationGetPaymentStatus   = "get_payment_status"
	OperationGetPaymentDetails  = "get_payment_details"
	OperationConfirmBulkPayment = "confirm_bulk_payment"
)

// CreatePayment submits a payment initiation. The caller's RequestID is sent
// verbatim; otherwise a fresh one is generated.
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (result PaymentInitiationResult, err error) {
	startedAt := c.clock.Now()
	fields := map[string]any{
		"payment_service": string(req.Service),
		"payment_product": strings.TrimSpace(req.Product),
	}
	defer func() {
		fields["payment_id"] = result.PaymentID
		c.observeOperation(ctx, startedAt, OperationCreatePayment, err, fields)
	}()

	if err := ValidatePaymentRequest(req); err != nil {
		return PaymentInitiationResult{}, err
	}

	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" {
		requestID = c.nextRequestID()
	}
	fields["request_id"] = requestID
	ipAddress := strings.TrimSpace(req.PSUIPAddress)
	if ipAddress == "" {
		ipAddress = c.psuIPAddress()
	}
	headers := map[string]string{
		HeaderRequestID:    requestID,
		HeaderPSUIPAddress: ipAddress,
	}
	if geo := strings.TrimSpace(req.PSUGeoLocation); geo != "" {
		headers[HeaderPSUGeoLocation] = geo
	}

	var out PaymentInitiationResult
	callErr := c.doJSON(ctx, TransportRequest{
		Operation: OperationCreatePayment,
		Method:    http.MethodPost,
		URL:       paymentPath(string(req.Service), req.Product),
		Headers:   headers,
	}, req.Payment, &out)
	if callErr != nil {
		return PaymentInitiationResult{}, WrapOperationError(callErr, OperationCreatePayment, KindPaymentInitiation, "payment initiation failed")
	}
	return out, nil
}

// GetPaymentStatus reads the current transaction status of a payment.
func (c *Client) GetPaymentStatus(ctx context.Context, lookup PaymentLookup) (status PaymentStatus, err error) {
	lookup = lookup.normalized()
	startedAt := c.clock.Now()
	defer func() {
		c.observeOperation(ctx, startedAt, OperationGetPaymentStatus, err, lookupFields(lookup, map[string]any{
			"transaction_status": string(status.TransactionStatus),
		}))
	}()

	if err := requirePaymentID(OperationGetPaymentStatus, "paymentId", lookup.PaymentID); err != nil {
		return PaymentStatus{}, err
	}
	var out PaymentStatus
	callErr := c.doJSON(ctx, TransportRequest{
		Operation: OperationGetPaymentStatus,
		Method:    http.MethodGet,
		URL:       paymentPath(string(lookup.Service), lookup.Product, lookup.PaymentID, "status"),
		Headers:   map[string]string{HeaderRequestID: c.nextRequestID()},
	}, nil, &out)
	if callErr != nil {
		return PaymentStatus{}, WrapOperationError(callErr, OperationGetPaymentStatus, KindAPI, "payment status request failed")
	}
	return out, nil
}

func (c *Client) GetPaymentDetails(ctx context.Context, lookup PaymentLookup) (details PaymentDetails, err error) {
	lookup = lookup.normalized()
	startedAt := c.clock.Now()
	defer func() {
		c.observeOperation(ctx, startedAt, OperationGetPaymentDetails, err, lookupFields(lookup, nil))
	}()

	if err := requirePaymentID(OperationGetPaymentDetails, "paymentId", lookup.PaymentID); err != nil {
		return nil, err
	}
	out := PaymentDetails{}
	callErr := c.doJSON(ctx, TransportRequest{
		Operation: OperationGetPaymentDetails,
		Method:    http.MethodGet,
		URL:       paymentPath(string(lookup.Service), lookup.Product, lookup.PaymentID),
		Headers:   map[string]string{HeaderRequestID: c.nextRequestID()},
	}, nil, &out)
	if callErr != nil {
		return nil, WrapOperationError(callErr, OperationGetPaymentDetails, KindAPI, "payment details request failed")
	}
	return out, nil
}

// ConfirmBulkPayment confirms a bulk submission as one unit. An empty product
// defaults to ron-payment.
func (c *Client) ConfirmBulkPayment(ctx context.Context, bulkPaymentID string, product string) (details PaymentDetails, err error) {
	bulkPaymentID = strings.TrimSpace(bulkPaymentID)
	product = strings.TrimSpace(product)
	if product == "" {
		product = PaymentProductRON
	}
	startedAt := c.clock.Now()
	defer func() {
		c.observeOperation(ctx, startedAt, OperationConfirmBulkPayment, err, map[string]any{
			"payment_service": string(PaymentServiceBulk),
			"payment_product": product,
			"payment_id":      bulkPaymentID,
		})
	}()

	if err := requirePaymentID(OperationConfirmBulkPayment, "paymentBulkId", bulkPaymentID); err != nil {
		return nil, err
	}
	out := PaymentDetails{}
	callErr := c.doJSON(ctx, TransportRequest{
		Operation: OperationConfirmBulkPayment,
		Method:    http.MethodPost,
		URL:       paymentPath(string(PaymentServiceBulk), product, "confirmation"),
		Headers: map[string]string{
			HeaderRequestID:    c.nextRequestID(),
			HeaderPSUIPAddress: c.psuIPAddress(),
		},
	}, BulkConfirmation{PaymentBulkID: bulkPaymentID}, &out)
	if callErr != nil {
		return nil, WrapOperationError(callErr, OperationConfirmBulkPayment, KindAPI, "bulk payment confirmation failed")
	}
	return out, nil
}

func (c *Client) psuIPAddress() string {
	if ip := strings.TrimSpace(c.config.PSUIPAddress); ip != "" {
		return ip
	}
	return DefaultPSUIPAddress
}

func paymentPath(segments ...string) string {
	escaped := make([]string, 0, len(segments)+1)
	escaped = append(escaped, "v2")
	for _, segment := range segments {
		escaped = append(escaped, url.PathEscape(strings.TrimSpace(segment)))
	}
	return "/" + strings.Join(escaped, "/")
}

func requirePaymentID(operation, field, id string) error {
	if strings.TrimSpace(id) != "" {
		return nil
	}
	return NewValidationError(operation, map[string][]string{field: {"is required"}})
}

func lookupFields(lookup PaymentLookup, extra map[string]any) map[string]any {
	fields := cloneFields(extra)
	fields["payment_service"] = string(lookup.Service)
	fields["payment_product"] = lookup.Product
	fields["payment_id"] = lookup.PaymentID
	return fields
}

var _ PaymentOperations = (*Client)(nil)
