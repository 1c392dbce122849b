package core_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-btpay/auth"
	"github.com/goliatone/go-btpay/core"
	"github.com/goliatone/go-btpay/devkit"
)

func newTestClient(t *testing.T, transport *devkit.FakeTransportAdapter, opts ...core.Option) *core.Client {
	t.Helper()
	base := []core.Option{
		core.WithTransport(transport),
		core.WithAuthenticatorFactory(auth.NewAuthenticator),
		core.WithClock(devkit.NewManualClock(time.Time{})),
	}
	client, err := core.NewClient(core.Config{APIKey: "k", Environment: core.EnvironmentSandbox}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(client.Dispose)
	return client
}

func ronPayment() core.PaymentRequest {
	return core.PaymentRequest{
		Service: core.PaymentServiceSingle,
		Product: core.PaymentProductRON,
		Payment: core.RonPayment{
			InstructedAmount: core.Amount{Currency: core.CurrencyRON, Amount: "100"},
			CreditorAccount:  core.Account{IBAN: "RO49AAAA1B31007593840000"},
			CreditorName:     "X",
		},
	}
}

func TestCreatePayment_SendsHeadersAndReturnsResult(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter(
		devkit.TokenResponse("T"),
		devkit.JSONResponse(http.StatusCreated, map[string]any{"paymentId": "p1", "transactionStatus": "RCVD"}),
	)
	client := newTestClient(t, transport)
	if ok, err := client.Authenticate(context.Background()); err != nil || !ok {
		t.Fatalf("authenticate: %v %v", ok, err)
	}

	req := ronPayment()
	req.PSUGeoLocation = "44.43;26.10"
	result, err := client.CreatePayment(context.Background(), req)
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if result.PaymentID != "p1" || result.Status() != core.StatusReceived {
		t.Fatalf("unexpected result %+v", result)
	}

	sent := transport.Requests()[1]
	if sent.Method != http.MethodPost || sent.URL != core.SandboxBaseURL+"/v2/payments/ron-payment" {
		t.Fatalf("unexpected request %s %s", sent.Method, sent.URL)
	}
	if sent.Headers["Authorization"] != "Bearer T" {
		t.Fatalf("expected bearer token, got %q", sent.Headers["Authorization"])
	}
	if sent.Headers[core.HeaderPSUIPAddress] != "127.0.0.1" || sent.Headers[core.HeaderPSUGeoLocation] != "44.43;26.10" {
		t.Fatalf("unexpected psu headers %v", sent.Headers)
	}
	if sent.Headers[core.HeaderRequestID] == "" {
		t.Fatalf("expected generated request id")
	}
	var body map[string]any
	if err := json.Unmarshal(sent.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["creditorName"] != "X" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestCreatePayment_RequestIDs(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter(devkit.JSONResponse(http.StatusCreated, map[string]any{"paymentId": "p"}))
	client := newTestClient(t, transport)

	for i := 0; i < 2; i++ {
		if _, err := client.CreatePayment(context.Background(), ronPayment()); err != nil {
			t.Fatalf("create payment: %v", err)
		}
	}
	explicit := ronPayment()
	explicit.RequestID = "my-request"
	if _, err := client.CreatePayment(context.Background(), explicit); err != nil {
		t.Fatalf("create payment: %v", err)
	}

	requests := transport.Requests()
	first := requests[0].Headers[core.HeaderRequestID]
	second := requests[1].Headers[core.HeaderRequestID]
	if first == "" || first == second {
		t.Fatalf("expected distinct generated request ids, got %q and %q", first, second)
	}
	if got := requests[2].Headers[core.HeaderRequestID]; got != "my-request" {
		t.Fatalf("expected explicit request id verbatim, got %q", got)
	}
}

func TestOperations_ClassifyFailures(t *testing.T) {
	cases := []struct {
		name   string
		script devkit.TransportScript
		kind   core.ErrorKind
		status int
	}{
		{name: "401", script: devkit.JSONResponse(http.StatusUnauthorized, map[string]any{}), kind: core.KindAuthentication, status: 401},
		{name: "404", script: devkit.JSONResponse(http.StatusNotFound, map[string]any{}), kind: core.KindAPI, status: 404},
		{name: "dropped", script: devkit.DroppedConnection(), kind: core.KindNetwork, status: 0},
	}
	for _, tc := range cases {
		client := newTestClient(t, devkit.NewFakeTransportAdapter(tc.script))

		_, err := client.GetPaymentStatus(context.Background(), core.PaymentLookup{PaymentID: "p1"})
		if core.KindOf(err) != tc.kind || core.StatusOf(err) != tc.status {
			t.Fatalf("%s status: got %v", tc.name, err)
		}
		_, err = client.CreatePayment(context.Background(), ronPayment())
		if core.KindOf(err) != tc.kind || core.StatusOf(err) != tc.status {
			t.Fatalf("%s create: got %v", tc.name, err)
		}
	}
}

func TestCreatePayment_WrapsUntypedFailures(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter(devkit.TransportScript{Err: errors.New("adapter exploded")})
	client := newTestClient(t, transport)

	_, err := client.CreatePayment(context.Background(), ronPayment())
	if !core.IsPaymentInitiation(err) || core.StatusOf(err) != 0 {
		t.Fatalf("expected payment initiation error with status 0, got %v", err)
	}

	_, err = client.GetPaymentDetails(context.Background(), core.PaymentLookup{PaymentID: "p1"})
	if core.KindOf(err) != core.KindAPI || core.StatusOf(err) != 0 {
		t.Fatalf("expected api error with status 0, got %v", err)
	}
}

func TestCreatePayment_ValidatesLocally(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter()
	client := newTestClient(t, transport)

	req := ronPayment()
	req.Payment = core.RonPayment{
		InstructedAmount: core.Amount{Currency: "JPY", Amount: "-5"},
		CreditorAccount:  core.Account{IBAN: "RO49"},
	}
	_, err := client.CreatePayment(context.Background(), req)
	typed, ok := core.AsError(err)
	if !ok || typed.Kind != core.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range []string{"instructedAmount.currency", "instructedAmount.amount", "creditorAccount.iban", "creditorName"} {
		if len(typed.Fields[field]) == 0 {
			t.Fatalf("expected messages for %s, got %v", field, typed.Fields)
		}
	}
	if transport.RequestCount() != 0 {
		t.Fatalf("expected no request for invalid input")
	}
}

func TestStatusAndDetails_Paths(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter(
		devkit.StatusResponse(core.StatusAcceptedTechnicalValidation),
		devkit.JSONResponse(http.StatusOK, map[string]any{"paymentId": "p1", "creditorName": "X"}),
	)
	client := newTestClient(t, transport)

	status, err := client.GetPaymentStatus(context.Background(), core.PaymentLookup{PaymentID: "p1"})
	if err != nil || status.TransactionStatus != core.StatusAcceptedTechnicalValidation {
		t.Fatalf("get status: %+v %v", status, err)
	}
	details, err := client.GetPaymentDetails(context.Background(), core.PaymentLookup{
		PaymentID: "p1",
		Service:   core.PaymentServicePeriodic,
		Product:   core.PaymentProductOtherCurrency,
	})
	if err != nil || details["creditorName"] != "X" {
		t.Fatalf("get details: %v %v", details, err)
	}

	requests := transport.Requests()
	if requests[0].URL != core.SandboxBaseURL+"/v2/payments/ron-payment/p1/status" {
		t.Fatalf("unexpected status url %s", requests[0].URL)
	}
	if requests[1].URL != core.SandboxBaseURL+"/v2/periodic-payments/other-currency-payment/p1" {
		t.Fatalf("unexpected details url %s", requests[1].URL)
	}
	if requests[0].Headers[core.HeaderRequestID] == requests[1].Headers[core.HeaderRequestID] {
		t.Fatalf("expected fresh request id per call")
	}
	if _, ok := requests[0].Headers[core.HeaderPSUIPAddress]; ok {
		t.Fatalf("status checks must not send PSU-IP-Address")
	}
}

func TestConfirmBulkPayment(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter(devkit.JSONResponse(http.StatusOK, map[string]any{"transactionStatus": "ACTC"}))
	client := newTestClient(t, transport)

	details, err := client.ConfirmBulkPayment(context.Background(), "bulk-1", "")
	if err != nil || details["transactionStatus"] != "ACTC" {
		t.Fatalf("confirm bulk: %v %v", details, err)
	}
	sent := transport.Requests()[0]
	if sent.Method != http.MethodPost || sent.URL != core.SandboxBaseURL+"/v2/bulk-payments/ron-payment/confirmation" {
		t.Fatalf("unexpected request %s %s", sent.Method, sent.URL)
	}
	if !strings.Contains(string(sent.Body), `"paymentBulkId":"bulk-1"`) {
		t.Fatalf("unexpected body %s", string(sent.Body))
	}

	if _, err := client.ConfirmBulkPayment(context.Background(), " ", ""); !core.IsValidation(err) {
		t.Fatalf("expected validation error for empty bulk id, got %v", err)
	}
}

func TestNewClient_ProductionBaseURLAndDispose(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter(devkit.TokenResponse("T"))
	clock := devkit.NewManualClock(time.Time{})
	client, err := core.NewClient(core.Config{APIKey: "k", Environment: core.EnvironmentProduction},
		core.WithTransport(transport),
		core.WithAuthenticatorFactory(auth.NewAuthenticator),
		core.WithClock(clock),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.BaseURL() != core.ProductionBaseURL {
		t.Fatalf("unexpected base url %s", client.BaseURL())
	}
	if _, err := client.Authenticate(context.Background()); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if transport.Requests()[0].URL != core.ProductionBaseURL+"/oauth2/token" {
		t.Fatalf("unexpected token url %s", transport.Requests()[0].URL)
	}
	client.Dispose()
	client.Dispose()
	if clock.Pending() != 0 || client.Authenticated() {
		t.Fatalf("expected disposed client without timers")
	}
}

func TestNewClient_AutoRefreshOverride(t *testing.T) {
	clock := devkit.NewManualClock(time.Time{})
	transport := devkit.NewFakeTransportAdapter(devkit.TokenResponse("T"))
	client := newTestClient(t, transport, core.WithClock(clock), core.WithAutoRefresh(false))
	if client.Config().AutoRefreshEnabled() {
		t.Fatalf("expected auto refresh disabled")
	}
	if _, err := client.Authenticate(context.Background()); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if clock.Pending() != 0 {
		t.Fatalf("expected no refresh timer")
	}
}

func TestNewClient_AutoRefreshFalseInConfig(t *testing.T) {
	clock := devkit.NewManualClock(time.Time{})
	transport := devkit.NewFakeTransportAdapter(devkit.TokenResponse("T"))
	disabled := false
	client, err := core.NewClient(
		core.Config{APIKey: "k", AutoRefreshToken: &disabled},
		core.WithTransport(transport),
		core.WithAuthenticatorFactory(auth.NewAuthenticator),
		core.WithClock(clock),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Dispose()

	if client.Config().AutoRefreshEnabled() {
		t.Fatalf("expected explicit false to survive the merge")
	}
	if _, err := client.Authenticate(context.Background()); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if clock.Pending() != 0 {
		t.Fatalf("expected no refresh timer, got %d", clock.Pending())
	}
}

func TestNewClient_AutoRefreshFalseFromEnv(t *testing.T) {
	env := map[string]string{"BTPAY_AUTO_REFRESH_TOKEN": "false"}
	loader := &core.EnvConfigLoader{Lookup: func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}}
	clock := devkit.NewManualClock(time.Time{})
	transport := devkit.NewFakeTransportAdapter(devkit.TokenResponse("T"))
	client := newTestClient(t, transport,
		core.WithClock(clock),
		core.WithConfigProvider(core.NewCfgxConfigProvider(loader)),
	)

	if client.Config().AutoRefreshEnabled() {
		t.Fatalf("expected env false to disable auto refresh")
	}
	if _, err := client.Authenticate(context.Background()); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if clock.Pending() != 0 {
		t.Fatalf("expected no refresh timer, got %d", clock.Pending())
	}
}

func TestNewClient_AutoRefreshRuntimeOverridesEnv(t *testing.T) {
	loader := &core.EnvConfigLoader{Lookup: func(key string) (string, bool) {
		if key == "BTPAY_AUTO_REFRESH_TOKEN" {
			return "false", true
		}
		return "", false
	}}
	enabled := true
	client, err := core.NewClient(
		core.Config{APIKey: "k", AutoRefreshToken: &enabled},
		core.WithTransport(devkit.NewFakeTransportAdapter()),
		core.WithConfigProvider(core.NewCfgxConfigProvider(loader)),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Dispose()

	if !client.Config().AutoRefreshEnabled() {
		t.Fatalf("expected runtime true to win over env false")
	}
	if core.DefaultConfig().AutoRefreshToken == nil || !*core.DefaultConfig().AutoRefreshToken {
		t.Fatalf("expected defaults to stay enabled")
	}
}

func TestNewClient_RejectsMissingAPIKey(t *testing.T) {
	_, err := core.NewClient(core.Config{}, core.WithTransport(devkit.NewFakeTransportAdapter()))
	if err == nil {
		t.Fatalf("expected missing api key to fail")
	}
}
