package binding

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-btpay/auth"
	"github.com/goliatone/go-btpay/core"
	"github.com/goliatone/go-btpay/devkit"
	"github.com/goliatone/go-btpay/polling"
)

func newStoreFixture(t *testing.T, autoPoll bool, scripts ...devkit.TransportScript) (*Store, *devkit.FakeTransportAdapter, *devkit.ManualClock) {
	t.Helper()
	clock := devkit.NewManualClock(time.Time{})
	transport := devkit.NewFakeTransportAdapter(scripts...)
	client, err := core.NewClient(core.Config{APIKey: "k"},
		core.WithTransport(transport),
		core.WithAuthenticatorFactory(auth.NewAuthenticator),
		core.WithClock(clock),
		core.WithAutoRefresh(false),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	store := NewStore(client, Options{
		AutoPoll: autoPoll,
		Polling:  polling.Config{Interval: time.Second, MaxAttempts: 3, Clock: clock},
	})
	t.Cleanup(store.Dispose)
	return store, transport, clock
}

func payment() core.PaymentRequest {
	return core.PaymentRequest{
		Service: core.PaymentServiceSingle,
		Product: core.PaymentProductRON,
		Payment: core.RonPayment{
			InstructedAmount: core.Amount{Currency: core.CurrencyRON, Amount: "12.50"},
			CreditorAccount:  core.Account{IBAN: "RO49AAAA1B31007593840000"},
			CreditorName:     "Creditor",
		},
	}
}

func TestStore_InitiatePaymentAuthenticatesAndPolls(t *testing.T) {
	store, transport, clock := newStoreFixture(t, true,
		devkit.TokenResponse("T"),
		devkit.JSONResponse(http.StatusCreated, map[string]any{"paymentId": "p1", "transactionStatus": "RCVD"}),
		devkit.StatusResponse(core.StatusReceived),
		devkit.StatusResponse(core.StatusAcceptedSettlementCompleted),
	)

	var loadingSeen bool
	store.Subscribe(func(state State) {
		if state.Loading {
			loadingSeen = true
		}
	})

	result, err := store.InitiatePayment(context.Background(), payment())
	if err != nil {
		t.Fatalf("initiate payment: %v", err)
	}
	if result.PaymentID != "p1" {
		t.Fatalf("unexpected result %+v", result)
	}
	if !loadingSeen {
		t.Fatalf("expected loading to be observed")
	}

	state := store.State()
	if !state.Authenticated || state.Loading || state.Payment == nil {
		t.Fatalf("unexpected state %+v", state)
	}
	if !state.Polling.Active() || state.Status != core.StatusReceived {
		t.Fatalf("expected active polling after initiation, got %+v", state.Polling)
	}

	clock.Advance(time.Second)
	state = store.State()
	if state.Status != core.StatusAcceptedSettlementCompleted || state.Polling.StopReason != polling.ReasonTerminal {
		t.Fatalf("expected terminal status from polling, got %s %s", state.Status, state.Polling.StopReason)
	}
	if got := transport.RequestCount(); got != 4 {
		t.Fatalf("expected token, create and two status requests, got %d", got)
	}
}

func TestStore_ErrorsSurfaceWithDetails(t *testing.T) {
	store, _, _ := newStoreFixture(t, false,
		devkit.TokenResponse("T"),
		devkit.JSONResponse(http.StatusBadRequest, map[string]any{
			"tppMessages": []map[string]any{{"category": "ERROR", "code": "FORMAT_ERROR", "text": "bad"}},
		}),
	)

	_, err := store.InitiatePayment(context.Background(), payment())
	if core.StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected 400 api error, got %v", err)
	}
	state := store.State()
	if state.Err == nil || state.ErrorDetails == nil {
		t.Fatalf("expected error in state")
	}
	if !state.ErrorDetails.Recoverable || state.ErrorDetails.Code != "FORMAT_ERROR" {
		t.Fatalf("unexpected details %+v", state.ErrorDetails)
	}
	if state.Loading {
		t.Fatalf("expected loading to settle")
	}

	store.Reset()
	if store.State().Err != nil || store.State().Payment != nil {
		t.Fatalf("expected reset to clear error and payment")
	}
}

func TestStore_InitiateFailsWhenAuthenticationYieldsNoToken(t *testing.T) {
	store, transport, _ := newStoreFixture(t, false, devkit.JSONResponse(http.StatusOK, map[string]any{}))

	_, err := store.InitiatePayment(context.Background(), payment())
	if !core.IsAuthentication(err) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if transport.RequestCount() != 1 {
		t.Fatalf("expected no payment request without a token")
	}
}

func TestStore_DisposeIsIdempotent(t *testing.T) {
	store, _, clock := newStoreFixture(t, true,
		devkit.TokenResponse("T"),
		devkit.JSONResponse(http.StatusCreated, map[string]any{"paymentId": "p1", "transactionStatus": "RCVD"}),
		devkit.StatusResponse(core.StatusPending),
	)
	if _, err := store.InitiatePayment(context.Background(), payment()); err != nil {
		t.Fatalf("initiate payment: %v", err)
	}

	store.Dispose()
	store.Dispose()

	if clock.Pending() != 0 {
		t.Fatalf("expected no pending timers after dispose, got %d", clock.Pending())
	}
	if store.State().Authenticated {
		t.Fatalf("expected store to report unauthenticated")
	}
}

func TestStore_BlockedListenerSeesStopLast(t *testing.T) {
	store, _, _ := newStoreFixture(t, false, devkit.StatusResponse(core.StatusPending))

	blocked := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	store.Subscribe(func(state State) {
		if state.Polling.Active() && state.Polling.AttemptCount == 1 {
			once.Do(func() { close(blocked) })
			<-release
		}
	})
	var mu sync.Mutex
	var seen []State
	store.Subscribe(func(state State) {
		mu.Lock()
		seen = append(seen, state)
		mu.Unlock()
	})

	started := make(chan struct{})
	go func() {
		defer close(started)
		store.StartPolling(context.Background(), core.PaymentLookup{PaymentID: "p1"})
	}()
	<-blocked

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		store.StopPolling()
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatalf("expected stop to return while a listener is busy")
	}
	close(release)
	<-started

	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 {
		t.Fatalf("expected notifications")
	}
	last := seen[len(seen)-1]
	if last.Polling.Active() || last.Polling.StopReason != polling.ReasonExplicit {
		t.Fatalf("expected stopped polling last, got %+v", last.Polling)
	}
	if store.State().Polling.Active() {
		t.Fatalf("expected store state to report stopped polling")
	}
}
