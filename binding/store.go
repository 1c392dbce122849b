package binding

import (
	"context"
	"sync"

	"github.com/goliatone/go-btpay/core"
	"github.com/goliatone/go-btpay/polling"
	glog "github.com/goliatone/go-logger/glog"
)

// Client is the surface the store drives.
type Client interface {
	core.PaymentOperations
	Authenticate(ctx context.Context) (bool, error)
	Authenticated() bool
	Dispose()
}

// State is the snapshot handed to subscribers.
type State struct {
	Authenticated bool
	Loading       bool
	Err           error
	ErrorDetails  *core.ErrorDetails
	Payment       *core.PaymentInitiationResult
	Status        core.TransactionStatus
	Polling       polling.Snapshot
}

type Listener func(State)

type subscription struct {
	id       uint64
	listener Listener
}

type Options struct {
	// AutoPoll starts status polling after a successful initiation.
	AutoPoll bool
	Polling  polling.Config
	Logger   core.Logger
}

// Store is the observable state object for UI-facing consumers. Loading is
// true while any operation is in flight.
type Store struct {
	client   Client
	poller   *polling.Poller
	autoPoll bool
	logger   core.Logger

	mu          sync.Mutex
	state       State
	inFlight    int
	listeners   []subscription
	nextID      uint64
	disposed    bool
	pending     []State
	dispatching bool

	unsubscribePoller func()
}

func NewStore(client Client, opts Options) *Store {
	store := &Store{
		client:   client,
		autoPoll: opts.AutoPoll,
		logger:   glog.Ensure(opts.Logger),
	}
	store.poller = polling.NewPoller(client, opts.Polling)
	store.state = State{
		Authenticated: client.Authenticated(),
		Polling:       store.poller.Snapshot(),
	}
	store.unsubscribePoller = store.poller.Subscribe(store.onPoll)
	return store
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) Poller() *polling.Poller {
	return s.poller
}

// Subscribe registers a listener and returns its cancel function. States
// are delivered in the order the updates were applied.
func (s *Store) Subscribe(listener Listener) func() {
	if listener == nil {
		return func() {}
	}
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, subscription{id: id, listener: listener})
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for index, sub := range s.listeners {
			if sub.id == id {
				s.listeners = append(s.listeners[:index:index], s.listeners[index+1:]...)
				return
			}
		}
	}
}

func (s *Store) Authenticate(ctx context.Context) (bool, error) {
	s.begin()
	ok, err := s.client.Authenticate(ctx)
	s.end(err, nil)
	return ok, err
}

// InitiatePayment authenticates first when no token is held.
func (s *Store) InitiatePayment(ctx context.Context, req core.PaymentRequest) (core.PaymentInitiationResult, error) {
	s.begin()
	if !s.client.Authenticated() {
		ok, err := s.client.Authenticate(ctx)
		if err == nil && !ok {
			err = core.NewAuthenticationError(core.OperationCreatePayment, "authentication returned no access token", 0, nil, nil)
		}
		if err != nil {
			s.end(err, nil)
			return core.PaymentInitiationResult{}, err
		}
	}

	result, err := s.client.CreatePayment(ctx, req)
	s.end(err, func(state *State) {
		payment := result
		state.Payment = &payment
		state.Status = result.Status()
	})
	if err != nil {
		return core.PaymentInitiationResult{}, err
	}
	if s.autoPoll && result.PaymentID != "" && !result.Status().IsTerminal() {
		s.poller.StartLookup(ctx, core.PaymentLookup{
			PaymentID: result.PaymentID,
			Service:   req.Service,
			Product:   req.Product,
		})
	}
	return result, nil
}

func (s *Store) GetPaymentStatus(ctx context.Context, lookup core.PaymentLookup) (core.PaymentStatus, error) {
	s.begin()
	status, err := s.client.GetPaymentStatus(ctx, lookup)
	s.end(err, func(state *State) {
		state.Status = status.TransactionStatus
	})
	return status, err
}

func (s *Store) GetPaymentDetails(ctx context.Context, lookup core.PaymentLookup) (core.PaymentDetails, error) {
	s.begin()
	details, err := s.client.GetPaymentDetails(ctx, lookup)
	s.end(err, nil)
	return details, err
}

func (s *Store) ConfirmBulkPayment(ctx context.Context, bulkPaymentID string, product string) (core.PaymentDetails, error) {
	s.begin()
	details, err := s.client.ConfirmBulkPayment(ctx, bulkPaymentID, product)
	s.end(err, nil)
	return details, err
}

func (s *Store) StartPolling(ctx context.Context, lookup core.PaymentLookup) bool {
	return s.poller.StartLookup(ctx, lookup)
}

func (s *Store) StopPolling() {
	s.poller.Stop()
}

// Reset clears the payment, status and error. Polling is stopped.
func (s *Store) Reset() {
	s.poller.Stop()
	s.update(func(state *State) {
		state.Payment = nil
		state.Status = ""
		state.Err = nil
		state.ErrorDetails = nil
	})
}

// Dispose stops polling, disposes the client and drops every listener.
// Safe to call more than once.
func (s *Store) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.mu.Unlock()

	s.poller.Stop()
	if s.unsubscribePoller != nil {
		s.unsubscribePoller()
	}
	s.client.Dispose()

	s.mu.Lock()
	s.state.Authenticated = false
	s.listeners = nil
	s.mu.Unlock()
}

func (s *Store) begin() {
	s.update(func(state *State) {
		s.inFlight++
		state.Loading = true
		state.Err = nil
		state.ErrorDetails = nil
	})
}

func (s *Store) end(err error, onSuccess func(*State)) {
	s.update(func(state *State) {
		if s.inFlight > 0 {
			s.inFlight--
		}
		state.Loading = s.inFlight > 0
		state.Authenticated = s.client.Authenticated()
		if err != nil {
			state.Err = err
			state.ErrorDetails = core.Describe(err)
			return
		}
		if onSuccess != nil {
			onSuccess(state)
		}
	})
	if err != nil {
		s.logger.Debug("store operation failed", "error", err, "kind", string(core.KindOf(err)))
	}
}

func (s *Store) onPoll(snapshot polling.Snapshot) {
	s.update(func(state *State) {
		state.Polling = snapshot
		if snapshot.LastStatus != "" {
			state.Status = snapshot.LastStatus
		}
		if snapshot.Err != nil {
			state.Err = snapshot.Err
			state.ErrorDetails = core.Describe(snapshot.Err)
		}
	})
}

// update applies mutate and queues the resulting state. Whichever goroutine
// finds the queue idle delivers everything queued, so a listener never sees
// an older state after a newer one.
func (s *Store) update(mutate func(*State)) {
	s.mu.Lock()
	mutate(&s.state)
	s.pending = append(s.pending, s.state)
	if s.dispatching {
		s.mu.Unlock()
		return
	}
	s.dispatching = true
	defer func() {
		if recovered := recover(); recovered != nil {
			s.mu.Lock()
			s.pending = nil
			s.dispatching = false
			s.mu.Unlock()
			panic(recovered)
		}
	}()
	for len(s.pending) > 0 {
		snapshot := s.pending[0]
		s.pending = s.pending[1:]
		listeners := make([]Listener, 0, len(s.listeners))
		for _, sub := range s.listeners {
			listeners = append(listeners, sub.listener)
		}
		s.mu.Unlock()
		for _, listener := range listeners {
			listener(snapshot)
		}
		s.mu.Lock()
	}
	s.pending = nil
	s.dispatching = false
	s.mu.Unlock()
}
