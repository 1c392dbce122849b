package polling

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-btpay/core"
	glog "github.com/goliatone/go-logger/glog"
)

type State string

const (
	StateIdle    State = "idle"
	StatePolling State = "polling"
	StateStopped State = "stopped"
)

type StopReason string

const (
	ReasonNone            StopReason = ""
	ReasonTerminal        StopReason = "terminal"
	ReasonBudgetExhausted StopReason = "budget_exhausted"
	ReasonExplicit        StopReason = "explicit"
	ReasonFailed          StopReason = "failed"
)

// Snapshot is the observable polling session.
type Snapshot struct {
	PaymentID    string
	AttemptCount int
	MaxAttempts  int
	Interval     time.Duration
	State        State
	StopReason   StopReason
	LastStatus   core.TransactionStatus
	Err          error
}

func (s Snapshot) Active() bool {
	return s.State == StatePolling
}

type Listener func(Snapshot)

type subscription struct {
	id       uint64
	listener Listener
}

type Config struct {
	Interval    time.Duration
	MaxAttempts int
	Service     core.PaymentService
	Product     string
	Clock       core.Clock
	Logger      core.Logger
}

// ConfigFromClient takes interval and budget from the client configuration.
func ConfigFromClient(cfg core.Config, clock core.Clock, logger core.Logger) Config {
	return Config{
		Interval:    cfg.Polling.Interval,
		MaxAttempts: cfg.Polling.MaxAttempts,
		Clock:       clock,
		Logger:      logger,
	}
}

// Poller watches one payment at a time until it reaches a terminal status,
// exhausts its attempt budget, fails or is stopped.
type Poller struct {
	checker core.StatusChecker
	config  Config
	clock   core.Clock
	logger  core.Logger

	mu          sync.Mutex
	ctx         context.Context
	lookup      core.PaymentLookup
	snapshot    Snapshot
	timer       core.Timer
	generation  uint64
	done        chan struct{}
	listeners   []subscription
	nextID      uint64
	pending     []Snapshot
	dispatching bool
}

func NewPoller(checker core.StatusChecker, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = core.DefaultPollingInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = core.DefaultPollingMaxAttempts
	}
	clock := cfg.Clock
	if clock == nil {
		clock = core.SystemClock{}
	}
	done := make(chan struct{})
	close(done)
	return &Poller{
		checker: checker,
		config:  cfg,
		clock:   clock,
		logger:  glog.Ensure(cfg.Logger),
		snapshot: Snapshot{
			MaxAttempts: cfg.MaxAttempts,
			Interval:    cfg.Interval,
			State:       StateIdle,
		},
		done: done,
	}
}

// Start begins polling paymentID with the poller's service and product. The
// first status check runs before Start returns. It reports false when the
// poller is already polling.
func (p *Poller) Start(ctx context.Context, paymentID string) bool {
	return p.StartLookup(ctx, core.PaymentLookup{
		PaymentID: paymentID,
		Service:   p.config.Service,
		Product:   p.config.Product,
	})
}

func (p *Poller) StartLookup(ctx context.Context, lookup core.PaymentLookup) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	lookup = lookup.WithDefaults()

	p.mu.Lock()
	if p.snapshot.State == StatePolling {
		p.mu.Unlock()
		return false
	}
	p.generation++
	generation := p.generation
	p.ctx = ctx
	p.lookup = lookup
	p.done = make(chan struct{})
	p.snapshot = Snapshot{
		PaymentID:   lookup.PaymentID,
		MaxAttempts: p.config.MaxAttempts,
		Interval:    p.config.Interval,
		State:       StatePolling,
	}
	p.publishLocked(p.snapshot)
	p.mu.Unlock()

	p.logger.Debug("payment polling started", "payment_id", lookup.PaymentID, "max_attempts", p.config.MaxAttempts)
	p.dispatch()
	p.tick(generation)
	return true
}

// Stop ends polling and cancels the pending tick. Stopping an already
// stopped poller keeps its original reason.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.snapshot.State == StateStopped {
		p.mu.Unlock()
		return
	}
	p.publishLocked(p.stopLocked(ReasonExplicit, nil))
	p.mu.Unlock()
	p.dispatch()
}

func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot
}

// Done is closed when the current polling run stops.
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Wait blocks until the current run stops or ctx ends.
func (p *Poller) Wait(ctx context.Context) (Snapshot, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-p.Done():
		return p.Snapshot(), nil
	case <-ctx.Done():
		return p.Snapshot(), ctx.Err()
	}
}

// Subscribe registers a listener for state changes and returns its
// cancel function. Listeners run in subscription order and see snapshots in
// the order the poller produced them. A listener may call back into the
// poller; the resulting snapshots are delivered after it returns.
func (p *Poller) Subscribe(listener Listener) func() {
	if listener == nil {
		return func() {}
	}
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.listeners = append(p.listeners, subscription{id: id, listener: listener})
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for index, sub := range p.listeners {
			if sub.id == id {
				p.listeners = append(p.listeners[:index:index], p.listeners[index+1:]...)
				return
			}
		}
	}
}

func (p *Poller) tick(generation uint64) {
	p.mu.Lock()
	if generation != p.generation || p.snapshot.State != StatePolling {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	ctx := p.ctx
	lookup := p.lookup
	p.mu.Unlock()

	if ctxErr := ctx.Err(); ctxErr != nil {
		p.finish(generation, func() Snapshot { return p.stopLocked(ReasonExplicit, nil) })
		return
	}

	status, err := p.checker.GetPaymentStatus(ctx, lookup)

	p.finish(generation, func() Snapshot {
		p.snapshot.AttemptCount++
		if err != nil {
			p.logger.Warn("payment polling stopped on error", "payment_id", lookup.PaymentID, "error", err)
			return p.stopLocked(ReasonFailed, err)
		}
		p.snapshot.LastStatus = core.TransactionStatus(strings.TrimSpace(string(status.TransactionStatus)))
		if p.snapshot.LastStatus.IsTerminal() {
			return p.stopLocked(ReasonTerminal, nil)
		}
		if p.snapshot.AttemptCount >= p.snapshot.MaxAttempts {
			return p.stopLocked(ReasonBudgetExhausted, nil)
		}
		p.timer = p.clock.AfterFunc(p.config.Interval, func() {
			p.tick(generation)
		})
		return p.snapshot
	})
}

// finish applies a transition if the run is still current. Results of a
// check that completes after Stop are discarded.
func (p *Poller) finish(generation uint64, transition func() Snapshot) {
	p.mu.Lock()
	if generation != p.generation || p.snapshot.State != StatePolling {
		p.mu.Unlock()
		return
	}
	p.publishLocked(transition())
	p.mu.Unlock()
	p.dispatch()
}

func (p *Poller) stopLocked(reason StopReason, err error) Snapshot {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.generation++
	p.snapshot.State = StateStopped
	p.snapshot.StopReason = reason
	p.snapshot.Err = err
	select {
	case <-p.done:
	default:
		close(p.done)
	}
	p.logger.Debug("payment polling stopped",
		"payment_id", p.snapshot.PaymentID,
		"reason", string(reason),
		"attempts", p.snapshot.AttemptCount,
	)
	return p.snapshot
}

// publishLocked queues snapshot for delivery. Queue order is the order in
// which transitions happened under mu.
func (p *Poller) publishLocked(snapshot Snapshot) {
	p.pending = append(p.pending, snapshot)
}

// dispatch drains the queue unless another goroutine already is, in which
// case that goroutine delivers what was queued here.
func (p *Poller) dispatch() {
	p.mu.Lock()
	if p.dispatching {
		p.mu.Unlock()
		return
	}
	p.dispatching = true
	defer func() {
		if recovered := recover(); recovered != nil {
			p.mu.Lock()
			p.pending = nil
			p.dispatching = false
			p.mu.Unlock()
			panic(recovered)
		}
	}()
	for len(p.pending) > 0 {
		snapshot := p.pending[0]
		p.pending = p.pending[1:]
		listeners := make([]Listener, 0, len(p.listeners))
		for _, sub := range p.listeners {
			listeners = append(listeners, sub.listener)
		}
		p.mu.Unlock()
		for _, listener := range listeners {
			listener(snapshot)
		}
		p.mu.Lock()
	}
	p.pending = nil
	p.dispatching = false
	p.mu.Unlock()
}
