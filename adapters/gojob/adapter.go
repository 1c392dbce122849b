package gojob

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-btpay/core"
	glog "github.com/goliatone/go-logger/glog"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDStatusCheck      = "btpay.payment.status_check"
	ScriptPathStatusCheck = "btpay.payment.status_check"

	ParamPaymentID      = "payment_id"
	ParamPaymentService = "payment_service"
	ParamPaymentProduct = "payment_product"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	return out
}

// ToExecutionMessage maps a payment lookup onto a status check job. The
// idempotency key is per payment so a queue can drop duplicate checks.
func ToExecutionMessage(lookup core.PaymentLookup) *job.ExecutionMessage {
	lookup = lookup.WithDefaults()
	return &job.ExecutionMessage{
		JobID:      JobIDStatusCheck,
		ScriptPath: ScriptPathStatusCheck,
		Parameters: map[string]any{
			ParamPaymentID:      lookup.PaymentID,
			ParamPaymentService: string(lookup.Service),
			ParamPaymentProduct: lookup.Product,
		},
		IdempotencyKey: "btpay.status:" + lookup.PaymentID,
	}
}

// LookupFromMessage reads the payment lookup back from a status check job.
func LookupFromMessage(msg *job.ExecutionMessage) (core.PaymentLookup, error) {
	if msg == nil {
		return core.PaymentLookup{}, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDStatusCheck {
		return core.PaymentLookup{}, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	lookup := core.PaymentLookup{
		PaymentID: stringParam(msg.Parameters, ParamPaymentID),
		Service:   core.PaymentService(stringParam(msg.Parameters, ParamPaymentService)),
		Product:   stringParam(msg.Parameters, ParamPaymentProduct),
	}
	if lookup.PaymentID == "" {
		return core.PaymentLookup{}, fmt.Errorf("gojob: %s parameter is required", ParamPaymentID)
	}
	return lookup.WithDefaults(), nil
}

type Enqueuer struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuer(enqueuer queue.Enqueuer) *Enqueuer {
	return &Enqueuer{enqueuer: enqueuer}
}

func (e *Enqueuer) Enqueue(ctx context.Context, lookup core.PaymentLookup) error {
	if e == nil || e.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if strings.TrimSpace(lookup.PaymentID) == "" {
		return fmt.Errorf("gojob: payment id is required")
	}
	return e.enqueuer.Enqueue(ctx, ToExecutionMessage(lookup))
}

// Outcome is the decision taken for one delivery.
type Outcome string

const (
	OutcomeAcked     Outcome = "acked"
	OutcomeRequeued  Outcome = "requeued"
	OutcomeAbandoned Outcome = "abandoned"
)

// StatusCheckResult reports what a delivery did.
type StatusCheckResult struct {
	Lookup  core.PaymentLookup
	Status  core.TransactionStatus
	Outcome Outcome
	Err     error
}

type StatusCheckConfig struct {
	// Interval is the redelivery delay while the payment is not terminal.
	Interval time.Duration
	Policy   RetryPolicy
	Logger   job.Logger
}

// StatusCheckJob runs one status check per delivery. Terminal statuses and
// permanent failures are acked; non-terminal statuses and transient failures
// are nacked with the polling interval until the retry policy gives up.
type StatusCheckJob struct {
	checker  core.StatusChecker
	interval time.Duration
	policy   RetryPolicy
	logger   job.Logger
}

func NewStatusCheckJob(checker core.StatusChecker, cfg StatusCheckConfig) *StatusCheckJob {
	if cfg.Interval <= 0 {
		cfg.Interval = core.DefaultPollingInterval
	}
	if cfg.Policy.MaxAttempts <= 0 {
		cfg.Policy.MaxAttempts = core.DefaultPollingMaxAttempts
	}
	return &StatusCheckJob{
		checker:  checker,
		interval: cfg.Interval,
		policy:   cfg.Policy,
		logger:   ensureLogger(cfg.Logger),
	}
}

// Handle processes one delivery. attempt is 1-based.
func (j *StatusCheckJob) Handle(ctx context.Context, delivery queue.Delivery, attempt int) (StatusCheckResult, error) {
	if j == nil || j.checker == nil {
		return StatusCheckResult{}, fmt.Errorf("gojob: status checker is not configured")
	}
	if delivery == nil {
		return StatusCheckResult{}, fmt.Errorf("gojob: delivery is required")
	}

	lookup, err := LookupFromMessage(delivery.Message())
	if err != nil {
		j.logger.Warn("discarding malformed status check", "error", err)
		return j.ack(ctx, delivery, StatusCheckResult{Err: err})
	}
	result := StatusCheckResult{Lookup: lookup}

	status, err := j.checker.GetPaymentStatus(ctx, lookup)
	if err != nil {
		result.Err = err
		if !transient(err) {
			j.logger.Error("status check failed permanently", "payment_id", lookup.PaymentID, "error", err)
			return j.ack(ctx, delivery, result)
		}
		return j.nack(ctx, delivery, result, attempt, "status check failed: "+string(core.KindOf(err)))
	}

	result.Status = status.TransactionStatus
	if result.Status.IsTerminal() {
		j.logger.Info("payment reached terminal status", "payment_id", lookup.PaymentID, "status", string(result.Status))
		return j.ack(ctx, delivery, result)
	}
	return j.nack(ctx, delivery, result, attempt, "status "+string(result.Status))
}

func (j *StatusCheckJob) ack(ctx context.Context, delivery queue.Delivery, result StatusCheckResult) (StatusCheckResult, error) {
	if err := delivery.Ack(ctx); err != nil {
		return result, err
	}
	result.Outcome = OutcomeAcked
	return result, nil
}

func (j *StatusCheckJob) nack(
	ctx context.Context,
	delivery queue.Delivery,
	result StatusCheckResult,
	attempt int,
	reason string,
) (StatusCheckResult, error) {
	opts := j.policy.NormalizeAttempt(queue.NackOptions{
		Delay:   j.interval,
		Requeue: true,
		Reason:  reason,
	}, attempt)
	if err := delivery.Nack(ctx, opts); err != nil {
		return result, err
	}
	result.Outcome = OutcomeRequeued
	if !opts.Requeue {
		result.Outcome = OutcomeAbandoned
		j.logger.Warn("status check budget exhausted",
			"payment_id", result.Lookup.PaymentID,
			"attempt", attempt,
			"dead_letter", opts.DeadLetter,
		)
	}
	return result, nil
}

// transient reports failures worth another delivery: no response, 5xx,
// throttling and authentication (the session may recover).
func transient(err error) bool {
	switch core.KindOf(err) {
	case core.KindNetwork, core.KindAuthentication:
		return true
	case core.KindValidation:
		return false
	}
	status := core.StatusOf(err)
	return status == 0 || status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// LoggingHook reports worker lifecycle events for status check jobs.
type LoggingHook struct {
	logger job.Logger
}

func NewLoggingHook(logger job.Logger) *LoggingHook {
	return &LoggingHook{logger: ensureLogger(logger)}
}

func ensureLogger(logger job.Logger) job.Logger {
	if logger == nil {
		return job.GoLogger(glog.Nop())
	}
	return logger
}

func (h *LoggingHook) OnStart(_ context.Context, event worker.Event) {
	h.logger.Debug("status check started", eventArgs(event)...)
}

func (h *LoggingHook) OnSuccess(_ context.Context, event worker.Event) {
	h.logger.Debug("status check finished", eventArgs(event)...)
}

func (h *LoggingHook) OnFailure(_ context.Context, event worker.Event) {
	h.logger.Error("status check errored", eventArgs(event)...)
}

func (h *LoggingHook) OnRetry(_ context.Context, event worker.Event) {
	h.logger.Info("status check rescheduled", eventArgs(event)...)
}

func eventArgs(event worker.Event) []any {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	args := []any{"attempt", event.Attempt, "delay_ms", event.Delay.Milliseconds(), "duration_ms", event.Duration.Milliseconds()}
	if message != nil {
		args = append(args, "job_id", message.JobID, "payment_id", stringParam(message.Parameters, ParamPaymentID))
	}
	if event.Err != nil {
		args = append(args, "error", event.Err)
	}
	return args
}

func stringParam(params map[string]any, key string) string {
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	if text, ok := value.(string); ok {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

var _ worker.Hook = (*LoggingHook)(nil)
