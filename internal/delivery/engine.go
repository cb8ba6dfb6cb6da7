package delivery

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/austindbirch/logframe/internal/logging"
	"github.com/austindbirch/logframe/internal/metrics"
	"github.com/austindbirch/logframe/internal/tracing"
)

// MaxAttempts bounds the number of transport calls made for one batch.
const MaxAttempts = 3

// Response is the part of an HTTP response the engine cares about.
type Response struct {
	StatusCode int
}

// Transport sends one request body to the ingestion API. Failures that did
// not yield a response should be reported as *TransportError.
type Transport interface {
	Post(ctx context.Context, url string, body []byte, headers map[string]string) (*Response, error)
}

// Engine delivers batches with bounded retries. It holds only values fixed at
// construction, so one Engine may serve concurrent Deliver calls.
type Engine struct {
	transport Transport
	url       string
	headers   Headers
	backoff   func(attempt int) time.Duration
	sleep     func(time.Duration)
	logger    *logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithBackoff overrides the delay computation used after retryable responses.
func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(e *Engine) { e.backoff = fn }
}

// WithSleep overrides how the engine blocks between retries.
func WithSleep(fn func(time.Duration)) Option {
	return func(e *Engine) { e.sleep = fn }
}

// WithLogger sets the logger used for retry and drop records.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine builds an Engine posting to url with headers through t. Without
// options it uses Backoff, time.Sleep and the default logger.
func NewEngine(t Transport, url string, headers Headers, opts ...Option) *Engine {
	e := &Engine{
		transport: t,
		url:       url,
		headers:   headers,
		backoff:   Backoff,
		sleep:     time.Sleep,
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Deliver sends batch under a freshly generated batch ID. See DeliverID.
func (e *Engine) Deliver(ctx context.Context, batch Batch) bool {
	return e.DeliverID(ctx, uuid.NewString(), batch)
}

// DeliverID sends batch and reports whether the ingestion API accepted it.
// It blocks through retries and backoff sleeps and never returns an error:
// every failure ends with the batch dropped and logged. An empty batch is
// trivially delivered without a request.
func (e *Engine) DeliverID(ctx context.Context, batchID string, batch Batch) bool {
	if len(batch) == 0 {
		e.logger.WithContext(ctx).WithBatch(batchID).Debug("empty batch, nothing to deliver")
		return true
	}
	return e.run(ctx, batchID, batch, 1)
}

// run drives the attempt loop starting at attempt first.
func (e *Engine) run(ctx context.Context, batchID string, batch Batch, first int) bool {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "delivery.deliver",
		attribute.String("batch_id", batchID),
		attribute.Int("batch_size", len(batch)),
	)
	defer span.End()

	log := e.logger.WithContext(ctx).WithBatch(batchID)

	var body []byte
	for attempt := first; ; attempt++ {
		if attempt > MaxAttempts {
			d := NewDrop(batchID, len(batch), attempt, 0, nil, ReasonAttemptsExhausted)
			return e.drop(ctx, log, d, start, false)
		}

		if body == nil {
			b, err := Encode(batch)
			if err != nil {
				d := NewDrop(batchID, len(batch), attempt, 0, err, ReasonEncodeFailed)
				return e.drop(ctx, log, d, start, true)
			}
			body = b
		}

		tracing.AddSpanEvent(ctx, "delivery.attempt", attribute.Int("attempt", attempt))
		resp, err := e.transport.Post(ctx, e.url, body, e.headers.Map())
		if err != nil {
			kind := KindOf(err)
			if kind.Retryable() {
				metrics.RecordAttempt("retryable_error")
				metrics.RecordRetry(kind.String())
				log.WithAttempt(attempt).WithField("kind", kind.String()).WithError(err).
					Warn("transport error, retrying batch")
				continue
			}
			metrics.RecordAttempt("fatal_error")
			d := NewDrop(batchID, len(batch), attempt, 0, err, ReasonTransportError)
			return e.drop(ctx, log, d, start, true)
		}

		code := resp.StatusCode
		metrics.RecordResponse(code)
		span.SetAttributes(attribute.Int("http.status_code", code))

		switch {
		case code >= 200 && code <= 299:
			metrics.RecordAttempt("success")
			metrics.RecordDelivery("delivered", len(batch), time.Since(start))
			tracing.AddSpanEvent(ctx, "delivery.success", attribute.Int("attempt", attempt))
			log.WithAttempt(attempt).WithField("events", len(batch)).Debug("batch delivered")
			return true

		case RetryableStatus(code):
			metrics.RecordAttempt("retryable_status")
			metrics.RecordRetry(statusReason(code))
			delay := e.backoff(attempt)
			metrics.ObserveBackoff(delay)
			tracing.AddSpanEvent(ctx, "delivery.backoff",
				attribute.Int("attempt", attempt),
				attribute.String("delay", delay.String()),
			)
			log.WithAttempt(attempt).WithFields(map[string]any{
				"http_status": code,
				"delay":       delay.String(),
			}).Warn("retryable response, backing off")
			e.sleep(delay)

		default:
			metrics.RecordAttempt("fatal_status")
			d := NewDrop(batchID, len(batch), attempt, code, nil, ReasonFatalStatus)
			return e.drop(ctx, log, d, start, false)
		}
	}
}

func (e *Engine) drop(ctx context.Context, log *logging.LogEntry, d Drop, start time.Time, withStack bool) bool {
	metrics.RecordDrop(string(d.Reason))
	metrics.RecordDelivery("dropped", d.Events, time.Since(start))
	tracing.AddSpanEvent(ctx, "delivery.dropped", attribute.String("reason", string(d.Reason)))
	tracing.SetSpanError(ctx, dropError{d})

	entry := log.WithFields(d.Fields())
	if withStack {
		entry = entry.WithField("stack", string(debug.Stack()))
	}
	switch d.Reason {
	case ReasonAttemptsExhausted:
		entry.Errorf("max attempts reached (%d), dropping batch", MaxAttempts)
	default:
		entry.Errorf("%s, dropping batch", d.Reason)
	}
	return false
}

type dropError struct{ d Drop }

func (e dropError) Error() string {
	if e.d.LastError != "" {
		return string(e.d.Reason) + ": " + e.d.LastError
	}
	return string(e.d.Reason)
}
