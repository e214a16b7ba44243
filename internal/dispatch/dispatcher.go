// Package dispatch delivers queued events to the collector over HTTP and
// reschedules failed deliveries according to the retry policy.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/PratikDhanave/event-analytics-sdk/internal/models"
	"github.com/PratikDhanave/event-analytics-sdk/internal/retry"
)

// RequestTimeout bounds a single delivery attempt.
const RequestTimeout = 10 * time.Second

const tracerName = "github.com/PratikDhanave/event-analytics-sdk/internal/dispatch"

var (
	// ErrNotConfigured is returned by Send before Setup.
	ErrNotConfigured = errors.New("dispatcher not configured")
	// ErrEncode wraps event serialization failures.
	ErrEncode = errors.New("encode event")
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("dispatcher closed")
)

// StatusError reports a non-2xx collector response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("collector responded %d", e.StatusCode)
}

// Target is where and as whom events are sent.
type Target struct {
	Endpoint string
	APIKey   string
}

// Queue is the subset of the queue manager the dispatcher reports to. The
// dispatcher never mutates events itself.
type Queue interface {
	MarkSuccess(id uuid.UUID)
	MarkRetry(id uuid.UUID)
	Get(ctx context.Context, id uuid.UUID) (models.Event, bool, error)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient overrides the client used for delivery.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithTracerProvider sets the provider for delivery spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *Dispatcher) { d.tracerProvider = tp }
}

// WithTimer replaces time.AfterFunc for scheduling retries.
func WithTimer(after func(time.Duration, func()) *time.Timer) Option {
	return func(d *Dispatcher) { d.afterFunc = after }
}

// Dispatcher sends one event per request and drives its retry chain.
type Dispatcher struct {
	policy         retry.Policy
	client         *http.Client
	logger         *zap.Logger
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	afterFunc      func(time.Duration, func()) *time.Timer

	target atomic.Pointer[Target]

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	inflight map[uuid.UUID]struct{}
	timers   map[uuid.UUID]*time.Timer
	wg       sync.WaitGroup
}

// New returns a dispatcher that retries according to policy.
func New(policy retry.Policy, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		policy:    policy,
		client:    &http.Client{Timeout: RequestTimeout},
		logger:    zap.NewNop(),
		afterFunc: time.AfterFunc,
		inflight:  make(map[uuid.UUID]struct{}),
		timers:    make(map[uuid.UUID]*time.Timer),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.tracerProvider == nil {
		d.tracerProvider = otel.GetTracerProvider()
	}
	d.tracer = d.tracerProvider.Tracer(tracerName)
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Setup sets the delivery target. It may be called again to replace it.
func (d *Dispatcher) Setup(t Target) {
	d.target.Store(&t)
}

// Send performs one delivery attempt. A nil error means the collector
// answered 2xx.
func (d *Dispatcher) Send(ctx context.Context, e models.Event) (err error) {
	ctx, span := d.tracer.Start(ctx, "analytics.deliver", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("event.id", e.ID.String()),
			attribute.String("event.type", e.Type),
			attribute.Int("event.attempts", e.Attempts),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	target := d.target.Load()
	if target == nil {
		return ErrNotConfigured
	}

	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}

	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-API-Key", target.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

// Deliver is Send reduced to an outcome.
func (d *Dispatcher) Deliver(ctx context.Context, e models.Event) bool {
	return d.Send(ctx, e) == nil
}

// SendWithRetry delivers e in the background and keeps retrying with backoff
// until it succeeds or the policy gives up. Every attempt, the first included,
// sends the event as the queue holds it at that moment; an event no longer
// queued is not sent. Only one chain runs per event id; a call for an id that
// already has a chain is ignored.
func (d *Dispatcher) SendWithRetry(e models.Event, q Queue) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if _, busy := d.inflight[e.ID]; busy {
		d.mu.Unlock()
		d.logger.Debug("delivery already in flight", zap.Stringer("event_id", e.ID))
		return
	}
	d.inflight[e.ID] = struct{}{}
	d.wg.Add(1)
	d.mu.Unlock()

	go d.next(e.ID, q)
}

// Wait blocks until no delivery chain is in flight.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close cancels requests in progress, stops pending retry timers and refuses
// new chains. Events stay queued for the next flush.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.cancel()
	for id, t := range d.timers {
		if t.Stop() {
			delete(d.timers, id)
			delete(d.inflight, id)
			d.wg.Done()
		}
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) attempt(e models.Event, q Queue) {
	err := d.Send(d.ctx, e)
	if err == nil {
		q.MarkSuccess(e.ID)
		d.logger.Debug("event delivered", zap.Stringer("event_id", e.ID), zap.Int("attempts", e.Attempts))
		d.finish(e.ID)
		return
	}

	if errors.Is(err, context.Canceled) && d.ctx.Err() != nil {
		d.finish(e.ID)
		return
	}

	q.MarkRetry(e.ID)
	failed := e.Attempts + 1

	if !d.policy.CanRetry(failed) {
		d.logger.Warn("event delivery gave up, kept for next flush",
			zap.Stringer("event_id", e.ID),
			zap.String("type", e.Type),
			zap.Int("attempts", failed),
			zap.Error(err))
		d.finish(e.ID)
		return
	}

	delay := d.policy.Delay(failed)
	d.logger.Info("event delivery failed, retrying",
		zap.Stringer("event_id", e.ID),
		zap.Int("attempts", failed),
		zap.Duration("delay", delay),
		zap.Error(err))

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		delete(d.inflight, e.ID)
		d.wg.Done()
		return
	}
	d.timers[e.ID] = d.afterFunc(delay, func() {
		d.mu.Lock()
		delete(d.timers, e.ID)
		d.mu.Unlock()
		d.next(e.ID, q)
	})
}

// next re-reads the event from the queue so the attempt uses the latest
// attempt count, and ends the chain if the event is gone.
func (d *Dispatcher) next(id uuid.UUID, q Queue) {
	current, ok, err := q.Get(d.ctx, id)
	if err != nil || !ok {
		if err != nil {
			d.logger.Debug("retry skipped, queue unavailable", zap.Stringer("event_id", id), zap.Error(err))
		}
		d.finish(id)
		return
	}

	d.attempt(current, q)
}

func (d *Dispatcher) finish(id uuid.UUID) {
	d.mu.Lock()
	delete(d.inflight, id)
	d.mu.Unlock()
	d.wg.Done()
}
