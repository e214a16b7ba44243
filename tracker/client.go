// Package tracker is the public entry point of the SDK.
//
// A Client records screen views and clicks, keeps them in a durable on-disk
// queue and delivers each one to the collector in the background, retrying
// with exponential backoff. None of its methods block on the network.
//
//	c := tracker.New()
//	if err := c.Initialize(tracker.DefaultConfig(apiKey, "https://collector.example.com/events")); err != nil {
//	    return err
//	}
//	defer c.Close(context.Background())
//
//	c.TrackScreen("Home")
//	c.TrackClick("BuyButton")
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/PratikDhanave/event-analytics-sdk/internal/dispatch"
	"github.com/PratikDhanave/event-analytics-sdk/internal/models"
	"github.com/PratikDhanave/event-analytics-sdk/internal/persist"
	"github.com/PratikDhanave/event-analytics-sdk/internal/queue"
	"github.com/PratikDhanave/event-analytics-sdk/internal/retry"
)

// ErrAlreadyInitialized is returned by a second Initialize.
var ErrAlreadyInitialized = errors.New("tracker already initialized")

// ErrClosed is returned by Initialize and Pending after Close.
var ErrClosed = errors.New("tracker closed")

// Option customizes a Client.
type Option func(*Client)

// WithClock sets the source of event timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithBadgerStore keeps the queue in a BadgerDB directory instead of a JSON
// file. The database is opened by Initialize.
func WithBadgerStore(dir string) Option {
	return func(c *Client) { c.badgerDir = dir }
}

type state int

const (
	stateNew state = iota
	stateRunning
	stateClosed
)

// Client is one independent tracking pipeline. Create it with New.
type Client struct {
	now       func() time.Time
	badgerDir string

	mu         sync.Mutex
	state      state
	cfg        Config
	logger     *zap.Logger
	early      []models.Event
	writer     *persist.Writer
	queue      *queue.Manager
	dispatcher *dispatch.Dispatcher
	hydrated   <-chan struct{}
	closeStore func() error
	flushes    sync.WaitGroup
}

// New returns an uninitialized client. Events tracked before Initialize are
// held in memory and queued once it runs.
func New(opts ...Option) *Client {
	c := &Client{
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize validates cfg, wires the pipeline and starts loading the queue
// left by a previous run. It returns without waiting for disk or network;
// with FlushAtLaunch the reloaded events are re-sent once loading completes.
func (c *Client) Initialize(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateRunning:
		return ErrAlreadyInitialized
	case stateClosed:
		return ErrClosed
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("analytics")

	store, closeStore, err := c.openStore(cfg)
	if err != nil {
		return err
	}

	dispatchOpts := []dispatch.Option{dispatch.WithLogger(logger)}
	if cfg.HTTPClient != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.TracerProvider != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithTracerProvider(cfg.TracerProvider))
	}

	c.cfg = cfg
	c.logger = logger
	c.closeStore = closeStore
	c.writer = persist.NewWriter(store, logger)
	c.queue = queue.New(c.writer, logger)
	c.dispatcher = dispatch.New(retry.Policy{MaxAttempts: cfg.MaxRetryCount}, dispatchOpts...)
	c.dispatcher.Setup(dispatch.Target{Endpoint: cfg.Endpoint, APIKey: cfg.APIKey})
	c.hydrated = c.queue.Load()
	c.state = stateRunning

	early := c.early
	c.early = nil
	for _, e := range early {
		c.queue.Add(e)
		c.dispatcher.SendWithRetry(e, c.queue)
	}

	if cfg.FlushAtLaunch {
		c.flushLocked()
	}

	logger.Info("tracker initialized",
		zap.String("endpoint", cfg.Endpoint),
		zap.Bool("flush_at_launch", cfg.FlushAtLaunch),
		zap.Int("max_retry_count", cfg.MaxRetryCount),
		zap.Int("early_events", len(early)))
	return nil
}

// TrackScreen records a screen view.
func (c *Client) TrackScreen(name string) {
	c.Track(models.TypeScreenView, name)
}

// TrackClick records a click.
func (c *Client) TrackClick(name string) {
	c.Track(models.TypeClick, name)
}

// Track records an event of any type, queues it durably and starts delivering
// it in the background.
func (c *Client) Track(eventType, name string) {
	e := models.NewEvent(eventType, name, c.now())

	c.mu.Lock()
	switch c.state {
	case stateNew:
		c.early = append(c.early, e)
		c.mu.Unlock()
		return
	case stateClosed:
		logger := c.logger
		c.mu.Unlock()
		logger.Debug("tracker closed, dropping event", zap.String("type", eventType), zap.String("name", name))
		return
	}
	q, d, logger := c.queue, c.dispatcher, c.logger
	c.mu.Unlock()

	q.Add(e)
	d.SendWithRetry(e, q)
	logger.Debug("track "+eventType, zap.String("name", name), zap.Stringer("event_id", e.ID))
}

// Flush re-sends every queued event concurrently. Events that already have a
// delivery in progress are left to it.
func (c *Client) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateRunning {
		return
	}
	c.flushLocked()
}

func (c *Client) flushLocked() {
	q, d, hydrated, logger := c.queue, c.dispatcher, c.hydrated, c.logger

	c.flushes.Add(1)
	go func() {
		defer c.flushes.Done()

		<-hydrated
		events, err := q.Snapshot(context.Background())
		if err != nil {
			logger.Debug("flush skipped", zap.Error(err))
			return
		}
		logger.Debug("flushing queue", zap.Int("events", len(events)))
		for _, e := range events {
			d.SendWithRetry(e, q)
		}
	}()
}

// Pending returns how many events are waiting for delivery.
func (c *Client) Pending(ctx context.Context) (int, error) {
	c.mu.Lock()
	switch c.state {
	case stateNew:
		n := len(c.early)
		c.mu.Unlock()
		return n, nil
	case stateClosed:
		c.mu.Unlock()
		return 0, ErrClosed
	}
	q, hydrated := c.queue, c.hydrated
	c.mu.Unlock()

	select {
	case <-hydrated:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	return q.Len(ctx)
}

// Close stops retries, lets queued mutations finish and writes the final
// queue to disk. Undelivered events are resent on the next launch.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.state != stateRunning {
		c.state = stateClosed
		c.mu.Unlock()
		return nil
	}
	c.state = stateClosed
	c.mu.Unlock()

	c.dispatcher.Close()
	c.flushes.Wait()

	// The queue saves nothing until it has loaded, so closing it earlier
	// would lose events tracked since Initialize.
	var errs []error
	select {
	case <-c.hydrated:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("wait for event store load: %w", ctx.Err()))
	}
	c.queue.Close()

	if err := c.writer.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close event store: %w", err))
	}
	if c.closeStore != nil {
		if err := c.closeStore(); err != nil {
			errs = append(errs, fmt.Errorf("close event store: %w", err))
		}
	}

	c.logger.Info("tracker closed")
	return errors.Join(errs...)
}

func (c *Client) openStore(cfg Config) (persist.Store, func() error, error) {
	if c.badgerDir != "" {
		bs, err := persist.OpenBadger(c.badgerDir)
		if err != nil {
			return nil, nil, err
		}
		return bs, bs.Close, nil
	}

	path := cfg.StorePath
	if path == "" {
		p, err := persist.DefaultPath()
		if err != nil {
			return nil, nil, err
		}
		path = p
	}
	return persist.NewFileStore(path), nil, nil
}
