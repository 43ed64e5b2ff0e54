// Package analytics queues analytics events and delivers them one at a time,
// in the order they were tracked, with a bounded number of attempts each.
// Delivery is at-least-once; an event that exhausts its attempts is dropped.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"paykit/internal/metadata"
	"paykit/internal/platform/metrics"
	"paykit/pkg/platform/values"
)

const (
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second

	dropRetriesExhausted = "retries_exhausted"
	dropClosed           = "closed"
)

// Deliverer sends one envelope. A nil error means the event was accepted.
type Deliverer interface {
	Deliver(ctx context.Context, env Envelope) error
}

// Identity supplies the profile and device ids events are stamped with.
type Identity interface {
	ProfileID() (id string, temporary bool)
	DeviceID() string
}

// Composer builds the installation metadata attached at delivery time.
type Composer interface {
	Compose(ctx context.Context, deviceID string) metadata.InstallationMetadata
}

// CountrySource resolves the store country attached at delivery time.
type CountrySource interface {
	GetIfAvailable(ctx context.Context) string
}

// Pipeline is a FIFO of events drained by a single consumer goroutine.
type Pipeline struct {
	deliverer Deliverer
	identity  Identity
	composer  Composer
	country   CountrySource
	store     string

	logger         *slog.Logger
	metrics        *metrics.Metrics
	now            func() time.Time
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration

	queue *queue
	wake  chan struct{}

	mu     sync.Mutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}
	done   chan struct{}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// WithMaxAttempts sets the number of delivery attempts per event, first one included.
func WithMaxAttempts(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithBackoff sets the exponential backoff bounds between attempts.
func WithBackoff(initial, maxInterval time.Duration) Option {
	return func(p *Pipeline) {
		if initial > 0 {
			p.initialBackoff = initial
		}
		if maxInterval > 0 {
			p.maxBackoff = maxInterval
		}
	}
}

// WithCountry attaches the store country to every envelope.
func WithCountry(src CountrySource) Option {
	return func(p *Pipeline) {
		p.country = src
	}
}

// New starts the consumer. store names the app store events are attributed to.
func New(deliverer Deliverer, identity Identity, composer Composer, store string, opts ...Option) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		deliverer:      deliverer,
		identity:       identity,
		composer:       composer,
		store:          store,
		now:            time.Now,
		maxAttempts:    DefaultMaxAttempts,
		initialBackoff: DefaultInitialBackoff,
		maxBackoff:     DefaultMaxBackoff,
		queue:          newQueue(),
		wake:           make(chan struct{}, 1),
		ctx:            ctx,
		cancel:         cancel,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.run()
	return p
}

// Track stamps ev and queues it for delivery. It never blocks on delivery and
// never reports failure; the caller's ctx is used for logging only. The queued
// event holds its own copy of ev.Properties, so the caller may reuse the map.
func (p *Pipeline) Track(ctx context.Context, ev Event) {
	ev.EventID = uuid.NewString()
	ev.Timestamp = p.now().UTC()
	ev.ProfileID, _ = p.identity.ProfileID()
	ev.DeviceID = p.identity.DeviceID()
	ev.Store = p.store
	ev.Properties = values.CloneMap(ev.Properties)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		if p.logger != nil {
			p.logger.WarnContext(ctx, "analytics pipeline closed, dropping event",
				"event_type", ev.EventType,
				"event_id", ev.EventID,
			)
		}
		if p.metrics != nil {
			p.metrics.IncEventsDropped(dropClosed)
		}
		return
	}
	depth := p.queue.push(ev)
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.IncEventsTracked()
		p.metrics.SetEventQueueDepth(depth)
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued events not yet picked up.
func (p *Pipeline) Pending() int {
	return p.queue.len()
}

// Close stops accepting events and waits for the queue to drain. If ctx ends
// first, in-flight and remaining events are abandoned and ctx.Err is returned.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.stop)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}

func (p *Pipeline) run() {
	defer close(p.done)
	for {
		ev, depth, ok := p.queue.pop()
		if !ok {
			select {
			case <-p.wake:
				continue
			case <-p.stop:
				// Track cannot push once stop is closed, so empty here means drained.
				if p.queue.len() == 0 {
					return
				}
				continue
			}
		}
		if p.metrics != nil {
			p.metrics.SetEventQueueDepth(depth)
		}
		p.deliver(ev)
	}
}

func (p *Pipeline) deliver(ev Event) {
	ctx := p.ctx
	if ctx.Err() != nil {
		p.drop(ev, dropClosed, ctx.Err(), 0)
		return
	}
	start := time.Now()
	env := p.envelope(ctx, ev)

	attempt := 0
	op := func() (err error) {
		attempt++
		if p.metrics != nil {
			p.metrics.IncEventAttempts()
		}
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("deliverer panic: %v", r)
			}
		}()
		return p.deliverer.Deliver(ctx, env)
	}
	notify := func(err error, next time.Duration) {
		if p.logger != nil {
			p.logger.DebugContext(ctx, "event delivery failed, retrying",
				"event_type", ev.EventType,
				"event_id", ev.EventID,
				"attempt", attempt,
				"retry_in", next,
				"error", err,
			)
		}
	}

	err := backoff.RetryNotify(op, p.policy(ctx), notify)
	if err != nil {
		reason := dropRetriesExhausted
		if ctx.Err() != nil {
			reason = dropClosed
		}
		p.drop(ev, reason, err, attempt)
		return
	}
	if p.metrics != nil {
		p.metrics.IncEventsDelivered()
		p.metrics.ObserveEventDelivery(time.Since(start))
	}
}

func (p *Pipeline) policy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initialBackoff
	b.MaxInterval = p.maxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.maxAttempts-1)), ctx)
}

// envelope resolves the delivery-time context for the device the event was
// stamped with. It waits for attribute resolution, which is why it runs on the
// consumer and not in Track.
func (p *Pipeline) envelope(ctx context.Context, ev Event) Envelope {
	env := Envelope{Event: ev}
	if p.country != nil {
		env.Country = p.country.GetIfAvailable(ctx)
	}
	if p.composer != nil {
		env.Metadata = p.composer.Compose(ctx, ev.DeviceID)
	}
	return env
}

func (p *Pipeline) drop(ev Event, reason string, err error, attempts int) {
	if p.metrics != nil {
		p.metrics.IncEventsDropped(reason)
	}
	if p.logger != nil {
		p.logger.Warn("dropping analytics event",
			"event_type", ev.EventType,
			"event_id", ev.EventID,
			"reason", reason,
			"attempts", attempts,
			"error", err,
		)
	}
}
