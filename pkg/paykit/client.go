// Package paykit is the SDK entry point. New wires every component from a
// Config; the returned Client is safe for concurrent use and must be closed.
package paykit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"paykit/internal/analytics"
	"paykit/internal/analytics/kafkasink"
	"paykit/internal/attribute"
	"paykit/internal/backend"
	"paykit/internal/kvstore"
	"paykit/internal/metadata"
	"paykit/internal/platform/logger"
	"paykit/internal/platform/metrics"
	redisclient "paykit/internal/platform/redis"
	"paykit/internal/profile"
	"paykit/internal/transport"
	dErrors "paykit/pkg/domain-errors"
)

// Client is one SDK instance.
type Client struct {
	logger   *slog.Logger
	store    *kvstore.Store
	redis    *redisclient.Client
	kafka    *kafkasink.Deliverer
	composer *metadata.Composer
	profiles *profile.Manager
	pipeline *analytics.Pipeline
}

type options struct {
	logger         *slog.Logger
	registerer     prometheus.Registerer
	tracerProvider trace.TracerProvider
	httpClient     *http.Client
}

// Option configures New.
type Option func(*options)

// WithLogger replaces the logger built from Config.Log.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegisterer registers SDK metrics on reg instead of a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithHTTPClient replaces the HTTP/2 client the transport builds.
func WithHTTPClient(h *http.Client) Option {
	return func(o *options) {
		o.httpClient = h
	}
}

// New validates cfg and builds the SDK. Persisted identity is loaded from the
// configured store before New returns.
func New(ctx context.Context, cfg *Config, platform Platform, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "config required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if platform.Device == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "platform device info required")
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.New(cfg.Log.Level, cfg.Log.Format)
	}
	if o.registerer == nil {
		o.registerer = prometheus.NewRegistry()
	}
	m := metrics.New(o.registerer)

	c := &Client{logger: o.logger}
	ok := false
	defer func() {
		if !ok {
			_ = c.closeResources()
		}
	}()

	store, rc, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.store, c.redis = store, rc

	topts := []transport.Option{
		transport.WithTimeout(cfg.Transport.Timeout),
		transport.WithLogger(o.logger),
		transport.WithMetrics(m),
	}
	if o.tracerProvider != nil {
		topts = append(topts, transport.WithTracerProvider(o.tracerProvider))
	}
	if o.httpClient != nil {
		topts = append(topts, transport.WithHTTPClient(o.httpClient))
	}
	tc, err := transport.New(topts...)
	if err != nil {
		return nil, err
	}
	api := backend.New(tc, cfg.BaseURL, cfg.APIKey, metadata.SDKVersion)

	sources := attribute.NewSet(attribute.Providers{
		AdvertisingID: platform.AdvertisingID,
		AppSetID:      platform.AppSetID,
		UserAgent:     platform.UserAgent,
		StoreCountry:  platform.StoreCountry,
	}, tc, cfg.Attributes.IPLookupURL,
		attribute.WithLogger(o.logger),
		attribute.WithMetrics(m),
		attribute.WithTimeout(cfg.Attributes.Timeout),
	)
	c.composer = metadata.NewComposer(platform.Device, sources,
		metadata.WithLogger(o.logger),
		metadata.WithMetrics(m),
	)

	c.profiles, err = profile.NewManager(ctx, store, api, c.composer,
		profile.WithLogger(o.logger),
		profile.WithMetrics(m),
		profile.WithStaleAfter(cfg.Profile.StaleWindow),
		profile.WithReadiness(cfg.Profile.ReadyTimeout, cfg.Profile.ReadyAttempts),
	)
	if err != nil {
		return nil, err
	}

	var deliverer analytics.Deliverer = analytics.NewHTTPDeliverer(api)
	if cfg.Analytics.Sink == "kafka" {
		c.kafka, err = kafkasink.New(ctx, kafkasink.Config{
			Brokers:     cfg.Analytics.Kafka.BrokerList(),
			Topic:       cfg.Analytics.Kafka.Topic,
			CreateTopic: cfg.Analytics.Kafka.CreateTopic,
		}, kafkasink.WithLogger(o.logger))
		if err != nil {
			return nil, err
		}
		deliverer = c.kafka
	}

	c.pipeline = analytics.New(deliverer, c.profiles, c.composer, cfg.Store,
		analytics.WithLogger(o.logger),
		analytics.WithMetrics(m),
		analytics.WithCountry(sources.StoreCountry),
		analytics.WithMaxAttempts(cfg.Analytics.MaxAttempts),
		analytics.WithBackoff(cfg.Analytics.InitialBackoff, cfg.Analytics.MaxBackoff),
	)

	ok = true
	o.logger.InfoContext(ctx, "paykit started",
		"sdk_version", metadata.SDKVersion,
		"storage", cfg.Storage.Driver,
		"analytics_sink", cfg.Analytics.Sink,
	)
	return c, nil
}

func openStore(ctx context.Context, cfg *Config) (*kvstore.Store, *redisclient.Client, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return kvstore.New(kvstore.NewMemory()), nil, nil
	case "sqlite", "postgres":
		db, err := kvstore.OpenSQL(ctx, cfg.Storage.Driver, cfg.Storage.DSN, cfg.Storage.Namespace)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
		}
		return kvstore.New(db), nil, nil
	case "redis":
		rc, err := redisclient.New(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis store: %w", err)
		}
		return kvstore.New(kvstore.NewRedis(rc.Client, cfg.Storage.Namespace)), rc, nil
	}
	return nil, nil, dErrors.New(dErrors.CodeConfiguration, "unsupported storage.driver: "+cfg.Storage.Driver)
}

// Track queues an analytics event. It returns immediately and never fails;
// delivery problems are logged and counted.
func (c *Client) Track(ctx context.Context, eventType string, properties map[string]any) {
	c.pipeline.Track(ctx, analytics.Event{EventType: eventType, Properties: properties})
}

// ProfileID returns the current profile id and whether it is still temporary.
func (c *Client) ProfileID() (id string, temporary bool) {
	return c.profiles.ProfileID()
}

// Profile returns the profile, creating or refreshing it on the backend when needed.
func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	return c.profiles.GetOrCreateProfile(ctx)
}

// RunWhenProfileReady runs fn once the backend has confirmed the profile.
func (c *Client) RunWhenProfileReady(ctx context.Context, fn ReadyFunc) error {
	return c.profiles.RunWhenProfileReady(ctx, fn)
}

// Logout forgets the profile identity and everything persisted for it.
func (c *Client) Logout(ctx context.Context) error {
	return c.profiles.ClearCache(ctx)
}

// Metadata composes a fresh installation metadata snapshot.
func (c *Client) Metadata(ctx context.Context) InstallationMetadata {
	return c.composer.Compose(ctx, c.profiles.DeviceID())
}

// Close drains queued events (bounded by ctx) and releases every resource.
func (c *Client) Close(ctx context.Context) error {
	var err error
	if c.pipeline != nil {
		if cerr := c.pipeline.Close(ctx); cerr != nil {
			err = fmt.Errorf("drain analytics: %w", cerr)
		}
	}
	return errors.Join(err, c.closeResources())
}

func (c *Client) closeResources() error {
	var errs []error
	if c.kafka != nil {
		c.kafka.Close()
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
