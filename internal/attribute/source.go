// Package attribute exposes the five independently latent installation
// attributes. Each is resolved at most once per process and then served from
// memory; an attribute whose resolution failed stays unavailable.
package attribute

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"paykit/internal/platform/metrics"
	dErrors "paykit/pkg/domain-errors"
	"paykit/pkg/platform/memo"
)

const (
	NameAdvertisingID = "advertising_id"
	NameAppSetID      = "app_set_id"
	NameUserAgent     = "user_agent"
	NameStoreCountry  = "store_country"
	NameIPAddress     = "ip"
)

// DefaultTimeout bounds a single underlying provider call.
const DefaultTimeout = 5 * time.Second

// valueKey is the only key each source's cache holds.
const valueKey = "value"

var errNoProvider = errors.New("no provider on this platform")

// Source is one memoized attribute.
type Source interface {
	Name() string
	// GetIfAvailable returns the value, or "" when it is unavailable. It never
	// fails and resolves the underlying provider at most once.
	GetIfAvailable(ctx context.Context) string
}

type settings struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
}

// Option configures a source.
type Option func(*settings)

func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}

// WithTimeout overrides DefaultTimeout for the provider call.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func buildSettings(opts []Option) settings {
	s := settings{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

type fetchFunc func(ctx context.Context) (string, error)

// normalizeFunc validates a raw provider value and returns its canonical form.
type normalizeFunc func(raw string) (string, error)

type source struct {
	name  string
	cache *memo.Cache[string]
}

func newSource(name string, fetch fetchFunc, normalize normalizeFunc, s settings) *source {
	resolve := func(ctx context.Context, _ string) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		raw, err := fetch(ctx)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeAttributeUnavailable, name+" unavailable")
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return "", dErrors.New(dErrors.CodeAttributeUnavailable, name+" is empty")
		}
		if normalize == nil {
			return raw, nil
		}
		v, err := normalize(raw)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeAttributeUnavailable, name+" rejected")
		}
		return v, nil
	}

	opts := []memo.Option[string]{memo.WithLogger[string](s.logger)}
	if s.metrics != nil {
		m := s.metrics
		opts = append(opts, memo.WithObserver[string](func(_ string, ok bool, _ time.Duration) {
			m.ObserveAttributeResolution(name, ok)
		}))
	}
	return &source{
		name:  name,
		cache: memo.New(name, resolve, opts...),
	}
}

func (s *source) Name() string { return s.name }

func (s *source) GetIfAvailable(ctx context.Context) string {
	v, ok := s.cache.Get(ctx, valueKey)
	if !ok {
		return ""
	}
	return v
}

// Settled reports whether resolution has finished, successfully or not.
func (s *source) Settled() bool {
	return s.cache.Resolved(valueKey)
}

func missing(context.Context) (string, error) {
	return "", errNoProvider
}
