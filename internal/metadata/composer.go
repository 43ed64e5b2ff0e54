// Package metadata assembles installation metadata snapshots from the device
// facts and the attribute sources.
package metadata

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"paykit/internal/attribute"
	"paykit/internal/platform/metrics"
)

// Composer builds InstallationMetadata. It is safe for concurrent use.
type Composer struct {
	device     DeviceInfo
	facts      Facts
	sources    *attribute.Set
	sdkVersion string
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures a Composer.
type Option func(*Composer)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Composer) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Composer) {
		c.metrics = m
	}
}

// WithSDKVersion overrides SDKVersion, for wrappers that ship their own version.
func WithSDKVersion(v string) Option {
	return func(c *Composer) {
		if v != "" {
			c.sdkVersion = v
		}
	}
}

// NewComposer reads the device facts once and keeps them for every snapshot.
func NewComposer(device DeviceInfo, sources *attribute.Set, opts ...Option) *Composer {
	c := &Composer{
		device:     device,
		facts:      device.Facts(),
		sources:    sources,
		sdkVersion: SDKVersion,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose waits for all five attributes to settle and returns a new snapshot.
// An unavailable attribute leaves its field empty and never fails the compose.
func (c *Composer) Compose(ctx context.Context, deviceID string) InstallationMetadata {
	var adID, appSetID, userAgent, country, ip string

	// Branches never return an error so one slow or failing source cannot
	// cancel its siblings.
	g, gctx := errgroup.WithContext(ctx)
	c.read(gctx, g, c.sources.AdvertisingID, &adID)
	c.read(gctx, g, c.sources.AppSetID, &appSetID)
	c.read(gctx, g, c.sources.UserAgent, &userAgent)
	c.read(gctx, g, c.sources.StoreCountry, &country)
	c.read(gctx, g, c.sources.IPAddress, &ip)
	_ = g.Wait()

	md := InstallationMetadata{
		DeviceID:      deviceID,
		AppBuild:      c.facts.AppBuild,
		AppVersion:    c.facts.AppVersion,
		DeviceModel:   c.facts.DeviceModel,
		Locale:        c.device.Locale(),
		OSVersion:     c.facts.OSVersion,
		Platform:      c.facts.Platform,
		Timezone:      c.device.Timezone(),
		UserAgent:     userAgent,
		AdvertisingID: adID,
		AppSetID:      appSetID,
		AndroidID:     c.facts.AndroidID,
		StoreCountry:  country,
		IP:            ip,
		SDKVersion:    c.sdkVersion,
	}
	if c.logger != nil {
		c.logger.DebugContext(ctx, "composed installation metadata",
			"device_id", deviceID,
			"has_advertising_id", adID != "",
			"has_ip", ip != "",
			"store_country", country,
		)
	}
	return md
}

func (c *Composer) read(ctx context.Context, g *errgroup.Group, src attribute.Source, dst *string) {
	if src == nil {
		return
	}
	g.Go(func() error {
		start := time.Now()
		*dst = src.GetIfAvailable(ctx)
		if c.metrics != nil {
			c.metrics.ObserveAttributeLatency(src.Name(), time.Since(start))
		}
		return nil
	})
}
