package paykit_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"paykit/internal/backend/backendtest"
	"paykit/internal/platform/logger"
	dErrors "paykit/pkg/domain-errors"
	"paykit/pkg/paykit"
	"paykit/pkg/platform/config"
)

type device struct{}

func (device) Facts() paykit.DeviceFacts {
	return paykit.DeviceFacts{
		AppBuild:    "87",
		AppVersion:  "2.3.0",
		DeviceModel: "Pixel 8",
		OSVersion:   "14",
		Platform:    "android",
		AndroidID:   "f00dfeed",
	}
}

func (device) Locale() string   { return "en_US" }
func (device) Timezone() string { return "America/New_York" }

type storeCountry string

func (c storeCountry) StoreCountry(context.Context) (string, error) { return string(c), nil }

type userAgent string

func (u userAgent) UserAgent(context.Context) (string, error) { return string(u), nil }

type ClientSuite struct {
	suite.Suite
	ctx      context.Context
	fake     *backendtest.Server
	ipLookup *httptest.Server
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.ctx = context.Background()
	s.fake = backendtest.New("pk_test")
	// The IP lookup is down, so the ip attribute is unavailable.
	s.ipLookup = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
}

func (s *ClientSuite) TearDownTest() {
	s.ipLookup.Close()
	s.fake.Close()
}

func (s *ClientSuite) config() *config.Config {
	return &config.Config{
		APIKey:     "pk_test",
		BaseURL:    s.fake.URL(),
		Store:      "play_store",
		Storage:    config.StorageConfig{Driver: "memory"},
		Attributes: config.AttributeConfig{Timeout: time.Second, IPLookupURL: s.ipLookup.URL},
		Analytics: config.AnalyticsConfig{
			Sink:           "http",
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		},
		Profile: config.ProfileConfig{ReadyTimeout: 2 * time.Second, ReadyAttempts: 3},
	}
}

func (s *ClientSuite) platform() paykit.Platform {
	return paykit.Platform{
		Device:       device{},
		StoreCountry: storeCountry("US"),
		UserAgent:    userAgent("Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"),
	}
}

func (s *ClientSuite) newClient(cfg *config.Config) *paykit.Client {
	c, err := paykit.New(s.ctx, cfg, s.platform(), paykit.WithLogger(logger.Discard()))
	s.Require().NoError(err)
	return c
}

func (s *ClientSuite) close(c *paykit.Client) {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	s.Require().NoError(c.Close(ctx))
}

func (s *ClientSuite) TestPurchaseEventWithTemporaryProfile() {
	c := s.newClient(s.config())

	tempID, temporary := c.ProfileID()
	s.Require().True(temporary)

	c.Track(s.ctx, "purchase", map[string]any{"product_id": "premium_monthly"})
	s.close(c)

	s.Equal(1, s.fake.EventAttempts())
	events := s.fake.Events()
	s.Require().Len(events, 1)
	ev := events[0]
	s.Equal("purchase", ev.EventType)
	s.Equal(tempID, ev.ProfileID)
	s.Equal("play_store", ev.Store)
	s.Equal("US", ev.Country)
	s.Equal("US", ev.Metadata["store_country"])
	s.NotContains(ev.Metadata, "ip")
	s.NotContains(ev.Metadata, "advertising_id")
	s.Equal("Pixel 8", ev.Metadata["device_model"])
	s.Equal(paykit.SDKVersion, ev.Metadata["sdk_version"])
	s.Equal(ev.DeviceID, ev.Metadata["device_id"])
}

func (s *ClientSuite) TestFailingBackendDropsEventSilently() {
	s.fake.FailEvents(10, http.StatusServiceUnavailable)
	c := s.newClient(s.config())

	c.Track(s.ctx, "paywall_shown", nil)
	s.close(c)

	s.Equal(3, s.fake.EventAttempts())
	s.Empty(s.fake.Events())
}

func (s *ClientSuite) TestProfileLifecycle() {
	c := s.newClient(s.config())
	defer s.close(c)

	var ready *paykit.Profile
	err := c.RunWhenProfileReady(s.ctx, func(_ context.Context, p *paykit.Profile) error {
		ready = p
		return nil
	})
	s.Require().NoError(err)
	s.Require().NotNil(ready)

	id, temporary := c.ProfileID()
	s.False(temporary)
	s.Equal(ready.ProfileID, id)

	p, err := c.Profile(s.ctx)
	s.Require().NoError(err)
	s.Equal(id, p.ProfileID)
	s.Len(s.fake.Creates(), 1)

	s.Require().NoError(c.Logout(s.ctx))
	_, temporary = c.ProfileID()
	s.True(temporary)
}

func (s *ClientSuite) TestMetadataSnapshot() {
	c := s.newClient(s.config())
	defer s.close(c)

	md := c.Metadata(s.ctx)
	s.NotEmpty(md.DeviceID)
	s.Equal("US", md.StoreCountry)
	s.Empty(md.IP)
	s.Equal("America/New_York", md.Timezone)

	b, err := json.Marshal(md)
	s.Require().NoError(err)
	s.NotContains(string(b), `"ip"`)
}

func (s *ClientSuite) TestIdentitySurvivesRestartWithSQLite() {
	cfg := s.config()
	cfg.Storage = config.StorageConfig{
		Driver:    "sqlite",
		DSN:       filepath.Join(s.T().TempDir(), "paykit.db"),
		Namespace: "paykit",
	}

	first := s.newClient(cfg)
	p, err := first.Profile(s.ctx)
	s.Require().NoError(err)
	s.close(first)

	second := s.newClient(cfg)
	defer s.close(second)
	id, temporary := second.ProfileID()
	s.False(temporary)
	s.Equal(p.ProfileID, id)
}

func (s *ClientSuite) TestNewValidates() {
	s.Run("nil config", func() {
		_, err := paykit.New(s.ctx, nil, s.platform())
		s.True(dErrors.HasCode(err, dErrors.CodeConfiguration))
	})
	s.Run("missing api key", func() {
		cfg := s.config()
		cfg.APIKey = ""
		_, err := paykit.New(s.ctx, cfg, s.platform())
		s.True(dErrors.HasCode(err, dErrors.CodeConfiguration))
	})
	s.Run("missing device", func() {
		_, err := paykit.New(s.ctx, s.config(), paykit.Platform{})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}
