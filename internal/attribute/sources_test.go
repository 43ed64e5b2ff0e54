package attribute

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"paykit/internal/platform/metrics"
	"paykit/internal/transport"
)

// stubProvider implements every provider port with one function.
type stubProvider struct {
	calls atomic.Int32
	fn    func(ctx context.Context) (string, error)
}

func (p *stubProvider) get(ctx context.Context) (string, error) {
	p.calls.Add(1)
	return p.fn(ctx)
}

func (p *stubProvider) AdvertisingID(ctx context.Context) (string, error) { return p.get(ctx) }
func (p *stubProvider) AppSetID(ctx context.Context) (string, error)      { return p.get(ctx) }
func (p *stubProvider) UserAgent(ctx context.Context) (string, error)     { return p.get(ctx) }
func (p *stubProvider) StoreCountry(ctx context.Context) (string, error)  { return p.get(ctx) }

func returning(v string, err error) *stubProvider {
	return &stubProvider{fn: func(context.Context) (string, error) { return v, err }}
}

type SourcesSuite struct {
	suite.Suite
	ctx context.Context
}

func TestSourcesSuite(t *testing.T) {
	suite.Run(t, new(SourcesSuite))
}

func (s *SourcesSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *SourcesSuite) TestConcurrentCallersShareOneResolution() {
	release := make(chan struct{})
	p := &stubProvider{fn: func(context.Context) (string, error) {
		<-release
		return "set-123", nil
	}}
	src := NewAppSetID(p)

	const callers = 20
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = src.GetIfAvailable(s.ctx)
		}()
	}
	// Give the callers time to pile up on the in-flight resolution.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	s.Equal(int32(1), p.calls.Load())
	for _, r := range results {
		s.Equal("set-123", r)
	}
}

func (s *SourcesSuite) TestValueIsPermanent() {
	p := returning("set-1", nil)
	src := NewAppSetID(p)

	s.Equal("set-1", src.GetIfAvailable(s.ctx))
	p.fn = func(context.Context) (string, error) { return "set-2", nil }
	s.Equal("set-1", src.GetIfAvailable(s.ctx))
	s.Equal(int32(1), p.calls.Load())
}

func (s *SourcesSuite) TestFailureIsRemembered() {
	p := returning("", errors.New("play services missing"))
	src := NewAdvertisingID(p)

	s.Empty(src.GetIfAvailable(s.ctx))
	s.Empty(src.GetIfAvailable(s.ctx))
	s.Equal(int32(1), p.calls.Load())
	s.True(src.Settled())
}

func (s *SourcesSuite) TestAdvertisingIDValidation() {
	s.Run("valid id passes through", func() {
		src := NewAdvertisingID(returning("38400000-8cf0-11bd-b23e-10b96e40000d", nil))
		s.Equal("38400000-8cf0-11bd-b23e-10b96e40000d", src.GetIfAvailable(s.ctx))
	})
	s.Run("zeroed id is unavailable", func() {
		src := NewAdvertisingID(returning("00000000-0000-0000-0000-000000000000", nil))
		s.Empty(src.GetIfAvailable(s.ctx))
	})
	s.Run("garbage is unavailable", func() {
		src := NewAdvertisingID(returning("not-an-id", nil))
		s.Empty(src.GetIfAvailable(s.ctx))
	})
}

func (s *SourcesSuite) TestStoreCountryNormalized() {
	src := NewStoreCountry(returning(" USA ", nil))
	s.Equal("US", src.GetIfAvailable(s.ctx))
}

func (s *SourcesSuite) TestMissingProviderIsUnavailable() {
	set := NewSet(Providers{}, nil, "")
	s.Empty(set.AdvertisingID.GetIfAvailable(s.ctx))
	s.Empty(set.AppSetID.GetIfAvailable(s.ctx))
	s.Empty(set.UserAgent.GetIfAvailable(s.ctx))
	s.Empty(set.StoreCountry.GetIfAvailable(s.ctx))
	s.Empty(set.IPAddress.GetIfAvailable(s.ctx))
}

func (s *SourcesSuite) TestProviderCallIsBounded() {
	p := &stubProvider{fn: func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	src := NewUserAgent(p, WithTimeout(30*time.Millisecond))

	start := time.Now()
	s.Empty(src.GetIfAvailable(s.ctx))
	s.Less(time.Since(start), 2*time.Second)
}

func (s *SourcesSuite) TestCallerCancellationDoesNotPoisonValue() {
	release := make(chan struct{})
	p := &stubProvider{fn: func(context.Context) (string, error) {
		<-release
		return "DE", nil
	}}
	src := NewStoreCountry(p)

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	s.Empty(src.GetIfAvailable(ctx))

	close(release)
	s.Equal("DE", src.GetIfAvailable(s.ctx))
	s.Equal(int32(1), p.calls.Load())
}

func (s *SourcesSuite) TestMetricsObserved() {
	m := metrics.New(prometheus.NewRegistry())
	ok := NewAppSetID(returning("set", nil), WithMetrics(m))
	bad := NewAdvertisingID(returning("", errors.New("boom")), WithMetrics(m))

	ok.GetIfAvailable(s.ctx)
	bad.GetIfAvailable(s.ctx)
	bad.GetIfAvailable(s.ctx)

	s.Equal(1.0, promtest.ToFloat64(m.AttributeResolutions.WithLabelValues(NameAppSetID, "ok")))
	s.Equal(1.0, promtest.ToFloat64(m.AttributeResolutions.WithLabelValues(NameAdvertisingID, "unavailable")))
}

func (s *SourcesSuite) TestIPAddressLookup() {
	s.Run("valid address", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("203.0.113.7\n"))
		}))
		defer srv.Close()

		tc, err := transport.New()
		s.Require().NoError(err)
		src := NewIPAddress(tc, srv.URL)
		s.Equal("203.0.113.7", src.GetIfAvailable(s.ctx))
	})
	s.Run("lookup failure", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		tc, err := transport.New()
		s.Require().NoError(err)
		src := NewIPAddress(tc, srv.URL)
		s.Empty(src.GetIfAvailable(s.ctx))
	})
	s.Run("not an address", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("<html>captive portal</html>"))
		}))
		defer srv.Close()

		tc, err := transport.New()
		s.Require().NoError(err)
		src := NewIPAddress(tc, srv.URL)
		s.Empty(src.GetIfAvailable(s.ctx))
	})
}

func TestNormalizeCountry(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "US", want: "US"},
		{in: "USA", want: "US"},
		{in: "DEU", want: "DE"},
		{in: "840", want: "US"},
		{in: "ZZ", wantErr: true},
		{in: "419", wantErr: true},
		{in: "", wantErr: true},
		{in: "UNITED", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeCountry(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateIP(t *testing.T) {
	got, err := ValidateIP("2001:db8::1")
	require.NoError(t, err)
	assert.Equal(t, "2001:db8::1", got)

	got, err = ValidateIP("::ffff:192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1", got)

	_, err = ValidateIP("256.1.1.1")
	assert.Error(t, err)
}

func TestDescribeUserAgent(t *testing.T) {
	ua := "Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/116.0.0.0 Mobile Safari/537.36"
	got := DescribeUserAgent(ua)
	assert.Contains(t, got, "Chrome")
	assert.Contains(t, got, "Android")
}
