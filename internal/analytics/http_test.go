package analytics_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paykit/internal/analytics"
	"paykit/internal/backend"
	"paykit/internal/backend/backendtest"
	"paykit/internal/metadata"
	"paykit/internal/transport"
	"paykit/pkg/platform/sentinel"
)

func TestHTTPDeliverer(t *testing.T) {
	fake := backendtest.New("secret")
	defer fake.Close()
	tc, err := transport.New(transport.WithTimeout(2 * time.Second))
	require.NoError(t, err)
	d := analytics.NewHTTPDeliverer(backend.New(tc, fake.URL(), "secret", metadata.SDKVersion))

	env := analytics.Envelope{
		Event:    analytics.Event{EventID: "e1", EventType: "purchase", ProfileID: "tmp-1", DeviceID: "dev-1", Store: "play_store"},
		Country:  "US",
		Metadata: metadata.InstallationMetadata{DeviceID: "dev-1", Platform: "android"},
	}
	require.NoError(t, d.Deliver(context.Background(), env))

	events := fake.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "e1", events[0].EventID)
	assert.Equal(t, "purchase", events[0].EventType)
	assert.Equal(t, "US", events[0].Country)
	assert.Equal(t, "dev-1", events[0].DeviceID)
	assert.Equal(t, "android", events[0].Metadata["platform"])

	fake.FailEvents(1, http.StatusBadGateway)
	err = d.Deliver(context.Background(), env)
	assert.ErrorIs(t, err, sentinel.ErrUnavailable)
}
