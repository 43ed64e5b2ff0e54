package analytics

import "context"

// EventSender posts an event payload to the backend.
type EventSender interface {
	SendEvent(ctx context.Context, deviceID string, payload any) error
}

// HTTPDeliverer delivers envelopes to the backend's event ingestion endpoint.
type HTTPDeliverer struct {
	api EventSender
}

func NewHTTPDeliverer(api EventSender) *HTTPDeliverer {
	return &HTTPDeliverer{api: api}
}

func (d *HTTPDeliverer) Deliver(ctx context.Context, env Envelope) error {
	return d.api.SendEvent(ctx, env.Event.DeviceID, env)
}
