package analytics

import (
	"time"

	"paykit/internal/metadata"
)

// Event is one analytics event. EventID, Timestamp, ProfileID, DeviceID and
// Store are stamped by the pipeline when the event is tracked, and the queued
// event owns a private copy of Properties.
type Event struct {
	EventID    string         `json:"event_id"`
	EventType  string         `json:"event_type"`
	Timestamp  time.Time      `json:"timestamp"`
	ProfileID  string         `json:"profile_id"`
	DeviceID   string         `json:"device_id"`
	Store      string         `json:"store"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Envelope is what a Deliverer sends: the queued event plus the context
// resolved at delivery time for the event's device.
type Envelope struct {
	Event    Event                         `json:"event"`
	Country  string                        `json:"country,omitempty"`
	Metadata metadata.InstallationMetadata `json:"metadata"`
}
