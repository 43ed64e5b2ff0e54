package backend

import (
	"time"

	"paykit/internal/metadata"
	"paykit/pkg/platform/values"
)

// ProfileSnapshot is the backend's view of a profile.
type ProfileSnapshot struct {
	ProfileID        string         `json:"profile_id"`
	CustomerUserID   string         `json:"customer_user_id,omitempty"`
	SegmentHash      string         `json:"segment_hash,omitempty"`
	CustomAttributes map[string]any `json:"custom_attributes,omitempty"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// CreateProfileRequest asks the backend to confirm a locally generated id.
type CreateProfileRequest struct {
	TemporaryID  string                         `json:"temporary_id"`
	Installation metadata.InstallationMetadata `json:"installation"`
}

// Clone returns a deep copy of p, so the copy's CustomAttributes can be
// changed without touching p.
func (p *ProfileSnapshot) Clone() *ProfileSnapshot {
	if p == nil {
		return nil
	}
	out := *p
	out.CustomAttributes = values.CloneMap(p.CustomAttributes)
	return &out
}
