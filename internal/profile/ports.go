package profile

import (
	"context"

	"paykit/internal/backend"
	"paykit/internal/kvstore"
	"paykit/internal/metadata"
)

// API is the backend surface the manager synchronizes with.
type API interface {
	CreateProfile(ctx context.Context, req backend.CreateProfileRequest) (*backend.ProfileSnapshot, error)
	FetchProfile(ctx context.Context, profileID, deviceID string) (*backend.ProfileSnapshot, error)
}

// Composer builds the installation metadata sent with profile creation.
type Composer interface {
	Compose(ctx context.Context, deviceID string) metadata.InstallationMetadata
}

// Store persists identity state across launches.
type Store interface {
	GetString(ctx context.Context, key string) (string, bool, error)
	SaveString(ctx context.Context, key, value string) error
	GetLong(ctx context.Context, key string) (int64, bool, error)
	SaveLong(ctx context.Context, key string, value int64) error
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SaveBytes(ctx context.Context, key string, value []byte) error
	Commit(ctx context.Context, b *kvstore.Batch) error
	Clear(ctx context.Context) error
}
