package paykit

import (
	"paykit/internal/analytics"
	"paykit/internal/attribute"
	"paykit/internal/backend"
	"paykit/internal/metadata"
	"paykit/internal/profile"
	"paykit/pkg/platform/config"
)

// Platform ports implemented by the host application.
type (
	AdvertisingIDProvider = attribute.AdvertisingIDProvider
	AppSetIDProvider      = attribute.AppSetIDProvider
	UserAgentProvider     = attribute.UserAgentProvider
	StoreCountryProvider  = attribute.StoreCountryProvider
	DeviceInfo            = metadata.DeviceInfo
	DeviceFacts           = metadata.Facts
)

type (
	Config               = config.Config
	InstallationMetadata = metadata.InstallationMetadata
	Profile              = backend.ProfileSnapshot
	Event                = analytics.Event
	ReadyFunc            = profile.ReadyFunc
)

// SDKVersion is the version reported to the backend.
const SDKVersion = metadata.SDKVersion

// LoadConfig reads configuration from an optional YAML file and PAYKIT_
// environment variables.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// Platform bundles the host's collaborator ports. Device is required; any
// provider may be nil when the platform lacks it, in which case that
// attribute is always unavailable.
type Platform struct {
	Device        DeviceInfo
	AdvertisingID AdvertisingIDProvider
	AppSetID      AppSetIDProvider
	UserAgent     UserAgentProvider
	StoreCountry  StoreCountryProvider
}
