package attribute

import "context"

// AdvertisingIDProvider reads the platform advertising identifier. Platforms
// exposing a callback API adapt it to a blocking call that honors ctx.
type AdvertisingIDProvider interface {
	AdvertisingID(ctx context.Context) (string, error)
}

// AppSetIDProvider reads the platform app-set identifier.
type AppSetIDProvider interface {
	AppSetID(ctx context.Context) (string, error)
}

// UserAgentProvider reads the system web user agent.
type UserAgentProvider interface {
	UserAgent(ctx context.Context) (string, error)
}

// StoreCountryProvider reads the app store's billing country.
type StoreCountryProvider interface {
	StoreCountry(ctx context.Context) (string, error)
}
