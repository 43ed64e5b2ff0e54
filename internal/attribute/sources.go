package attribute

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strings"

	"github.com/google/uuid"
	"github.com/mssola/useragent"
	"golang.org/x/text/language"

	"paykit/internal/transport"
)

// DefaultIPLookupURL returns the caller's public IP as plain text.
const DefaultIPLookupURL = "https://api.ipify.org"

// AdvertisingID is the platform advertising identifier. A zeroed identifier,
// reported when the user limits ad tracking, is unavailable.
type AdvertisingID struct{ *source }

func NewAdvertisingID(p AdvertisingIDProvider, opts ...Option) *AdvertisingID {
	fetch := missing
	if p != nil {
		fetch = p.AdvertisingID
	}
	return &AdvertisingID{newSource(NameAdvertisingID, fetch, ValidateAdvertisingID, buildSettings(opts))}
}

// ValidateAdvertisingID accepts any non-zero UUID and returns it as reported.
func ValidateAdvertisingID(raw string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("malformed advertising id: %w", err)
	}
	if id == uuid.Nil {
		return "", errors.New("advertising id is zeroed (limited ad tracking)")
	}
	return raw, nil
}

// AppSetID is the platform app-set identifier.
type AppSetID struct{ *source }

func NewAppSetID(p AppSetIDProvider, opts ...Option) *AppSetID {
	fetch := missing
	if p != nil {
		fetch = p.AppSetID
	}
	return &AppSetID{newSource(NameAppSetID, fetch, nil, buildSettings(opts))}
}

// UserAgent is the system web user agent.
type UserAgent struct{ *source }

func NewUserAgent(p UserAgentProvider, opts ...Option) *UserAgent {
	s := buildSettings(opts)
	fetch := missing
	if p != nil {
		fetch = p.UserAgent
	}
	normalize := func(raw string) (string, error) {
		if s.logger != nil {
			s.logger.Debug("resolved user agent", "device", DescribeUserAgent(raw))
		}
		return raw, nil
	}
	return &UserAgent{newSource(NameUserAgent, fetch, normalize, s)}
}

// DescribeUserAgent renders a short display name such as "Chrome on Android".
func DescribeUserAgent(raw string) string {
	ua := useragent.New(raw)
	if ua.Bot() {
		name, _ := ua.Browser()
		return "bot " + name
	}
	browser, _ := ua.Browser()
	osName := ua.OSInfo().Name
	switch {
	case browser != "" && osName != "":
		return browser + " on " + osName
	case browser != "":
		return browser
	case osName != "":
		return osName
	}
	return "unknown"
}

// StoreCountry is the store billing country as an ISO 3166-1 alpha-2 code.
type StoreCountry struct{ *source }

func NewStoreCountry(p StoreCountryProvider, opts ...Option) *StoreCountry {
	fetch := missing
	if p != nil {
		fetch = p.StoreCountry
	}
	return &StoreCountry{newSource(NameStoreCountry, fetch, NormalizeCountry, buildSettings(opts))}
}

// NormalizeCountry maps alpha-2, alpha-3 and numeric region codes to alpha-2.
// Regions that are not countries ("ZZ", "419") are rejected.
func NormalizeCountry(raw string) (string, error) {
	region, err := language.ParseRegion(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse region %q: %w", raw, err)
	}
	region = region.Canonicalize()
	if !region.IsCountry() {
		return "", fmt.Errorf("region %q is not a country", raw)
	}
	return region.String(), nil
}

// Sender executes a transport request.
type Sender interface {
	Send(ctx context.Context, req transport.Request) (*transport.Response, error)
}

// IPAddress is the public IP as seen by an external lookup service.
type IPAddress struct{ *source }

func NewIPAddress(sender Sender, lookupURL string, opts ...Option) *IPAddress {
	if lookupURL == "" {
		lookupURL = DefaultIPLookupURL
	}
	fetch := missing
	if sender != nil {
		fetch = func(ctx context.Context) (string, error) {
			resp, err := sender.Send(ctx, transport.Request{
				Method:  http.MethodGet,
				URL:     lookupURL,
				Headers: map[string]string{"Accept": "text/plain"},
			})
			if err != nil {
				return "", err
			}
			line, _, _ := bufio.NewReader(bytes.NewReader(resp.Body)).ReadLine()
			return string(line), nil
		}
	}
	return &IPAddress{newSource(NameIPAddress, fetch, ValidateIP, buildSettings(opts))}
}

// ValidateIP accepts IPv4 and IPv6 literals and returns the canonical form.
func ValidateIP(raw string) (string, error) {
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return "", fmt.Errorf("invalid ip: %w", err)
	}
	return addr.Unmap().String(), nil
}

// Providers bundles the platform ports the sources read from. Any may be nil
// when the platform lacks it; that source is then always unavailable.
type Providers struct {
	AdvertisingID AdvertisingIDProvider
	AppSetID      AppSetIDProvider
	UserAgent     UserAgentProvider
	StoreCountry  StoreCountryProvider
}

// Set is the five sources of one SDK instance.
type Set struct {
	AdvertisingID Source
	AppSetID      Source
	UserAgent     Source
	StoreCountry  Source
	IPAddress     Source
}

// NewSet builds all five sources with shared options.
func NewSet(p Providers, ipSender Sender, ipLookupURL string, opts ...Option) *Set {
	return &Set{
		AdvertisingID: NewAdvertisingID(p.AdvertisingID, opts...),
		AppSetID:      NewAppSetID(p.AppSetID, opts...),
		UserAgent:     NewUserAgent(p.UserAgent, opts...),
		StoreCountry:  NewStoreCountry(p.StoreCountry, opts...),
		IPAddress:     NewIPAddress(ipSender, ipLookupURL, opts...),
	}
}
