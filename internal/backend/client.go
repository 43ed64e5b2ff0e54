// Package backend is the typed client for the SDK's backend API, built on the
// transport boundary.
package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"paykit/internal/transport"
)

const (
	profilesPath = "/sdk/profiles"
	eventsPath   = "/sdk/events"

	HeaderAuthorization = "Authorization"
	HeaderSDKVersion    = "X-SDK-Version"
	HeaderDeviceID      = "X-Device-ID"
)

// Sender executes one transport request.
type Sender interface {
	Send(ctx context.Context, req transport.Request) (*transport.Response, error)
}

// Client calls the backend endpoints.
type Client struct {
	sender     Sender
	baseURL    string
	apiKey     string
	sdkVersion string
}

// New creates a Client. baseURL must not end with a slash.
func New(sender Sender, baseURL, apiKey, sdkVersion string) *Client {
	return &Client{
		sender:     sender,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		sdkVersion: sdkVersion,
	}
}

func (c *Client) headers(deviceID string) map[string]string {
	h := map[string]string{
		HeaderAuthorization: "Api-Key " + c.apiKey,
		HeaderSDKVersion:    c.sdkVersion,
		"Accept":            "application/json",
	}
	if deviceID != "" {
		h[HeaderDeviceID] = deviceID
	}
	return h
}

// CreateProfile exchanges a temporary id for a confirmed profile.
func (c *Client) CreateProfile(ctx context.Context, req CreateProfileRequest) (*ProfileSnapshot, error) {
	body, err := transport.EncodeData(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.sender.Send(ctx, transport.Request{
		Method:  http.MethodPost,
		URL:     c.baseURL + profilesPath,
		Headers: c.headers(req.Installation.DeviceID),
		Body:    body,
	})
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	p, err := transport.DecodeData[ProfileSnapshot](resp)
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	return &p, nil
}

// FetchProfile loads the current snapshot of a confirmed profile.
func (c *Client) FetchProfile(ctx context.Context, profileID, deviceID string) (*ProfileSnapshot, error) {
	resp, err := c.sender.Send(ctx, transport.Request{
		Method:  http.MethodGet,
		URL:     c.baseURL + profilesPath + "/" + url.PathEscape(profileID),
		Headers: c.headers(deviceID),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	p, err := transport.DecodeData[ProfileSnapshot](resp)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	return &p, nil
}

// SendEvent posts one analytics event payload.
func (c *Client) SendEvent(ctx context.Context, deviceID string, payload any) error {
	body, err := transport.EncodeData(payload)
	if err != nil {
		return err
	}
	resp, err := c.sender.Send(ctx, transport.Request{
		Method:  http.MethodPost,
		URL:     c.baseURL + eventsPath,
		Headers: c.headers(deviceID),
		Body:    body,
	})
	if err != nil {
		return fmt.Errorf("send event: %w", err)
	}
	if err := transport.CheckOK(resp); err != nil {
		return fmt.Errorf("send event: %w", err)
	}
	return nil
}
