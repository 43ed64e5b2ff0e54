// Package transport executes logical requests against the backend and maps every
// failure (connection, timeout, status, read) to a structured *Error. It never
// retries; retry policy belongs to the caller.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/http2"

	"paykit/internal/platform/metrics"
	dErrors "paykit/pkg/domain-errors"
	"paykit/pkg/platform/sentinel"
)

// DefaultTimeout bounds connect, write and read of a single request.
const DefaultTimeout = 10 * time.Second

// maxResponseBytes caps how much of a response body is read into memory.
const maxResponseBytes = 4 << 20

const tracerName = "paykit/internal/transport"

// Request is the logical request envelope.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

// Response is a successful (2xx) response with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client sends Requests over HTTP/2-capable HTTP.
type Client struct {
	http           *http.Client
	timeout        time.Duration
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying client (tests, custom TLS).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		c.tracerProvider = tp
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a Client. Without WithHTTPClient it builds an HTTP/2-enabled
// transport instrumented with otelhttp.
func New(opts ...Option) (*Client, error) {
	c := &Client{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracerProvider == nil {
		c.tracerProvider = otel.GetTracerProvider()
	}
	c.tracer = c.tracerProvider.Tracer(tracerName)
	if c.http == nil {
		h, err := buildHTTPClient(c.timeout, c.tracerProvider)
		if err != nil {
			return nil, err
		}
		c.http = h
	}
	return c, nil
}

func buildHTTPClient(timeout time.Duration, tp trace.TracerProvider) (*http.Client, error) {
	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
	}
	h2, err := http2.ConfigureTransports(base)
	if err != nil {
		return nil, fmt.Errorf("configure http2: %w", err)
	}
	// Ping idle HTTP/2 connections so a dead connection is noticed before the
	// next request waits out the full timeout on it.
	h2.ReadIdleTimeout = 30 * time.Second
	h2.PingTimeout = 5 * time.Second

	return &http.Client{
		Transport: otelhttp.NewTransport(base, otelhttp.WithTracerProvider(tp)),
		Timeout:   timeout,
	}, nil
}

// writesBody reports whether the method carries a request body.
func writesBody(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// Send executes req. A nil error means a 2xx response; otherwise the error is a
// *Error describing the failure.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	ctx, span := c.tracer.Start(ctx, "transport.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", req.URL),
		),
	)
	defer span.End()

	resp, err := c.do(ctx, method, req)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if c.logger != nil {
			c.logger.DebugContext(ctx, "backend request failed",
				"method", method,
				"url", req.URL,
				"error", err,
			)
		}
	} else {
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	}
	if c.metrics != nil {
		c.metrics.ObserveTransport(method, outcome, time.Since(start))
	}
	return resp, err
}

func (c *Client) do(ctx context.Context, method string, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if writesBody(method) && req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, newError("build request", 0, err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, newError("request timed out", 0, errors.Join(sentinel.ErrTimeout, err))
		}
		return nil, newError("send request", 0, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(httpResp.Body, maxResponseBytes))
		_ = httpResp.Body.Close()
	}()

	b, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, newError("read response", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, statusError(httpResp.StatusCode, b)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       b,
	}, nil
}

// errTransportFailure tags every *Error with the transport failure code.
var errTransportFailure = dErrors.New(dErrors.CodeTransportFailure, "transport failure")

// Error is a failed request. StatusCode is zero when no response was received.
type Error struct {
	Message    string
	StatusCode int
	Cause      error
}

func newError(msg string, status int, cause error) *Error {
	return &Error{Message: msg, StatusCode: status, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

// Unwrap exposes both the cause and the transport failure code, so errors.Is on
// the cause and domainerrors.HasCode both work.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{errTransportFailure}
	}
	return []error{e.Cause, errTransportFailure}
}
