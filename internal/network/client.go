// Package network builds the shared *http.Client instances this service
// uses to talk to Provider-D: one for short JSON-RPC calls (bounded
// timeout) and one for media downloads (no overall timeout, since a
// streaming GET can legitimately run for the length of a track).
package network

import (
	"net/http"
	"net/http/cookiejar"
	"time"
)

// ClientConfig holds transport tuning for an HTTP client.
type ClientConfig struct {
	Timeout               time.Duration
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	MaxConnsPerHost       int
	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	ExpectContinueTimeout time.Duration
}

// DefaultClientConfig returns sane pooling defaults for RPC-shaped calls.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:               30 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// NewClient builds an *http.Client with a shared cookie jar (the caller is
// expected to seed it with the arl session cookie) and pooled transport.
func NewClient(config *ClientConfig) *http.Client {
	if config == nil {
		config = DefaultClientConfig()
	}

	transport := &http.Transport{
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		MaxConnsPerHost:       config.MaxConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
		ExpectContinueTimeout: config.ExpectContinueTimeout,
	}

	jar, _ := cookiejar.New(nil)

	return &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
		Jar:       jar,
	}
}

// NewStreamingClient builds a client for media downloads: no overall
// request timeout (a track download may legitimately run for minutes),
// but the same bounded dial/TLS/header timeouts as the RPC client so a
// genuinely dead connection still fails fast. It shares the jar argument
// so the same arl cookie authenticates both the RPC and media hosts.
func NewStreamingClient(jar http.CookieJar) *http.Client {
	cfg := DefaultClientConfig()
	transport := &http.Transport{
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   50,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       120 * time.Second,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: 60 * time.Second,
		ExpectContinueTimeout: cfg.ExpectContinueTimeout,
	}
	return &http.Client{
		Transport: transport,
		Jar:       jar,
		// Timeout intentionally left at zero: §5 forbids a fixed deadline
		// on the media download; cancellation is request-scoped via ctx.
	}
}
