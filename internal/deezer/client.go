package deezer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/deezer-stream/streamproxy/internal/apperr"
	"github.com/deezer-stream/streamproxy/internal/metrics"
	"github.com/deezer-stream/streamproxy/internal/network"
)

const gatewayURL = "https://www.deezer.com/ajax/gw-light.php"

// Client issues authenticated JSON-RPC calls against Provider-D's gateway.
// It holds the shared cookie jar (carrying the arl session cookie) and the
// outbound rate limiter; it is safe for concurrent use.
type Client struct {
	http    *http.Client
	jar     http.CookieJar
	limiter *rate.Limiter
	tokens  *TokenManager
}

// NewClient constructs a Client authenticated with arl against
// https://www.deezer.com, rate-limited at the given requests-per-second
// and burst.
func NewClient(arl string, tokens *TokenManager, requestsPerSecond float64, burst int) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("deezer: building cookie jar: %w", err)
	}

	base, err := url.Parse("https://www.deezer.com")
	if err != nil {
		return nil, fmt.Errorf("deezer: parsing base url: %w", err)
	}
	jar.SetCookies(base, []*http.Cookie{{Name: "arl", Value: arl}})

	return &Client{
		http:    network.NewClient(network.DefaultClientConfig()),
		jar:     jar,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		tokens:  tokens,
	}, nil
}

// httpClient returns the client configured with this Client's cookie jar,
// so callers that need a distinct timeout (e.g. the streaming download in
// internal/stream) can still share authentication state.
func (c *Client) httpClient() *http.Client {
	clientCopy := *c.http
	clientCopy.Jar = c.jar
	return &clientCopy
}

// Jar exposes the shared cookie jar for callers (C5's media-gateway call,
// C6's media download) that must authenticate with the same arl cookie
// outside of Call's retry wrapper.
func (c *Client) Jar() http.CookieJar {
	return c.jar
}

// Call issues one JSON-RPC call to the gateway and retries exactly once
// on TokenExpired, per the retry contract: a second TokenExpired is
// surfaced to the caller unmodified.
func (c *Client) Call(ctx context.Context, method string, needsToken bool, body any) (json.RawMessage, error) {
	result, err := c.call(ctx, method, needsToken, body)
	if err == nil {
		return result, nil
	}

	ae, ok := err.(*apperr.AppError)
	if !ok || ae.Kind != apperr.KindTokenExpired {
		return nil, err
	}

	if refreshErr := c.tokens.Refresh(ctx, ae.OldToken); refreshErr != nil {
		return nil, refreshErr
	}

	// One retry, unconditionally. A second TokenExpired is surfaced as-is.
	return c.call(ctx, method, needsToken, body)
}

// call issues a single gateway request with no retry.
func (c *Client) call(ctx context.Context, method string, needsToken bool, body any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperr.NewTransport("waiting for rate limiter", err)
	}

	apiToken := ""
	if needsToken {
		snap := c.tokens.Snapshot()
		apiToken = snap.APIToken
	}

	q := url.Values{}
	q.Set("method", method)
	q.Set("api_version", "1.0")
	q.Set("input", "3")
	q.Set("api_token", apiToken)

	reqURL := gatewayURL + "?" + q.Encode()

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, apperr.NewParse("marshalling request body", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bodyReader)
	if err != nil {
		return nil, apperr.NewTransport("building gateway request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient().Do(httpReq)
	metrics.RecordUpstreamRequest(method, time.Since(start))
	if err != nil {
		return nil, apperr.NewTransport("calling gateway", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.NewTransport("reading gateway response", err)
	}

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, apperr.NewParse("parsing gateway envelope", err)
	}

	if isNonEmptyErrorObject(envelope.Error) {
		var errFields map[string]json.RawMessage
		if err := json.Unmarshal(envelope.Error, &errFields); err == nil {
			if _, ok := errFields["VALID_TOKEN_REQUIRED"]; ok {
				return nil, apperr.NewTokenExpired(apiToken)
			}
		}
		return nil, apperr.NewUpstreamError(string(envelope.Error))
	}

	return raw, nil
}

// isNonEmptyErrorObject reports whether raw is present and is neither
// null, an empty object, nor an empty array — Provider-D uses an empty
// array to mean "no error".
func isNonEmptyErrorObject(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	trimmed := bytes.TrimSpace(raw)
	switch string(trimmed) {
	case "", "null", "{}", "[]":
		return false
	}
	return true
}
