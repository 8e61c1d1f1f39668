package deezer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/deezer-stream/streamproxy/internal/apperr"
	"github.com/deezer-stream/streamproxy/internal/metrics"
)

const mediaGatewayURL = "https://media.deezer.com/v1/get_url"

// mediaFormat is one entry of the quality ladder the media gateway falls
// back through when the account isn't entitled to a higher format.
type mediaFormat struct {
	Cipher string `json:"cipher"`
	Format string `json:"format"`
}

// mediaFormatLadder is the full FLAC-or-best ladder: the gateway tries
// each format in order and returns the first the account is entitled to.
var mediaFormatLadder = []mediaFormat{
	{Cipher: "BF_CBC_STRIPE", Format: "FLAC"},
	{Cipher: "BF_CBC_STRIPE", Format: "MP3_320"},
	{Cipher: "BF_CBC_STRIPE", Format: "MP3_128"},
	{Cipher: "BF_CBC_STRIPE", Format: "MP3_64"},
	{Cipher: "BF_CBC_STRIPE", Format: "MP3_MISC"},
}

// mediaElement is the shape of one entry in the gateway request's media
// array: a type tag plus the whole format ladder to fall back through.
type mediaElement struct {
	Type    string        `json:"type"`
	Formats []mediaFormat `json:"formats"`
}

type mediaURLRequest struct {
	LicenseToken string         `json:"license_token"`
	Media        []mediaElement `json:"media"`
	TrackTokens  []string       `json:"track_tokens"`
}

// Resolver turns a track id into metadata, album metadata, and a
// short-lived media URL — a thin parse over each of three upstream calls.
type Resolver struct {
	client *Client
	tokens *TokenManager
}

// NewResolver constructs a Resolver over an already-authenticated Client.
func NewResolver(client *Client, tokens *TokenManager) *Resolver {
	return &Resolver{client: client, tokens: tokens}
}

// TrackPage resolves track metadata via deezer.pageTrack.
func (r *Resolver) TrackPage(ctx context.Context, id string) (*TrackPage, error) {
	body := map[string]any{
		"sng_id":                 id,
		"start_with_input_track": true,
	}

	raw, err := r.client.Call(ctx, "deezer.pageTrack", true, body)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Results struct {
			Data TrackPage `json:"DATA"`
		} `json:"results"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, apperr.NewParse("parsing pageTrack response", err)
	}
	return &envelope.Results.Data, nil
}

// Album resolves album metadata via deezer.pageAlbum.
func (r *Resolver) Album(ctx context.Context, albumID string) (*Album, error) {
	body := map[string]any{
		"alb_id": albumID,
		"lang":   "en",
	}

	raw, err := r.client.Call(ctx, "deezer.pageAlbum", true, body)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Results Album `json:"results"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, apperr.NewParse("parsing pageAlbum response", err)
	}
	return &envelope.Results, nil
}

// Mix resolves song.getSearchTrackMix and returns the raw results object
// verbatim — /mix/{id} passes it straight through to the caller with no
// reshaping, so there is no typed model for it.
func (r *Resolver) Mix(ctx context.Context, id string) (json.RawMessage, error) {
	body := map[string]any{
		"sng_id": id,
	}

	raw, err := r.client.Call(ctx, "song.getSearchTrackMix", true, body)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Results json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, apperr.NewParse("parsing getSearchTrackMix response", err)
	}
	return envelope.Results, nil
}

// MediaURL redeems a track_token at the media gateway for a short-lived
// HTTPS media URL. Unlike TrackPage/Album, this call requires the
// license_token (not api_token), does not use Client.Call's retry
// wrapper (the media host uses a different error convention), and runs
// with the same cookie jar as the rest of the client. The request's
// single media element carries the full format ladder so the gateway
// can fall back to whatever quality the account is entitled to.
func (r *Resolver) MediaURL(ctx context.Context, trackToken string) (string, error) {
	snap := r.tokens.Snapshot()

	reqBody, err := json.Marshal(mediaURLRequest{
		LicenseToken: snap.LicenseToken,
		Media:        []mediaElement{{Type: "FULL", Formats: mediaFormatLadder}},
		TrackTokens:  []string{trackToken},
	})
	if err != nil {
		return "", apperr.NewTransport("encoding media gateway request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, mediaGatewayURL, bytes.NewReader(reqBody))
	if err != nil {
		return "", apperr.NewTransport("building media gateway request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := r.client.httpClient().Do(httpReq)
	metrics.RecordUpstreamRequest("media_gateway", time.Since(start))
	if err != nil {
		return "", apperr.NewTransport("calling media gateway", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.NewTransport("reading media gateway response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", apperr.NewUpstreamError(string(raw))
	}

	var envelope struct {
		Data []struct {
			Media []struct {
				Sources []struct {
					URL string `json:"url"`
				} `json:"sources"`
			} `json:"media"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", apperr.NewParse("parsing media gateway response", err)
	}

	if len(envelope.Data) == 0 || len(envelope.Data[0].Media) == 0 || len(envelope.Data[0].Media[0].Sources) == 0 {
		return "", apperr.NewParse("media gateway response missing a media URL", nil)
	}

	url := envelope.Data[0].Media[0].Sources[0].URL
	if url == "" {
		return "", apperr.NewParse("media gateway returned an empty URL", nil)
	}
	return url, nil
}
