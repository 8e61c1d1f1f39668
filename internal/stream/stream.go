// Package stream composes the track key derivation, the descrambling
// transform, and an authenticated media download into a single
// cancellation-aware, back-pressured byte-segment pipeline.
package stream

import (
	"context"
	"io"
	"net/http"

	"github.com/deezer-stream/streamproxy/internal/apperr"
	"github.com/deezer-stream/streamproxy/internal/cipher"
	"github.com/deezer-stream/streamproxy/internal/deezer"
	"github.com/deezer-stream/streamproxy/internal/descramble"
)

// channelCapacity bounds the producer ahead of a slow or stalled
// consumer: once full, the producer blocks on send.
const channelCapacity = 8

// Resolver is the slice of *deezer.Resolver this package needs — narrow
// enough that callers (internal/play) can depend on an interface instead
// of the concrete upstream client, and tests can supply a fake that
// points MediaURL at an httptest.Server.
type Resolver interface {
	TrackPage(ctx context.Context, id string) (*deezer.TrackPage, error)
	MediaURL(ctx context.Context, trackToken string) (string, error)
}

// Open resolves a media URL (fetching a track_token via resolver first
// if the caller doesn't already have one), opens the authenticated
// download, and starts a producer goroutine that descrambles the body
// into SegmentSize-ish chunks delivered over the returned channel.
//
// segments is closed on normal completion (upstream EOF, including a
// short final tail). errs receives at most one terminal error — a
// network failure, a cipher failure, or ctx cancellation — and is
// always closed; a value on errs after segments closes indicates the
// stream ended abnormally after some bytes were already delivered.
func Open(ctx context.Context, resolver Resolver, httpClient *http.Client, trackID, trackToken string) (<-chan []byte, <-chan error, error) {
	if trackToken == "" {
		page, err := resolver.TrackPage(ctx, trackID)
		if err != nil {
			return nil, nil, err
		}
		trackToken = page.TrackToken
	}

	mediaURL, err := resolver.MediaURL(ctx, trackToken)
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, nil, apperr.NewTransport("building media download request", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, apperr.NewTransport("fetching media", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, nil, apperr.NewUpstreamError(resp.Status)
	}

	key := cipher.Key(trackID)
	reader := descramble.NewReader(resp.Body, key)

	segments := make(chan []byte, channelCapacity)
	errs := make(chan error, 1)

	go produce(ctx, resp.Body, reader, segments, errs)

	return segments, errs, nil
}

// produce drains r in SegmentSize-sized reads, forwarding each chunk to
// segments until r is exhausted, ctx is cancelled, or a read fails.
func produce(ctx context.Context, body io.Closer, r io.Reader, segments chan<- []byte, errs chan<- error) {
	defer body.Close()
	defer close(segments)
	defer close(errs)

	buf := make([]byte, descramble.SegmentSize)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case segments <- chunk:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}

		switch err {
		case nil:
			continue
		case io.EOF, io.ErrUnexpectedEOF:
			// Full final segment, or a short tail: both are a normal end
			// of stream, not a failure.
			return
		default:
			errs <- err
			return
		}
	}
}
