// Package play orchestrates a single play(id) request: a read-through
// cache against object storage, falling through to the stream pipeline
// on a miss, with a tee'd write-back and a detached listen-record side
// effect.
package play

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/deezer-stream/streamproxy/internal/apperr"
	"github.com/deezer-stream/streamproxy/internal/deezer"
	"github.com/deezer-stream/streamproxy/internal/metrics"
	"github.com/deezer-stream/streamproxy/internal/relstore"
	"github.com/deezer-stream/streamproxy/internal/stream"
)

// Resolver is the slice of *deezer.Resolver play depends on — a
// superset of stream.Resolver, so a play.Resolver can be passed
// straight through to stream.Open.
type Resolver interface {
	TrackPage(ctx context.Context, id string) (*deezer.TrackPage, error)
	Album(ctx context.Context, albumID string) (*deezer.Album, error)
	MediaURL(ctx context.Context, trackToken string) (string, error)
}

// recordListenTimeout bounds the detached record_listen task so a stuck
// database or upstream album fetch can't leak goroutines indefinitely.
const recordListenTimeout = 30 * time.Second

// ObjectStore is the slice of internal/objstore.Store play depends on;
// narrow enough to fake with an in-memory map in tests.
type ObjectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, r io.Reader, size int64) error
}

// RelStore is the slice of internal/relstore.Store play depends on.
type RelStore interface {
	RecordListen(ctx context.Context, trackID string) (bool, error)
	AddAlbum(ctx context.Context, author relstore.Author, album relstore.AlbumInput, tracks []relstore.TrackInput) error
}

// Orchestrator wires the object store, the catalogue resolver/stream
// pipeline, and the relational store together to serve play(id).
type Orchestrator struct {
	objects    ObjectStore
	relation   RelStore
	resolver   Resolver
	streamHTTP *http.Client
}

// New constructs an Orchestrator. streamHTTP is the client used for the
// authenticated media download (internal/network.NewStreamingClient,
// sharing the deezer client's cookie jar).
func New(objects ObjectStore, relation RelStore, resolver Resolver, streamHTTP *http.Client) *Orchestrator {
	return &Orchestrator{objects: objects, relation: relation, resolver: resolver, streamHTTP: streamHTTP}
}

func objectKey(trackID string) string {
	return fmt.Sprintf("tracks/%s.flac", trackID)
}

// Play serves a play(id) request: a cache hit streams the stored object
// and records the listen in the background; a miss resolves the track,
// starts the stream pipeline, tees it into the object store, and
// records the listen concurrently with the response.
//
// ParseID must have already validated id as an integer (BadRequest is a
// caller-boundary concern, not this package's); Play treats id as an
// opaque string key throughout.
func (o *Orchestrator) Play(ctx context.Context, id string) (io.ReadCloser, error) {
	hit, err := o.objects.Exists(ctx, objectKey(id))
	if err != nil {
		metrics.RecordPlay("error")
		return nil, apperr.NewObjectStorePutFailure("checking cache", err)
	}

	if hit {
		body, err := o.objects.Get(ctx, objectKey(id))
		if err != nil {
			metrics.RecordPlay("error")
			return nil, apperr.NewObjectStorePutFailure("reading cached object", err)
		}
		metrics.RecordPlay("hit")
		go o.recordListenDetached(id, "")
		return body, nil
	}

	page, err := o.resolver.TrackPage(ctx, id)
	if err != nil {
		metrics.RecordPlay("error")
		return nil, err
	}

	segments, errs, err := stream.Open(ctx, o.resolver, o.streamHTTP, id, page.TrackToken)
	if err != nil {
		metrics.RecordPlay("error")
		return nil, err
	}

	metrics.RecordPlay("miss")
	go o.recordListenDetached(id, page.AlbumID.String())

	return newTeeReader(segments, errs, o.objects, objectKey(id)), nil
}

// recordListenDetached runs record_listen(id, albumID) on a background
// context: it is not cancelled by the caller's disconnect, and its
// failure has no effect on the response already served.
func (o *Orchestrator) recordListenDetached(trackID, albumID string) {
	ctx, cancel := context.WithTimeout(context.Background(), recordListenTimeout)
	defer cancel()
	if err := o.recordListen(ctx, trackID, albumID); err != nil {
		metrics.RecordListenRecordFailure()
	}
}

// RecordListen calls record_listen_deezer(id). If it reports a
// foreign-key miss (false) because the album isn't known yet, it
// resolves the album via the catalogue resolver, backfills it with
// add_album_deezer, and retries record_listen_deezer exactly once. A
// second false is treated as success: the row already exists, or the
// procedure is idempotent, either way there is no user-visible effect.
func (o *Orchestrator) RecordListen(ctx context.Context, trackID, albumID string) error {
	return o.recordListen(ctx, trackID, albumID)
}

func (o *Orchestrator) recordListen(ctx context.Context, trackID, albumID string) error {
	recorded, err := o.relation.RecordListen(ctx, trackID)
	if err != nil {
		return apperr.NewListenRecordFailure("record_listen_deezer", err)
	}
	if recorded {
		return nil
	}

	if albumID == "" {
		// No album to backfill from; nothing further to try.
		return nil
	}

	album, err := o.resolver.Album(ctx, albumID)
	if err != nil {
		return apperr.NewListenRecordFailure("resolving album for backfill", err)
	}

	author := relstore.Author{}
	if len(album.Header.Artists) > 0 {
		author.ID = album.Header.Artists[0].ID.String()
		author.Name = album.Header.Artists[0].Name
	}

	tracks := make([]relstore.TrackInput, 0, len(album.Songs.Data))
	for _, t := range album.Songs.Data {
		tracks = append(tracks, relstore.TrackInput{
			ID:              t.ID.String(),
			Title:           t.Title,
			DurationSeconds: t.DurationSeconds.String(),
		})
	}

	if err := o.relation.AddAlbum(ctx, author, relstore.AlbumInput{
		ID:         album.Header.AlbumID.String(),
		Title:      album.Header.AlbumTitle,
		ArtworkRef: album.Header.ArtworkRef,
	}, tracks); err != nil {
		return apperr.NewListenRecordFailure("add_album_deezer", err)
	}

	// Second attempt; a second false is not an error per the retry
	// contract — it means the row already exists or the procedure is
	// idempotent, not that this listen went unrecorded.
	if _, err := o.relation.RecordListen(ctx, trackID); err != nil {
		return apperr.NewListenRecordFailure("record_listen_deezer retry", err)
	}
	return nil
}

// ParseTrackID validates a caller-supplied id path parameter as a
// non-negative integer, returning the canonical decimal string form
// used as the object-store key and the upstream id.
func ParseTrackID(raw string) (string, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return "", apperr.NewBadRequest("id must be a non-negative integer")
	}
	return strconv.FormatInt(n, 10), nil
}
