package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/deezer-stream/streamproxy/internal/apperr"
	"github.com/deezer-stream/streamproxy/internal/deezer"
	"github.com/deezer-stream/streamproxy/internal/metrics"
	"github.com/deezer-stream/streamproxy/internal/play"
	"github.com/deezer-stream/streamproxy/internal/relstore"
	"github.com/deezer-stream/streamproxy/internal/stream"
)

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	id, err := play.ParseTrackID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := s.resolver.TrackPage(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(page)
}

// handleAlbum resolves an album and, as a side effect, inserts it into
// the relational store ahead of any future listen that references it.
// The album response is returned regardless of whether the backfill
// write succeeds — a relational-store failure here is only logged, the
// same best-effort contract the same write gets from the listen-retry
// path in internal/play.
func (s *Server) handleAlbum(w http.ResponseWriter, r *http.Request) {
	id, err := play.ParseTrackID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	album, err := s.resolver.Album(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	go s.backfillAlbum(album)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(album)
}

func (s *Server) backfillAlbum(album *deezer.Album) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

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

	if err := s.relation.AddAlbum(ctx, author, relstore.AlbumInput{
		ID:         album.Header.AlbumID.String(),
		Title:      album.Header.AlbumTitle,
		ArtworkRef: album.Header.ArtworkRef,
	}, tracks); err != nil {
		metrics.RecordListenRecordFailure()
		s.logger.Warn("album backfill failed", zap.Error(err))
	}
}

func (s *Server) handleMix(w http.ResponseWriter, r *http.Request) {
	id, err := play.ParseTrackID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	raw, err := s.resolver.Mix(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(raw)
}

const streamContentDisposition = `attachment; filename="combined_data.flac"`

// handleStream serves the raw descrambled byte stream with no caching
// side effect: it resolves track metadata, opens the stream pipeline
// directly, and copies segments to the response as they arrive.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id, err := play.ParseTrackID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	start := time.Now()
	page, err := s.resolver.TrackPage(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	segments, errs, err := stream.Open(r.Context(), s.resolver, s.streamHTTP, id, page.TrackToken)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", streamContentDisposition)

	var total int64
	for chunk := range segments {
		n, werr := w.Write(chunk)
		total += int64(n)
		if werr != nil {
			// Client disconnected mid-stream; drain nothing further, the
			// producer goroutine still exits on ctx cancellation.
			return
		}
	}
	if err := <-errs; apperr.Is(err, apperr.KindCipherFailure) {
		metrics.RecordCipherError()
	}
	metrics.RecordStream("stream", time.Since(start), total)
}

// handleListen serves the same envelope as /stream but goes through the
// play orchestrator: a cache hit is served straight from object
// storage, a miss is tee'd into the cache, and either path records the
// listen in the background.
func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	id, err := play.ParseTrackID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	start := time.Now()
	body, err := s.orchestrator.Play(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", streamContentDisposition)

	n, copyErr := io.Copy(w, body)
	if copyErr != nil {
		return
	}
	metrics.RecordStream("listen", time.Since(start), n)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.relStoreReady.Ping(ctx); err != nil {
		writeUnready(w, "relstore", err)
		return
	}
	if err := s.objStoreReady.Ping(ctx); err != nil {
		writeUnready(w, "objstore", err)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

func writeUnready(w http.ResponseWriter, dependency string, cause error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(map[string]string{
		"status":     "unavailable",
		"dependency": dependency,
		"error":      fmt.Sprintf("%v", cause),
	})
}
