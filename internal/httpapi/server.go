// Package httpapi is the caller-facing HTTP surface: a chi router wiring
// the catalogue resolver and play orchestrator to /track, /album, /mix,
// /stream, and /listen, plus the standard /healthz, /readyz, /metrics
// operational endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/deezer-stream/streamproxy/internal/apperr"
	"github.com/deezer-stream/streamproxy/internal/deezer"
	"github.com/deezer-stream/streamproxy/internal/play"
	"github.com/deezer-stream/streamproxy/internal/relstore"
)

// Resolver is the slice of *deezer.Resolver the HTTP layer calls
// directly, for the endpoints that pass catalogue data straight through
// without going through the play orchestrator.
type Resolver interface {
	TrackPage(ctx context.Context, id string) (*deezer.TrackPage, error)
	Album(ctx context.Context, albumID string) (*deezer.Album, error)
	Mix(ctx context.Context, id string) (json.RawMessage, error)
	MediaURL(ctx context.Context, trackToken string) (string, error)
}

// RelStore is the slice of internal/relstore.Store the /album handler
// uses to record an album's metadata as a side effect of resolving it.
type RelStore interface {
	AddAlbum(ctx context.Context, author relstore.Author, album relstore.AlbumInput, tracks []relstore.TrackInput) error
}

// Readier is implemented by both internal/relstore.Store and
// internal/objstore.Store; /readyz pings both.
type Readier interface {
	Ping(ctx context.Context) error
}

// Server holds the dependencies the router's handlers close over.
type Server struct {
	resolver     Resolver
	orchestrator *play.Orchestrator
	relation     RelStore
	relStoreReady Readier
	objStoreReady Readier
	streamHTTP   *http.Client
	logger       *zap.Logger
}

// New constructs a Server. streamHTTP is the client used for the
// unmediated /stream endpoint's media download.
func New(resolver Resolver, orchestrator *play.Orchestrator, relation RelStore, relStoreReady, objStoreReady Readier, streamHTTP *http.Client, logger *zap.Logger) *Server {
	return &Server{
		resolver:      resolver,
		orchestrator:  orchestrator,
		relation:      relation,
		relStoreReady: relStoreReady,
		objStoreReady: objStoreReady,
		streamHTTP:    streamHTTP,
		logger:        logger,
	}
}

// Router builds the chi router: RealIP, RequestID, a zap-backed request
// logger, and Recoverer ahead of the route table, mirroring the pack's
// chi-based service shape.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/track/{id}", s.handleTrack)
	r.Get("/album/{id}", s.handleAlbum)
	r.Get("/mix/{id}", s.handleMix)
	r.Get("/stream/{id}", s.handleStream)
	r.Get("/listen/{id}", s.handleListen)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// requestLogger logs one line per request at completion, in the
// teacher's shape: method, path, status, duration, request id.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// writeError maps an AppError (or any other error) to its HTTP status
// and writes a small JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	status := apperr.StatusCode(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
