package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/deezer-stream/streamproxy/internal/deezer"
	"github.com/deezer-stream/streamproxy/internal/play"
	"github.com/deezer-stream/streamproxy/internal/relstore"
)

type fakeResolver struct {
	trackPage *deezer.TrackPage
	album     *deezer.Album
	mix       json.RawMessage
	mediaURL  string
	err       error
}

func (f *fakeResolver) TrackPage(ctx context.Context, id string) (*deezer.TrackPage, error) {
	return f.trackPage, f.err
}

func (f *fakeResolver) Album(ctx context.Context, albumID string) (*deezer.Album, error) {
	return f.album, f.err
}

func (f *fakeResolver) Mix(ctx context.Context, id string) (json.RawMessage, error) {
	return f.mix, f.err
}

func (f *fakeResolver) MediaURL(ctx context.Context, trackToken string) (string, error) {
	return f.mediaURL, f.err
}

type fakeRelStore struct {
	addAlbumCalled chan struct{}
}

func (f *fakeRelStore) AddAlbum(ctx context.Context, author relstore.Author, album relstore.AlbumInput, tracks []relstore.TrackInput) error {
	close(f.addAlbumCalled)
	return nil
}

type fakeReadier struct {
	err error
}

func (f *fakeReadier) Ping(ctx context.Context) error {
	return f.err
}

func newTestServer(resolver Resolver, rel RelStore, orchestrator *play.Orchestrator, ready Readier) *Server {
	logger := zap.NewNop()
	return New(resolver, orchestrator, rel, ready, ready, http.DefaultClient, logger)
}

func TestHandleTrack(t *testing.T) {
	resolver := &fakeResolver{trackPage: &deezer.TrackPage{ID: "42", Title: "A Song"}}
	s := newTestServer(resolver, &fakeRelStore{}, nil, &fakeReadier{})

	req := httptest.NewRequest(http.MethodGet, "/track/42", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "A Song") {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestHandleTrackBadID(t *testing.T) {
	s := newTestServer(&fakeResolver{}, &fakeRelStore{}, nil, &fakeReadier{})

	req := httptest.NewRequest(http.MethodGet, "/track/not-a-number", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleAlbumBackfillsRelationalStore(t *testing.T) {
	rel := &fakeRelStore{addAlbumCalled: make(chan struct{})}
	resolver := &fakeResolver{
		album: &deezer.Album{Header: deezer.AlbumHeader{AlbumID: "7", AlbumTitle: "Some Album"}},
	}
	s := newTestServer(resolver, rel, nil, &fakeReadier{})

	req := httptest.NewRequest(http.MethodGet, "/album/7", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	select {
	case <-rel.addAlbumCalled:
	case <-time.After(time.Second):
		t.Fatalf("expected the detached AddAlbum backfill to run")
	}
}

func TestHandleMixPassesThroughVerbatim(t *testing.T) {
	resolver := &fakeResolver{mix: json.RawMessage(`{"TRACKS":{"data":[]}}`)}
	s := newTestServer(resolver, &fakeRelStore{}, nil, &fakeReadier{})

	req := httptest.NewRequest(http.MethodGet, "/mix/5", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != `{"TRACKS":{"data":[]}}` {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestHandleTrackUpstreamFailure(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("upstream down")}
	s := newTestServer(resolver, &fakeRelStore{}, nil, &fakeReadier{})

	req := httptest.NewRequest(http.MethodGet, "/track/1", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestHandleHealthzAlwaysOK(t *testing.T) {
	s := newTestServer(&fakeResolver{}, &fakeRelStore{}, nil, &fakeReadier{err: errors.New("db down")})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestHandleReadyzFailsWhenDependencyDown(t *testing.T) {
	s := newTestServer(&fakeResolver{}, &fakeRelStore{}, nil, &fakeReadier{err: errors.New("db down")})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestHandleReadyzOKWhenDependenciesUp(t *testing.T) {
	s := newTestServer(&fakeResolver{}, &fakeRelStore{}, nil, &fakeReadier{})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
