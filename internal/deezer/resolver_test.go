package deezer

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/time/rate"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New: %v", err)
	}

	c := &Client{
		http:    srv.Client(),
		jar:     jar,
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
	return c, srv
}

func TestResolverTrackPage(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("method") != "deezer.pageTrack" {
			t.Errorf("expected method=deezer.pageTrack, got %s", r.URL.Query().Get("method"))
		}
		w.Write([]byte(`{"results":{"DATA":{"SNG_ID":"123","SNG_TITLE":"A Song","TRACK_TOKEN":"tok"}}}`))
	})
	defer srv.Close()

	tokens := NewTokenManager()
	tokens.SetCaller(c)
	c.tokens = tokens
	c.http = srv.Client()

	// point the gateway at the test server by swapping the base URL via a
	// request-rewriting round tripper.
	c.http.Transport = rewriteHostTransport{target: srv.URL, base: srv.Client().Transport}

	r := NewResolver(c, tokens)
	page, err := r.TrackPage(context.Background(), "123")
	if err != nil {
		t.Fatalf("TrackPage: %v", err)
	}
	if page.ID.String() != "123" || page.Title != "A Song" {
		t.Errorf("unexpected track page: %+v", page)
	}
}

func TestResolverAlbum(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("method") != "deezer.pageAlbum" {
			t.Errorf("expected method=deezer.pageAlbum, got %s", r.URL.Query().Get("method"))
		}
		w.Write([]byte(`{"results":{"DATA":{"ALB_ID":"9","ALB_TITLE":"An Album"},"SONGS":{"data":[]}}}`))
	})
	defer srv.Close()

	tokens := NewTokenManager()
	tokens.SetCaller(c)
	c.tokens = tokens
	c.http.Transport = rewriteHostTransport{target: srv.URL, base: srv.Client().Transport}

	r := NewResolver(c, tokens)
	album, err := r.Album(context.Background(), "9")
	if err != nil {
		t.Fatalf("Album: %v", err)
	}
	if album.Header.AlbumTitle != "An Album" {
		t.Errorf("unexpected album: %+v", album)
	}
}

func TestResolverMix(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("method") != "song.getSearchTrackMix" {
			t.Errorf("expected method=song.getSearchTrackMix, got %s", r.URL.Query().Get("method"))
		}
		w.Write([]byte(`{"results":{"TRACKS":{"data":[{"SNG_ID":"5"}]}}}`))
	})
	defer srv.Close()

	tokens := NewTokenManager()
	tokens.SetCaller(c)
	c.tokens = tokens
	c.http.Transport = rewriteHostTransport{target: srv.URL, base: srv.Client().Transport}

	r := NewResolver(c, tokens)
	raw, err := r.Mix(context.Background(), "123")
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	if !strings.Contains(string(raw), `"SNG_ID":"5"`) {
		t.Errorf("expected the results object to be passed through verbatim, got %s", raw)
	}
}

func TestResolverMediaURLRequiresLicenseToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decoded, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("reading request body: %v", err)
		}
		if !strings.Contains(string(decoded), `"license_token":"lic"`) {
			t.Errorf("expected license_token in body, got %s", decoded)
		}
		if !strings.Contains(string(decoded), `"type":"FULL"`) {
			t.Errorf("expected a FULL media element, got %s", decoded)
		}
		for _, format := range []string{"FLAC", "MP3_320", "MP3_128", "MP3_64", "MP3_MISC"} {
			if !strings.Contains(string(decoded), `"format":"`+format+`"`) {
				t.Errorf("expected %s in the format ladder, got %s", format, decoded)
			}
		}
		w.Write([]byte(`{"data":[{"media":[{"sources":[{"url":"https://cdn.example/track.mp3"}]}]}]}`))
	}))
	defer srv.Close()

	tokens := NewTokenManager()
	tokens.current.Store(&Tokens{APIToken: "api", LicenseToken: "lic"})

	jar, _ := cookiejar.New(nil)
	c := &Client{http: srv.Client(), jar: jar, limiter: rate.NewLimiter(rate.Inf, 1)}
	c.http.Transport = rewriteHostTransport{target: srv.URL, base: srv.Client().Transport}

	r := NewResolver(c, tokens)
	url, err := r.MediaURL(context.Background(), "track-token")
	if err != nil {
		t.Fatalf("MediaURL: %v", err)
	}
	if url != "https://cdn.example/track.mp3" {
		t.Errorf("unexpected url: %s", url)
	}
}

// rewriteHostTransport redirects every request to target, preserving
// path/query — lets tests point the hardcoded gateway/media-gateway
// constants at an httptest.Server.
type rewriteHostTransport struct {
	target string
	base   http.RoundTripper
}

func (rt rewriteHostTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	targetURL, err := req.URL.Parse(rt.target)
	if err != nil {
		return nil, err
	}
	req.URL.Scheme = targetURL.Scheme
	req.URL.Host = targetURL.Host
	req.Host = targetURL.Host
	base := rt.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
