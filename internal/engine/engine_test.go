package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IliaW/dip-crawler/config"
	"github.com/IliaW/dip-crawler/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngineConfig() *config.EngineConfig {
	return &config.EngineConfig{
		UserAgent:        "dip-crawler-test",
		WorkersNum:       4,
		RetryAttempts:    3,
		RateLimitPermits: 1000,
		RateLimitWindow:  time.Second,
		RequestTimeout:   5 * time.Second,
		LogoutMarker:     "Sie wurden vom System abgemeldet",
	}
}

func newTestEngine(t *testing.T, cfg *config.EngineConfig) *Engine {
	t.Helper()
	session, err := NewSession(cfg, nil)
	require.NoError(t, err)
	return New(session, cfg, nil)
}

func TestNewRequestSpecRejectsStreamingBody(t *testing.T) {
	_, err := NewRequestSpec(http.MethodPost, "http://host/", nil, bytes.NewReader([]byte("x")))
	assert.ErrorIs(t, err, ErrNonRebuildableRequest)

	_, err = NewRequestSpec(http.MethodPost, "http://host/", nil, io.Reader(nil))
	assert.NoError(t, err, "a nil reader interface is just nil")
}

func TestNewRequestSpecRejectsFormWithRawBody(t *testing.T) {
	form := document.FieldSet{{Name: "a", Value: "1"}}
	_, err := NewRequestSpec(http.MethodPost, "http://host/", form, "raw")
	assert.ErrorIs(t, err, ErrNonRebuildableRequest)
}

func TestNewRequestSpecAcceptsSnapshotBodies(t *testing.T) {
	for _, body := range []any{nil, "text", []byte("bytes")} {
		_, err := NewRequestSpec(http.MethodPost, "http://host/", nil, body)
		assert.NoError(t, err, "body %T", body)
	}
}

func TestBootstrapEstablishesSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "abc123"})
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	session, err := NewSession(testEngineConfig(), nil)
	require.NoError(t, err)
	assert.NoError(t, session.Bootstrap(context.Background(), srv.URL))
}

func TestBootstrapFailsWithoutCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	session, err := NewSession(testEngineConfig(), nil)
	require.NoError(t, err)
	assert.ErrorIs(t, session.Bootstrap(context.Background(), srv.URL), ErrNoSessionCookie)
}

func TestBootstrapFailsOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	session, err := NewSession(testEngineConfig(), nil)
	require.NoError(t, err)

	err = session.Bootstrap(context.Background(), srv.URL)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("<html><body><p>ok</p></body></html>"))
	}))
	defer srv.Close()

	e := newTestEngine(t, testEngineConfig())
	doc, err := e.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "a success ends retrying before the ceiling")

	text, err := doc.NormalizedText("//p")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestDoStopsAtRetryCeiling(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testEngineConfig()
	cfg.RetryAttempts = 3
	e := newTestEngine(t, cfg)

	_, err := e.Get(context.Background(), srv.URL)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, int32(3), calls.Load(), "the ceiling counts total attempts, not extra retries")
}

func TestDoDetectsExpiredSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>Sie wurden vom System abgemeldet</body></html>"))
	}))
	defer srv.Close()

	e := newTestEngine(t, testEngineConfig())
	_, err := e.Get(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestDoReplaysSessionCookies(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "abc123", Path: "/"})
		w.Write([]byte("<html></html>"))
	})
	var gotCookie atomic.Bool
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("JSESSIONID"); err == nil && c.Value == "abc123" {
			gotCookie.Store(true)
		}
		w.Write([]byte("<html></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testEngineConfig()
	session, err := NewSession(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, session.Bootstrap(context.Background(), srv.URL+"/login"))

	e := New(session, cfg, nil)
	_, err = e.Get(context.Background(), srv.URL+"/page")
	require.NoError(t, err)
	assert.True(t, gotCookie.Load())
}

func TestPostFormSendsFieldsInOrder(t *testing.T) {
	var body atomic.Value
	var contentType atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body.Store(string(raw))
		contentType.Store(r.Header.Get("Content-Type"))
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	e := newTestEngine(t, testEngineConfig())
	form := document.FieldSet{
		{Name: "zulu", Value: "1"},
		{Name: "alpha", Value: "2"},
	}
	_, err := e.PostForm(context.Background(), srv.URL, form)
	require.NoError(t, err)
	assert.Equal(t, "zulu=1&alpha=2", body.Load())
	assert.Equal(t, "application/x-www-form-urlencoded", contentType.Load())
}

func TestDoResolvesLinksAgainstRedirectTarget(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/moved/list.do", http.StatusFound)
	})
	mux.HandleFunc("/moved/list.do", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><a href="detail.do">x</a></body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := newTestEngine(t, testEngineConfig())
	doc, err := e.Get(context.Background(), srv.URL+"/start")
	require.NoError(t, err)

	links, err := doc.ExtractLinks("//a/@href")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, srv.URL+"/moved/detail.do", links[0].String())
}

func TestDoBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		inFlight.Add(-1)
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	cfg := testEngineConfig()
	cfg.WorkersNum = 2
	e := newTestEngine(t, cfg)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.Get(context.Background(), fmt.Sprintf("%s/?n=%d", srv.URL, i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestDoHonoursContextCancellation(t *testing.T) {
	cfg := testEngineConfig()
	cfg.WorkersNum = 1
	e := newTestEngine(t, cfg)

	// occupy the only slot so the second call blocks on admission
	e.slots <- struct{}{}
	defer func() { <-e.slots }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Get(ctx, "http://host/never-reached")
	assert.ErrorIs(t, err, context.Canceled)
}
