package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tinytelemetry/netwatch/internal/model"
	"github.com/tinytelemetry/netwatch/internal/stats"
)

func freshRepo(t *testing.T) *stats.Repository {
	t.Helper()
	return stats.NewRepository(stats.Options{Target: "1.1.1.1"})
}

func get(t *testing.T, s *Server, path string, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "127.0.0.1:55555"
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthStaleWithoutSamples(t *testing.T) {
	s, err := NewServer(Config{Addr: "127.0.0.1:0", Interval: time.Second}, freshRepo(t))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if rec := get(t, s, "/health"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code=%d", rec.Code)
	}
}

func TestHealthLiveAfterRecentSample(t *testing.T) {
	repo := freshRepo(t)
	repo.RecordPingResult(model.Sample{SentAt: time.Now().UTC(), OK: true, RTTms: 10})

	s, err := NewServer(Config{Addr: "127.0.0.1:0", Interval: time.Second}, repo)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if rec := get(t, s, "/health"); rec.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestReadyRequiresFirstTick(t *testing.T) {
	repo := freshRepo(t)
	repo.RecordPingResult(model.Sample{SentAt: time.Now().UTC(), OK: true, RTTms: 10})

	s, err := NewServer(Config{Addr: "127.0.0.1:0", Interval: time.Second}, repo)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if rec := get(t, s, "/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready before first tick: code=%d", rec.Code)
	}

	repo.MarkFirstTick()
	if rec := get(t, s, "/ready"); rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}
}

func TestNonLoopbackBindRefusedWithoutAuth(t *testing.T) {
	if _, err := NewServer(Config{Addr: "0.0.0.0:8787"}, freshRepo(t)); err == nil {
		t.Fatal("public bind without credentials accepted")
	}

	if _, err := NewServer(Config{Addr: "0.0.0.0:8787", AuthUser: "ops", AuthPassword: "secret"}, freshRepo(t)); err != nil {
		t.Fatalf("bind with credentials refused: %v", err)
	}
	if _, err := NewServer(Config{Addr: "0.0.0.0:8787", AllowPublic: true}, freshRepo(t)); err != nil {
		t.Fatalf("bind with bypass refused: %v", err)
	}
}

func TestBasicAuthEnforced(t *testing.T) {
	repo := freshRepo(t)
	repo.RecordPingResult(model.Sample{SentAt: time.Now().UTC(), OK: true, RTTms: 10})

	s, err := NewServer(Config{Addr: "0.0.0.0:0", AuthUser: "ops", AuthPassword: "secret", Interval: time.Second}, repo)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	if rec := get(t, s, "/health"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated code=%d", rec.Code)
	}
	rec := get(t, s, "/health", func(r *http.Request) { r.SetBasicAuth("ops", "secret") })
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated code=%d", rec.Code)
	}
	rec = get(t, s, "/health", func(r *http.Request) { r.SetBasicAuth("ops", "wrong") })
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password code=%d", rec.Code)
	}
}

func TestRateLimitKicksIn(t *testing.T) {
	repo := freshRepo(t)
	s, err := NewServer(Config{Addr: "127.0.0.1:0", Interval: time.Second}, repo)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	limited := false
	for i := 0; i < 120; i++ {
		if rec := get(t, s, "/health"); rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatal("rate limit never engaged")
	}
}
