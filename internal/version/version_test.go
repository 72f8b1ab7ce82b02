package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/tinytelemetry/netwatch/internal/stats"
)

func TestNewer(t *testing.T) {
	cases := []struct {
		latest, current string
		want            bool
	}{
		{"v1.2.0", "v1.1.9", true},
		{"1.2.0", "1.2.0", false},
		{"v1.2", "v1.2.0", false},
		{"v2.0.0-rc1", "v1.9.9", true},
		{"v1.10.0", "v1.9.0", true},
		{"v1.2.0", "v1.2.1", false},
		{"v1.2.0-rc3", "v1.2.0", false},
	}
	for _, tc := range cases {
		if got := Newer(tc.latest, tc.current); got != tc.want {
			t.Fatalf("Newer(%q, %q)=%v, want %v", tc.latest, tc.current, got, tc.want)
		}
	}
}

func TestRunOnceCommitsResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Write([]byte(`[{"name":"v2.1.0"},{"name":"v2.0.0"}]`))
	}))
	defer srv.Close()

	repo := stats.NewRepository(stats.Options{Target: "1.1.1.1"})
	w := NewWorker("2.0.0", srv.URL, repo, nil)
	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	v := repo.Snapshot().Version
	if v.Latest != "v2.1.0" || !v.UpdateAvailable {
		t.Fatalf("version=%+v", v)
	}
}

func TestRunOnceRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			rw.WriteHeader(http.StatusBadGateway)
			return
		}
		rw.Write([]byte(`[{"name":"v1.0.1"}]`))
	}))
	defer srv.Close()

	repo := stats.NewRepository(stats.Options{Target: "1.1.1.1"})
	w := NewWorker("1.0.0", srv.URL, repo, nil)
	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls=%d, want 3", calls.Load())
	}
	if !repo.Snapshot().Version.UpdateAvailable {
		t.Fatal("update not detected after retries")
	}
}

func TestRunOnceToleratesTotalFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	repo := stats.NewRepository(stats.Options{Target: "1.1.1.1"})
	w := NewWorker("1.0.0", srv.URL, repo, nil)
	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("worker must swallow transient failure, got %v", err)
	}
	if !repo.Snapshot().Version.CheckedAt.IsZero() {
		t.Fatal("failed check still committed a result")
	}
}
