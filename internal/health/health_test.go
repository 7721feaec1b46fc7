package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Resinat/Dashgate/internal/config"
	"github.com/Resinat/Dashgate/internal/downstream"
)

func gatewayFor(url string) *downstream.Gateway {
	return downstream.NewGateway(config.Targets{Auth: url, Flags: url, Plots: url, Reports: url}, 5*time.Second)
}

func TestProbe_StatusMapping(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		connected bool
		substr    string
	}{
		{"ok", http.StatusOK, true, "Connected to plot service"},
		{"no content", http.StatusNoContent, true, "Connected"},
		{"server error", http.StatusInternalServerError, false, "status 500"},
		{"unavailable", http.StatusServiceUnavailable, false, "status 503"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					t.Errorf("path: got %q, want /health", r.URL.Path)
				}
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			res := NewAggregator(gatewayFor(srv.URL), time.Second).Probe(context.Background(), downstream.DomainPlots)
			if res.Connected != tc.connected {
				t.Fatalf("connected: got %v, want %v", res.Connected, tc.connected)
			}
			if !strings.Contains(res.Message, tc.substr) {
				t.Fatalf("message %q does not contain %q", res.Message, tc.substr)
			}
			if res.Domain != downstream.DomainPlots {
				t.Fatalf("domain: got %q", res.Domain)
			}
		})
	}
}

func TestProbe_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := NewAggregator(gatewayFor(url), time.Second).Probe(context.Background(), downstream.DomainAuth)
	if res.Connected {
		t.Fatal("refused connection must not be connected")
	}
	if !strings.Contains(res.Message, "Auth service not responding") {
		t.Fatalf("message: %q", res.Message)
	}
}

func TestProbe_FlagsUsesModePath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mode" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"mode":"test"}`))
	}))
	defer srv.Close()

	res := NewAggregator(gatewayFor(srv.URL), time.Second).Probe(context.Background(), downstream.DomainFlags)
	if !res.Connected {
		t.Fatalf("flags probe: %+v", res)
	}
}

type stuckPinger struct{}

func (stuckPinger) Ping(ctx context.Context, _ downstream.Domain, _ time.Duration) (int, error) {
	time.Sleep(2 * time.Second)
	return http.StatusOK, nil
}

func TestProbe_BoundedByTimeout(t *testing.T) {
	start := time.Now()
	res := NewAggregator(stuckPinger{}, 50*time.Millisecond).Probe(context.Background(), downstream.DomainReports)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("probe took %v", elapsed)
	}
	if res.Connected {
		t.Fatal("timed out probe must not be connected")
	}
	if !strings.Contains(res.Message, "timeout") {
		t.Fatalf("message: %q", res.Message)
	}
}

func TestProbeAll_OrderAndConcurrency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	start := time.Now()
	results := NewAggregator(gatewayFor(srv.URL), time.Second).ProbeAll(context.Background())
	if elapsed := time.Since(start); elapsed > 350*time.Millisecond {
		t.Fatalf("ProbeAll took %v, probes did not run concurrently", elapsed)
	}
	want := downstream.AllDomains()
	if len(results) != len(want) {
		t.Fatalf("results: got %d, want %d", len(results), len(want))
	}
	for i, d := range want {
		if results[i].Domain != d || !results[i].Connected {
			t.Fatalf("result %d: %+v", i, results[i])
		}
	}
}

func TestWatcher_SnapshotUsesCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w, err := NewWatcher(NewAggregator(gatewayFor(srv.URL), time.Second), "@every 1h", time.Minute)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	first := w.Snapshot(context.Background())
	if len(first) != 4 || hits.Load() != 4 {
		t.Fatalf("first snapshot: %d results, %d hits", len(first), hits.Load())
	}
	second := w.Snapshot(context.Background())
	if hits.Load() != 4 {
		t.Fatalf("cached snapshot issued probes: hits=%d", hits.Load())
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("cached result %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestWatcher_ResultHookAndTransitions(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var mu sync.Mutex
	var seen []ProbeResult
	w, err := NewWatcher(NewAggregator(gatewayFor(srv.URL), time.Second), "@every 1h", time.Minute,
		WithResultHook(func(res ProbeResult) {
			mu.Lock()
			seen = append(seen, res)
			mu.Unlock()
		}))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if res := w.Probe(context.Background(), downstream.DomainAuth); !res.Connected {
		t.Fatalf("first probe: %+v", res)
	}
	healthy.Store(false)
	if res := w.Probe(context.Background(), downstream.DomainAuth); res.Connected {
		t.Fatalf("second probe: %+v", res)
	}
	if connected, ok := w.states.Load(downstream.DomainAuth); !ok || connected {
		t.Fatalf("tracked state: connected=%v ok=%v", connected, ok)
	}

	// Refresh overwrites the cached entry.
	w.Refresh(context.Background())
	if res, ok := w.cache.Get(downstream.DomainPlots); !ok || res.Connected {
		t.Fatalf("cached plots result: %+v ok=%v", res, ok)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 6 {
		t.Fatalf("hook calls: got %d, want 6", len(seen))
	}
}

func TestNewWatcher_InvalidSchedule(t *testing.T) {
	if _, err := NewWatcher(NewAggregator(stuckPinger{}, time.Second), "every now and then", time.Second); err == nil {
		t.Fatal("expected schedule error")
	}
}

func TestWatcher_NextRun(t *testing.T) {
	w, err := NewWatcher(NewAggregator(stuckPinger{}, time.Second), "@every 1h", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	w.cron.Start()
	defer w.Stop()
	if next := w.NextRun(); next.IsZero() || time.Until(next) > time.Hour+time.Second {
		t.Fatalf("next run: %v", next)
	}
}
