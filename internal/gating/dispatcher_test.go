package gating

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Resinat/Dashgate/internal/config"
	"github.com/Resinat/Dashgate/internal/downstream"
	"github.com/Resinat/Dashgate/internal/mode"
)

type fixedMode mode.Mode

func (f fixedMode) Resolve(context.Context) mode.Mode { return mode.Mode(f) }

// countingBackend is a real gateway pointed at a stub that counts hits.
func countingBackend(t *testing.T, status int, body string) (*downstream.Gateway, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	targets := config.Targets{Auth: srv.URL, Flags: srv.URL, Plots: srv.URL, Reports: srv.URL}
	return downstream.NewGateway(targets, time.Second), &hits
}

func testEnvelopes() (downstream.PlotEnvelope, downstream.ReportEnvelope) {
	return downstream.PlotEnvelope{Data: downstream.PlotSeries{X: []any{0}, Y: []float64{0.3}}},
		downstream.ReportEnvelope{Title: "r"}
}

func TestDispatcher_TestModeNeverCallsDownstream(t *testing.T) {
	gw, hits := countingBackend(t, http.StatusCreated, `{"id":"p1"}`)
	var skipped []string
	d := NewDispatcher(fixedMode(mode.Test), gw, WithSkipHook(func(op string) { skipped = append(skipped, op) }))
	plot, report := testEnvelopes()

	out, err := d.CreatePlot(context.Background(), plot, nil)
	if err != nil {
		t.Fatalf("CreatePlot: %v", err)
	}
	if !out.Skipped || out.Mode != mode.Test || out.Response != nil || out.Message == "" {
		t.Fatalf("plot outcome: %+v", out)
	}

	out, err = d.CompileReport(context.Background(), report, nil)
	if err != nil {
		t.Fatalf("CompileReport: %v", err)
	}
	if !out.Skipped || out.Mode != mode.Test {
		t.Fatalf("report outcome: %+v", out)
	}

	if n := hits.Load(); n != 0 {
		t.Fatalf("downstream hits in test mode: got %d, want 0", n)
	}
	if len(skipped) != 2 || skipped[0] != downstream.OpCreatePlot || skipped[1] != downstream.OpCompileReport {
		t.Fatalf("skip hook: %v", skipped)
	}
}

func TestDispatcher_EmptyPlotFailsOnlyInProduction(t *testing.T) {
	gw, hits := countingBackend(t, http.StatusCreated, `{"id":"p1"}`)

	out, err := NewDispatcher(fixedMode(mode.Test), gw).CreatePlot(context.Background(), downstream.PlotEnvelope{}, nil)
	if err != nil || !out.Skipped {
		t.Fatalf("test mode: out=%+v err=%v", out, err)
	}

	_, err = NewDispatcher(fixedMode(mode.Production), gw).CreatePlot(context.Background(), downstream.PlotEnvelope{}, nil)
	if !errors.Is(err, downstream.ErrNoPlotData) {
		t.Fatalf("production: expected ErrNoPlotData, got %v", err)
	}
	if n := hits.Load(); n != 0 {
		t.Fatalf("downstream hits: got %d, want 0", n)
	}
}

func TestDispatcher_ProductionDelegatesUnchanged(t *testing.T) {
	gw, hits := countingBackend(t, http.StatusCreated, `{"id":"p1"}`)
	d := NewDispatcher(fixedMode(mode.Production), gw)
	plot, report := testEnvelopes()

	out, err := d.CreatePlot(context.Background(), plot, nil)
	if err != nil {
		t.Fatalf("CreatePlot: %v", err)
	}
	if out.Skipped || out.Response == nil {
		t.Fatalf("plot outcome: %+v", out)
	}
	if out.Response.Status != http.StatusCreated || string(out.Response.Body) != `{"id":"p1"}` {
		t.Fatalf("response: %d %s", out.Response.Status, out.Response.Body)
	}

	if _, err := d.CompileReport(context.Background(), report, nil); err != nil {
		t.Fatalf("CompileReport: %v", err)
	}
	if n := hits.Load(); n != 2 {
		t.Fatalf("downstream hits in production: got %d, want 2", n)
	}
}

func TestDispatcher_UnreachableFlagsMeansSkipped(t *testing.T) {
	gw, hits := countingBackend(t, http.StatusOK, `{}`)

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()
	flags := downstream.NewGateway(config.Targets{Auth: deadURL, Flags: deadURL, Plots: deadURL, Reports: deadURL}, time.Second)

	d := NewDispatcher(mode.NewResolver(flags, time.Second), gw)
	plot, _ := testEnvelopes()
	out, err := d.CreatePlot(context.Background(), plot, nil)
	if err != nil {
		t.Fatalf("CreatePlot: %v", err)
	}
	if !out.Skipped || out.Mode != mode.Test {
		t.Fatalf("outcome: %+v", out)
	}
	if hits.Load() != 0 {
		t.Fatal("plot service contacted while mode unknown")
	}
}

func TestDispatcher_ProductionErrorIsReturned(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()
	gw := downstream.NewGateway(config.Targets{Auth: deadURL, Flags: deadURL, Plots: deadURL, Reports: deadURL}, time.Second)

	d := NewDispatcher(fixedMode(mode.Production), gw)
	_, report := testEnvelopes()
	_, err := d.CompileReport(context.Background(), report, nil)
	de, ok := downstream.AsError(err)
	if !ok || de.Kind != downstream.KindUnavailable || de.Domain != downstream.DomainReports {
		t.Fatalf("error: %v", err)
	}
}
