package downstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Resinat/Dashgate/internal/config"
	"github.com/Resinat/Dashgate/internal/model"
)

func targetsFor(url string) config.Targets {
	return config.Targets{Auth: url, Flags: url, Plots: url, Reports: url}
}

type recordingObserver struct {
	mu   sync.Mutex
	recs []model.CallRecord
}

func (o *recordingObserver) ObserveCall(rec model.CallRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recs = append(o.recs, rec)
}

func (o *recordingObserver) all() []model.CallRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]model.CallRecord(nil), o.recs...)
}

func TestCreatePlot_PassesThroughStatusAndBody(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/plots" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"p1"}`)
	}))
	defer srv.Close()

	g := NewGateway(targetsFor(srv.URL), time.Second)
	env, err := NewPlotEnvelope(PlotRequest{Title: "t", Y: []float64{0.3, 0.31}}, nil)
	if err != nil {
		t.Fatalf("NewPlotEnvelope: %v", err)
	}
	resp, err := g.CreatePlot(context.Background(), env, nil)
	if err != nil {
		t.Fatalf("CreatePlot: %v", err)
	}
	if resp.Status != http.StatusCreated {
		t.Fatalf("status: got %d, want %d", resp.Status, http.StatusCreated)
	}
	if string(resp.Body) != `{"id":"p1"}` {
		t.Fatalf("body: got %s", resp.Body)
	}

	data, ok := gotBody["data"].(map[string]any)
	if !ok {
		t.Fatalf("plot body is missing nested data object: %v", gotBody)
	}
	if ys, _ := data["y"].([]any); len(ys) != 2 {
		t.Fatalf("data.y: got %v", data["y"])
	}
	if gotBody["title"] != "t" {
		t.Fatalf("title: got %v", gotBody["title"])
	}
}

func TestGateway_TimeoutMapsToUnavailableNamingDomain(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	g := NewGateway(targetsFor(srv.URL), 50*time.Millisecond)
	ctx := context.Background()
	env := PlotEnvelope{Data: PlotSeries{X: []any{0}, Y: []float64{0.3}}}

	calls := []struct {
		name   string
		domain Domain
		run    func() error
	}{
		{"register", DomainAuth, func() error { _, err := g.Register(ctx, RegisterRequest{Email: "a", Password: "b"}, nil); return err }},
		{"login", DomainAuth, func() error { _, err := g.Login(ctx, LoginRequest{Email: "a", Password: "b"}, nil); return err }},
		{"logout", DomainAuth, func() error { _, err := g.Logout(ctx, nil); return err }},
		{"verify", DomainAuth, func() error { _, err := g.Verify(ctx, nil); return err }},
		{"create plot", DomainPlots, func() error { _, err := g.CreatePlot(ctx, env, nil); return err }},
		{"fetch plot", DomainPlots, func() error { _, err := g.FetchPlot(ctx, "p1", nil); return err }},
		{"compile report", DomainReports, func() error { _, err := g.CompileReport(ctx, ReportEnvelope{}, nil); return err }},
		{"set mode", DomainFlags, func() error { _, err := g.SetMode(ctx, "test", nil); return err }},
	}
	for _, tc := range calls {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			de, ok := AsError(err)
			if !ok {
				t.Fatalf("expected *Error, got %v", err)
			}
			if de.Kind.HTTPStatus() != http.StatusServiceUnavailable {
				t.Fatalf("status: got %d, want 503", de.Kind.HTTPStatus())
			}
			if de.Domain != tc.domain {
				t.Fatalf("domain: got %q, want %q", de.Domain, tc.domain)
			}
			if !strings.Contains(de.Error(), tc.domain.DisplayName()) {
				t.Fatalf("message %q does not name %q", de.Error(), tc.domain.DisplayName())
			}
			if de.Detail.Kind != "timeout" {
				t.Fatalf("detail kind: got %q, want timeout", de.Detail.Kind)
			}
		})
	}
}

func TestGateway_ConnectionRefusedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	g := NewGateway(targetsFor(url), time.Second)
	_, err := g.CompileReport(context.Background(), ReportEnvelope{}, nil)
	de, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error, got %v", err)
	}
	if de.Kind != KindUnavailable {
		t.Fatalf("kind: got %v", de.Kind)
	}
	if !strings.Contains(de.Error(), "report service") {
		t.Fatalf("message %q does not name the report service", de.Error())
	}
}

func TestGateway_NonJSONBodyIsBadGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>oops</html>")
	}))
	defer srv.Close()

	g := NewGateway(targetsFor(srv.URL), time.Second)
	_, err := g.Login(context.Background(), LoginRequest{Email: "a", Password: "b"}, nil)
	de, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error, got %v", err)
	}
	if de.Kind.HTTPStatus() != http.StatusBadGateway {
		t.Fatalf("status: got %d, want 502", de.Kind.HTTPStatus())
	}
	if !strings.Contains(de.Error(), "invalid JSON body") {
		t.Fatalf("message %q does not describe the parse failure", de.Error())
	}
}

func TestGateway_NonSuccessJSONIsPassedThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"bad credentials"}`)
	}))
	defer srv.Close()

	g := NewGateway(targetsFor(srv.URL), time.Second)
	resp, err := g.Login(context.Background(), LoginRequest{Email: "a", Password: "b"}, nil)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.Status != http.StatusUnauthorized || resp.OK() {
		t.Fatalf("status: got %d", resp.Status)
	}
	if string(resp.Body) != `{"error":"bad credentials"}` {
		t.Fatalf("body: got %s", resp.Body)
	}
}

func TestGateway_NonSuccessTextKeepsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, "Unauthorized\n")
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	g := NewGateway(targetsFor(srv.URL), time.Second, WithObserver(obs))
	resp, err := g.Login(context.Background(), LoginRequest{Email: "a", Password: "b"}, nil)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.Status != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want 401", resp.Status)
	}
	var body struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		t.Fatalf("body is not JSON: %v (%s)", err, resp.Body)
	}
	if body.Status != "error" || body.Message != "auth service returned status 401: Unauthorized" {
		t.Fatalf("body: %+v", body)
	}
	if recs := obs.all(); len(recs) != 1 || recs[0].Outcome != model.OutcomeUpstreamErr {
		t.Fatalf("records: %+v", recs)
	}
}

func TestGateway_NonSuccessSnippetIsBounded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, strings.Repeat("x", 5000))
	}))
	defer srv.Close()

	g := NewGateway(targetsFor(srv.URL), time.Second)
	resp, err := g.CompileReport(context.Background(), ReportEnvelope{}, nil)
	if err != nil {
		t.Fatalf("CompileReport: %v", err)
	}
	if resp.Status != http.StatusInternalServerError {
		t.Fatalf("status: got %d", resp.Status)
	}
	if len(resp.Body) > 2*maxSnippetLen {
		t.Fatalf("body not bounded: %d bytes", len(resp.Body))
	}
}

func TestGateway_BearerAndForwardHeaders(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]http.Header{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.URL.Path] = r.Header.Clone()
		mu.Unlock()
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	g := NewGateway(targetsFor(srv.URL), time.Second,
		WithForwardHeaders([]string{"X-Tenant"}),
		WithObserver(obs),
	)
	inbound := http.Header{}
	inbound.Set("Authorization", "Bearer secret-token")
	inbound.Set("X-Tenant", "acme")
	ctx := WithRequestID(context.Background(), "req-1")

	if _, err := g.Verify(ctx, inbound); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if _, err := g.Login(ctx, LoginRequest{Email: "a", Password: "b"}, inbound); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := g.Logout(ctx, http.Header{}); err != nil {
		t.Fatalf("Logout without credential: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if got := seen["/verify"].Get("Authorization"); got != "Bearer secret-token" {
		t.Fatalf("verify Authorization: got %q", got)
	}
	if got := seen["/login"].Get("Authorization"); got != "" {
		t.Fatalf("login must not forward Authorization, got %q", got)
	}
	if got := seen["/logout"].Get("Authorization"); got != "" {
		t.Fatalf("logout Authorization: got %q, want empty", got)
	}
	if got := seen["/verify"].Get("X-Tenant"); got != "acme" {
		t.Fatalf("X-Tenant: got %q", got)
	}
	if got := seen["/login"].Get(RequestIDHeader); got != "req-1" {
		t.Fatalf("request id: got %q", got)
	}

	recs := obs.all()
	if len(recs) != 3 {
		t.Fatalf("observed calls: got %d, want 3", len(recs))
	}
	if recs[0].CredentialFP == "" || strings.Contains(recs[0].CredentialFP, "secret") {
		t.Fatalf("credential fingerprint: got %q", recs[0].CredentialFP)
	}
	if recs[0].Outcome != model.OutcomeOK || recs[0].Operation != OpVerify {
		t.Fatalf("record: %+v", recs[0])
	}
}

func TestFetchPlot_StreamsWithDefaultContentType(t *testing.T) {
	payload := strings.Repeat("\x89PNG", 1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/plots/p 1" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		w.Header()["Content-Type"] = nil
		_, _ = io.WriteString(w, payload)
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	g := NewGateway(targetsFor(srv.URL), time.Second, WithObserver(obs))
	bin, err := g.FetchPlot(context.Background(), "p 1", nil)
	if err != nil {
		t.Fatalf("FetchPlot: %v", err)
	}
	if bin.JSON != nil || bin.Body == nil {
		t.Fatalf("expected streamed body, got %+v", bin)
	}
	if bin.ContentType != DefaultImageContentType {
		t.Fatalf("content type: got %q", bin.ContentType)
	}
	got, err := io.ReadAll(bin.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if err := bin.Body.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if string(got) != payload {
		t.Fatalf("body length: got %d, want %d", len(got), len(payload))
	}

	recs := obs.all()
	if len(recs) != 1 || recs[0].ResponseBodyBytes != int64(len(payload)) {
		t.Fatalf("records: %+v", recs)
	}
}

func TestFetchPlot_NotFoundJSONPassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"plot not found"}`)
	}))
	defer srv.Close()

	g := NewGateway(targetsFor(srv.URL), time.Second)
	bin, err := g.FetchPlot(context.Background(), "missing", nil)
	if err != nil {
		t.Fatalf("FetchPlot: %v", err)
	}
	if bin.JSON == nil || bin.Status != http.StatusNotFound {
		t.Fatalf("expected JSON passthrough, got %+v", bin)
	}
	if string(bin.JSON.Body) != `{"error":"plot not found"}` {
		t.Fatalf("body: got %s", bin.JSON.Body)
	}
}

func TestFetchPlot_NotFoundHTMLKeepsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, "<h1>nf</h1>")
	}))
	defer srv.Close()

	g := NewGateway(targetsFor(srv.URL), time.Second)
	bin, err := g.FetchPlot(context.Background(), "x", nil)
	if err != nil {
		t.Fatalf("FetchPlot: %v", err)
	}
	if bin.Status != http.StatusNotFound || bin.JSON == nil || bin.Body != nil {
		t.Fatalf("expected normalized 404, got %+v", bin)
	}
	if !strings.Contains(string(bin.JSON.Body), `"status":"error"`) || !strings.Contains(string(bin.JSON.Body), "plot service returned status 404") {
		t.Fatalf("body: %s", bin.JSON.Body)
	}
}

func TestPing_StatusWithoutParsingBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/mode" {
			_, _ = io.WriteString(w, "plain text is fine")
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := NewGateway(targetsFor(srv.URL), time.Second)
	status, err := g.Ping(context.Background(), DomainFlags, time.Second)
	if err != nil || status != http.StatusOK {
		t.Fatalf("flags ping: status=%d err=%v", status, err)
	}
	status, err = g.Ping(context.Background(), DomainAuth, time.Second)
	if err != nil || status != http.StatusInternalServerError {
		t.Fatalf("auth ping: status=%d err=%v", status, err)
	}
}

func TestGateway_CallerCancelIsRecorded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	g := NewGateway(targetsFor(srv.URL), 5*time.Second, WithObserver(obs))
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := g.GetMode(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected wrapped context.Canceled, got %v", err)
	}
	recs := obs.all()
	if len(recs) != 1 || recs[0].Outcome != model.OutcomeCanceled {
		t.Fatalf("records: %+v", recs)
	}
}
