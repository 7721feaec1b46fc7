package api

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/Resinat/Dashgate/internal/buildinfo"
	"github.com/Resinat/Dashgate/internal/calllog"
	"github.com/Resinat/Dashgate/internal/downstream"
	"github.com/Resinat/Dashgate/internal/gating"
	"github.com/Resinat/Dashgate/internal/health"
	"github.com/Resinat/Dashgate/internal/metrics"
	"github.com/Resinat/Dashgate/internal/mode"
	"github.com/Resinat/Dashgate/internal/rolling"
	"github.com/Resinat/Dashgate/internal/sensor"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Deps are the components the routes are served from. CallLog and Metrics
// are optional: their routes are not registered when nil.
type Deps struct {
	Buffer     *rolling.Buffer
	Generator  *sensor.Generator
	Gateway    *downstream.Gateway
	Resolver   *mode.Resolver
	Dispatcher *gating.Dispatcher
	Watcher    *health.Watcher
	CallLog    *calllog.Repo
	Metrics    *metrics.Metrics
	SystemInfo buildinfo.Info
	Logger     *zap.Logger

	SerialNumber     string
	ServiceAvailable bool
	MaxBodyBytes     int64
}

// Server wraps the HTTP server and handler chain.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
}

// NewServer creates a new API server wired with all routes.
func NewServer(listenAddress string, port int, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()

	mux.Handle("GET /healthz", HandleHealthz())
	mux.Handle("GET /api/system/info", HandleSystemInfo(deps.SystemInfo, deps.Gateway.Targets()))

	// Buffer.
	mux.Handle("GET /api/data", HandleData(deps.Generator, deps.Buffer))
	mux.Handle("POST /api/generate", HandleGenerate(deps.Generator, deps.Buffer))
	mux.Handle("GET /api/stats", HandleStats(deps.Buffer))
	mux.Handle("GET /api/status", HandleStatus(deps.SerialNumber, deps.ServiceAvailable))
	mux.Handle("POST /api/reset", HandleReset(deps.Buffer))

	// Mode.
	mux.Handle("GET /api/mode", HandleGetMode(deps.Resolver))
	mux.Handle("POST /api/mode", HandleSetMode(deps.Gateway))

	// Gated operations.
	mux.Handle("POST /api/plots", HandleCreatePlot(deps.Dispatcher, deps.Buffer))
	mux.Handle("GET /api/plots/{id}", HandleFetchPlot(deps.Gateway, logger))
	mux.Handle("POST /api/report", HandleCompileReport(deps.Dispatcher, deps.Buffer))
	mux.Handle("GET /api/report", HandleCompileReport(deps.Dispatcher, deps.Buffer))

	// Auth.
	mux.Handle("POST /api/auth/register", HandleRegister(deps.Gateway))
	mux.Handle("POST /api/auth/login", HandleLogin(deps.Gateway))
	mux.Handle("POST /api/auth/logout", HandleLogout(deps.Gateway))
	mux.Handle("GET /api/auth/verify", HandleVerify(deps.Gateway))

	// Health. Literal per-domain paths so /api/plots/health does not
	// collide with /api/plots/{id}.
	for _, d := range downstream.AllDomains() {
		mux.Handle("GET /api/"+string(d)+"/health", HandleDomainHealth(deps.Watcher, d))
	}
	mux.Handle("GET /api/health", HandleAggregateHealth(deps.Watcher))

	if deps.CallLog != nil {
		mux.Handle("GET /api/calls", HandleListCalls(deps.CallLog, logger))
		mux.Handle("GET /api/calls/{id}", HandleGetCall(deps.CallLog, logger))
	}

	var obs HTTPObserver
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
		obs = deps.Metrics
	}

	// The access log sits directly on the mux to see the matched pattern.
	var handler http.Handler = AccessLogMiddleware(logger, obs, JSONFallbackMiddleware(mux))
	handler = RequestBodyLimitMiddleware(deps.MaxBodyBytes, handler)
	handler = RequestIDMiddleware(handler)
	handler = RecoverMiddleware(logger, handler)
	handler = middleware.RealIP(handler)

	srv := &http.Server{
		Addr:    net.JoinHostPort(listenAddress, strconv.Itoa(port)),
		Handler: handler,
	}

	return &Server{
		httpServer: srv,
		handler:    handler,
	}
}

// ListenAndServe starts the HTTP server. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on ln. It blocks until the server stops.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the full handler chain for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}
