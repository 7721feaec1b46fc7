package downstream

import (
	"context"
	"net/http"
	"net/url"
)

// Operation names recorded in the call log and metrics.
const (
	OpRegister      = "register"
	OpLogin         = "login"
	OpLogout        = "logout"
	OpVerify        = "verify"
	OpCreatePlot    = "create_plot"
	OpFetchPlot     = "fetch_plot"
	OpCompileReport = "compile_report"
	OpGetMode       = "get_mode"
	OpSetMode       = "set_mode"
	OpHealth        = "health"
)

// --- auth ---

func (g *Gateway) Register(ctx context.Context, body RegisterRequest, inbound http.Header) (*Response, error) {
	return g.Do(ctx, Call{
		Domain: DomainAuth, Operation: OpRegister,
		Method: http.MethodPost, Path: "/register",
		Body: body, Inbound: inbound,
	})
}

func (g *Gateway) Login(ctx context.Context, body LoginRequest, inbound http.Header) (*Response, error) {
	return g.Do(ctx, Call{
		Domain: DomainAuth, Operation: OpLogin,
		Method: http.MethodPost, Path: "/login",
		Body: body, Inbound: inbound,
	})
}

// Logout forwards the caller's Authorization header when present.
func (g *Gateway) Logout(ctx context.Context, inbound http.Header) (*Response, error) {
	return g.Do(ctx, Call{
		Domain: DomainAuth, Operation: OpLogout,
		Method: http.MethodPost, Path: "/logout",
		Inbound: inbound, Bearer: true,
	})
}

// Verify forwards the caller's Authorization header when present.
func (g *Gateway) Verify(ctx context.Context, inbound http.Header) (*Response, error) {
	return g.Do(ctx, Call{
		Domain: DomainAuth, Operation: OpVerify,
		Method: http.MethodGet, Path: "/verify",
		Inbound: inbound, Bearer: true,
	})
}

// --- plots ---

func (g *Gateway) CreatePlot(ctx context.Context, env PlotEnvelope, inbound http.Header) (*Response, error) {
	return g.Do(ctx, Call{
		Domain: DomainPlots, Operation: OpCreatePlot,
		Method: http.MethodPost, Path: "/plots",
		Body: env, Inbound: inbound,
	})
}

// FetchPlot streams the rendered image for id.
func (g *Gateway) FetchPlot(ctx context.Context, id string, inbound http.Header) (*Binary, error) {
	return g.Stream(ctx, Call{
		Domain: DomainPlots, Operation: OpFetchPlot,
		Method: http.MethodGet, Path: "/plots/" + url.PathEscape(id),
		Inbound: inbound,
	})
}

// --- reports ---

func (g *Gateway) CompileReport(ctx context.Context, env ReportEnvelope, inbound http.Header) (*Response, error) {
	return g.Do(ctx, Call{
		Domain: DomainReports, Operation: OpCompileReport,
		Method: http.MethodPost, Path: "/compile",
		Body: env, Inbound: inbound,
	})
}

// --- feature flags ---

func (g *Gateway) GetMode(ctx context.Context) (*Response, error) {
	return g.Do(ctx, Call{
		Domain: DomainFlags, Operation: OpGetMode,
		Method: http.MethodGet, Path: "/mode",
	})
}

func (g *Gateway) SetMode(ctx context.Context, mode string, inbound http.Header) (*Response, error) {
	return g.Do(ctx, Call{
		Domain: DomainFlags, Operation: OpSetMode,
		Method: http.MethodPost, Path: "/mode",
		Body: SetModeRequest{Mode: mode}, Inbound: inbound,
	})
}
