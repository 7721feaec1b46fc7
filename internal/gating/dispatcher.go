// Package gating runs side-effecting downstream operations only when the
// operating mode is production.
package gating

import (
	"context"
	"net/http"

	"github.com/Resinat/Dashgate/internal/downstream"
	"github.com/Resinat/Dashgate/internal/mode"
	"go.uber.org/zap"
)

// ModeSource resolves the current mode. *mode.Resolver implements it.
type ModeSource interface {
	Resolve(ctx context.Context) mode.Mode
}

// Backend is the subset of *downstream.Gateway the dispatcher wraps.
type Backend interface {
	CreatePlot(ctx context.Context, env downstream.PlotEnvelope, inbound http.Header) (*downstream.Response, error)
	CompileReport(ctx context.Context, env downstream.ReportEnvelope, inbound http.Header) (*downstream.Response, error)
}

// Outcome is the result of a gated call. Response is nil when Skipped.
type Outcome struct {
	Skipped  bool
	Mode     mode.Mode
	Message  string
	Response *downstream.Response
}

// Dispatcher resolves the mode before each gated call.
type Dispatcher struct {
	modes   ModeSource
	backend Backend
	logger  *zap.Logger
	onSkip  func(operation string)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithSkipHook is called with the operation name whenever a call is skipped.
func WithSkipHook(fn func(operation string)) Option {
	return func(d *Dispatcher) { d.onSkip = fn }
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(modes ModeSource, backend Backend, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		modes:   modes,
		backend: backend,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

const (
	plotSkippedMessage   = "Plot creation skipped in test mode."
	reportSkippedMessage = "Report compilation skipped in test mode."
)

// CreatePlot sends env to the plot service in production mode. An empty
// env fails with downstream.ErrNoPlotData, but only once the call would
// actually run.
func (d *Dispatcher) CreatePlot(ctx context.Context, env downstream.PlotEnvelope, inbound http.Header) (Outcome, error) {
	return d.run(ctx, downstream.OpCreatePlot, plotSkippedMessage, func() (*downstream.Response, error) {
		if env.Empty() {
			return nil, downstream.ErrNoPlotData
		}
		return d.backend.CreatePlot(ctx, env, inbound)
	})
}

// CompileReport sends env to the report service in production mode.
func (d *Dispatcher) CompileReport(ctx context.Context, env downstream.ReportEnvelope, inbound http.Header) (Outcome, error) {
	return d.run(ctx, downstream.OpCompileReport, reportSkippedMessage, func() (*downstream.Response, error) {
		return d.backend.CompileReport(ctx, env, inbound)
	})
}

func (d *Dispatcher) run(ctx context.Context, op, skipped string, call func() (*downstream.Response, error)) (Outcome, error) {
	m := d.modes.Resolve(ctx)
	if m != mode.Production {
		d.logger.Info("gated call skipped",
			zap.String("operation", op),
			zap.String("mode", string(m)),
			zap.String("request_id", downstream.RequestIDFromContext(ctx)),
		)
		if d.onSkip != nil {
			d.onSkip(op)
		}
		return Outcome{Skipped: true, Mode: m, Message: skipped}, nil
	}

	resp, err := call()
	if err != nil {
		return Outcome{Mode: m}, err
	}
	return Outcome{Mode: m, Response: resp}, nil
}
