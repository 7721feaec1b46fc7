// Package mode resolves the operating mode published by the feature-flag
// service.
package mode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Resinat/Dashgate/internal/downstream"
	"go.uber.org/zap"
)

// Mode is the externally owned operating mode.
type Mode string

const (
	Test       Mode = "test"
	Production Mode = "production"

	// Default is used whenever the flag service cannot give a clear answer.
	// Unknown state must never be read as production.
	Default = Test
)

// ErrInvalidMode is returned by Parse for anything but test or production.
var ErrInvalidMode = errors.New(`mode must be "test" or "production"`)

// Parse accepts test or production in any letter case.
func Parse(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case Test, Production:
		return m, nil
	}
	return "", ErrInvalidMode
}

// Result is the outcome of one lookup. Err is set whenever Mode could not
// be read from the flag service.
type Result struct {
	Mode Mode
	Err  error
}

// OrDefault applies the fallback policy: every failed lookup means test.
func (r Result) OrDefault() Mode {
	if r.Err != nil || (r.Mode != Test && r.Mode != Production) {
		return Default
	}
	return r.Mode
}

// Fetcher reads the raw mode reply. *downstream.Gateway implements it.
type Fetcher interface {
	GetMode(ctx context.Context) (*downstream.Response, error)
}

// Resolver looks up the current mode with a bounded timeout.
type Resolver struct {
	fetcher    Fetcher
	timeout    time.Duration
	logger     *zap.Logger
	onFallback func(err error)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithFallbackHook is called with the cause every time the default is used.
func WithFallbackHook(fn func(err error)) Option {
	return func(r *Resolver) { r.onFallback = fn }
}

// NewResolver creates a Resolver. A non-positive timeout means 2s.
func NewResolver(fetcher Fetcher, timeout time.Duration, opts ...Option) *Resolver {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	r := &Resolver{
		fetcher: fetcher,
		timeout: timeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type modeReply struct {
	Mode *string `json:"mode"`
}

// Lookup asks the flag service for its mode. It never panics and always
// returns within the resolver timeout.
func (r *Resolver) Lookup(ctx context.Context) Result {
	if r.fetcher == nil {
		return Result{Err: errors.New("mode resolver not configured")}
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.fetcher.GetMode(ctx)
	if err != nil {
		return Result{Err: err}
	}
	if !resp.OK() {
		return Result{Err: fmt.Errorf("flag service returned status %d", resp.Status)}
	}
	var reply modeReply
	if err := json.Unmarshal(resp.Body, &reply); err != nil {
		return Result{Err: fmt.Errorf("decode mode reply: %w", err)}
	}
	if reply.Mode == nil {
		return Result{Err: errors.New("mode reply has no mode field")}
	}
	m, err := Parse(*reply.Mode)
	if err != nil {
		return Result{Err: fmt.Errorf("mode reply %q: %w", *reply.Mode, err)}
	}
	return Result{Mode: m}
}

// Resolve is Lookup with the fallback policy applied.
func (r *Resolver) Resolve(ctx context.Context) Mode {
	res := r.Lookup(ctx)
	if res.Err != nil {
		r.logger.Info("mode lookup failed, using default",
			zap.String("default", string(Default)),
			zap.String("request_id", downstream.RequestIDFromContext(ctx)),
			zap.Error(res.Err),
		)
		if r.onFallback != nil {
			r.onFallback(res.Err)
		}
	}
	return res.OrDefault()
}
