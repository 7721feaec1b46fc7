package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Resinat/Dashgate/internal/config"
	"github.com/Resinat/Dashgate/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// maxResponseBytes caps buffered JSON replies.
	maxResponseBytes = 8 << 20

	// DefaultImageContentType is used when a plot image reply has no Content-Type.
	DefaultImageContentType = "image/png"
)

// Observer receives one record per completed downstream call.
type Observer interface {
	ObserveCall(rec model.CallRecord)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(rec model.CallRecord)

func (f ObserverFunc) ObserveCall(rec model.CallRecord) { f(rec) }

// Call describes one downstream request.
type Call struct {
	Domain    Domain
	Operation string
	Method    string
	Path      string
	// Body is JSON-encoded when non-nil.
	Body any
	// Inbound holds the caller's request headers. Configured forward headers
	// are copied from it, and Authorization when Bearer is set.
	Inbound http.Header
	Bearer  bool
	// Timeout overrides the gateway default when positive.
	Timeout time.Duration
}

// Response is a completed downstream reply with a well-formed JSON body.
// Body is nil only for 204 No Content.
type Response struct {
	Status int
	Body   json.RawMessage
}

// OK reports whether the downstream status is 2xx.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Binary is a streamed downstream reply. For 2xx replies Body is set and
// the caller must close it; otherwise JSON holds the parsed error reply.
type Binary struct {
	Status      int
	ContentType string
	Body        io.ReadCloser
	JSON        *Response
}

// Gateway performs bounded-time calls against the configured targets.
type Gateway struct {
	targets        config.Targets
	client         *http.Client
	timeout        time.Duration
	forwardHeaders []string
	observers      []Observer
	logger         *zap.Logger
	now            func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		if c != nil {
			g.client = c
		}
	}
}

// WithForwardHeaders lists inbound headers copied onto every call.
func WithForwardHeaders(names []string) Option {
	return func(g *Gateway) {
		g.forwardHeaders = append([]string(nil), names...)
	}
}

// WithObserver adds an observer; may be given more than once.
func WithObserver(o Observer) Option {
	return func(g *Gateway) {
		if o != nil {
			g.observers = append(g.observers, o)
		}
	}
}

// WithLogger sets the logger. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGateway creates a Gateway. timeout bounds every call that does not set
// its own.
func NewGateway(targets config.Targets, timeout time.Duration, opts ...Option) *Gateway {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	g := &Gateway{
		targets: targets,
		client:  &http.Client{},
		timeout: timeout,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Targets returns the configured downstream addresses.
func (g *Gateway) Targets() config.Targets {
	return g.targets
}

// Do executes call and buffers the JSON reply. Any status is passed through
// as long as the body is valid JSON. Failures are returned as *Error.
func (g *Gateway) Do(ctx context.Context, call Call) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeoutFor(call))
	defer cancel()

	req, rec, err := g.newRequest(ctx, call)
	if err != nil {
		return nil, err
	}
	start := g.now()

	resp, err := g.client.Do(req)
	if err != nil {
		de := unavailable(call.Domain, err)
		g.finish(ctx, &rec, start, 0, 0, de)
		return nil, de
	}
	defer resp.Body.Close()

	parsed, n, perr := g.readJSON(call.Domain, resp)
	g.finish(ctx, &rec, start, resp.StatusCode, n, perr)
	if perr != nil {
		return nil, perr
	}
	return parsed, nil
}

// Stream executes call without buffering a 2xx body. The per-call timeout
// keeps running until the returned Body is closed.
func (g *Gateway) Stream(ctx context.Context, call Call) (*Binary, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeoutFor(call))

	req, rec, err := g.newRequest(ctx, call)
	if err != nil {
		cancel()
		return nil, err
	}
	start := g.now()

	resp, err := g.client.Do(req)
	if err != nil {
		de := unavailable(call.Domain, err)
		g.finish(ctx, &rec, start, 0, 0, de)
		cancel()
		return nil, de
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer cancel()
		defer resp.Body.Close()
		parsed, n, perr := g.readJSON(call.Domain, resp)
		g.finish(ctx, &rec, start, resp.StatusCode, n, perr)
		if perr != nil {
			return nil, perr
		}
		return &Binary{Status: parsed.Status, JSON: parsed}, nil
	}

	contentType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = DefaultImageContentType
	}
	body := &observedBody{
		rc: resp.Body,
		onClose: func(n int64, readErr error) {
			var de *Error
			if readErr != nil {
				de = unavailable(call.Domain, readErr)
			}
			g.finish(ctx, &rec, start, resp.StatusCode, n, de)
			cancel()
		},
	}
	return &Binary{Status: resp.StatusCode, ContentType: contentType, Body: body}, nil
}

// Ping issues the liveness request for d and returns the reply status. The
// body is drained, not parsed.
func (g *Gateway) Ping(ctx context.Context, d Domain, timeout time.Duration) (int, error) {
	call := Call{Domain: d, Operation: OpHealth, Method: http.MethodGet, Path: d.HealthPath(), Timeout: timeout}
	ctx, cancel := context.WithTimeout(ctx, g.timeoutFor(call))
	defer cancel()

	req, rec, err := g.newRequest(ctx, call)
	if err != nil {
		return 0, err
	}
	start := g.now()

	resp, err := g.client.Do(req)
	if err != nil {
		de := unavailable(d, err)
		g.finish(ctx, &rec, start, 0, 0, de)
		return 0, de
	}
	defer resp.Body.Close()

	n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	var de *Error
	if err != nil {
		de = unavailable(d, err)
	}
	g.finish(ctx, &rec, start, resp.StatusCode, n, de)
	if de != nil {
		return resp.StatusCode, de
	}
	return resp.StatusCode, nil
}

func (g *Gateway) timeoutFor(call Call) time.Duration {
	if call.Timeout > 0 {
		return call.Timeout
	}
	return g.timeout
}

func (g *Gateway) newRequest(ctx context.Context, call Call) (*http.Request, model.CallRecord, error) {
	base := BaseURL(g.targets, call.Domain)
	if base == "" {
		return nil, model.CallRecord{}, fmt.Errorf("downstream: unknown domain %q", call.Domain)
	}

	var body io.Reader
	if call.Body != nil {
		raw, err := json.Marshal(call.Body)
		if err != nil {
			return nil, model.CallRecord{}, fmt.Errorf("downstream %s %s: encode body: %w", call.Domain, call.Operation, err)
		}
		body = bytes.NewReader(raw)
	}

	target := base + call.Path
	req, err := http.NewRequestWithContext(ctx, call.Method, target, body)
	if err != nil {
		return nil, model.CallRecord{}, fmt.Errorf("downstream %s %s: build request: %w", call.Domain, call.Operation, err)
	}
	req.Header.Set("Accept", "application/json")
	if call.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, name := range g.forwardHeaders {
		if vals := call.Inbound.Values(name); len(vals) > 0 {
			req.Header[http.CanonicalHeaderKey(name)] = append([]string(nil), vals...)
		}
	}
	requestID := RequestIDFromContext(ctx)
	if requestID != "" {
		req.Header.Set(RequestIDHeader, requestID)
	}

	var fingerprint string
	if call.Bearer {
		if auth := call.Inbound.Get("Authorization"); auth != "" {
			req.Header.Set("Authorization", auth)
			fingerprint = CredentialFingerprint(auth)
		}
	}

	rec := model.CallRecord{
		ID:           uuid.NewString(),
		RequestID:    requestID,
		Domain:       string(call.Domain),
		Operation:    call.Operation,
		HTTPMethod:   call.Method,
		TargetURL:    target,
		CredentialFP: fingerprint,
	}
	return req, rec, nil
}

// readJSON buffers and validates a reply body.
func (g *Gateway) readJSON(d Domain, resp *http.Response) (*Response, int64, *Error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	n := int64(len(raw))
	if err != nil {
		return nil, n, unavailable(d, err)
	}
	if n > maxResponseBytes {
		return nil, n, badGateway(d, fmt.Sprintf("status %d: body exceeds %d bytes", resp.StatusCode, maxResponseBytes), nil)
	}
	if resp.StatusCode == http.StatusNoContent && n == 0 {
		return &Response{Status: resp.StatusCode}, 0, nil
	}
	if !json.Valid(raw) {
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			syntaxErr := json.Unmarshal(raw, new(json.RawMessage))
			return nil, n, badGateway(d, fmt.Sprintf("status %d: invalid JSON body: %v", resp.StatusCode, syntaxErr), syntaxErr)
		}
		// Rejections keep their status; only the body is normalized.
		return &Response{Status: resp.StatusCode, Body: rejectionBody(d, resp.StatusCode, raw)}, n, nil
	}
	return &Response{Status: resp.StatusCode, Body: json.RawMessage(raw)}, n, nil
}

const maxSnippetLen = 200

type rejection struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// rejectionBody wraps a non-JSON error reply into the uniform error body,
// quoting a bounded single-line snippet of what the downstream sent.
func rejectionBody(d Domain, status int, raw []byte) json.RawMessage {
	msg := fmt.Sprintf("%s returned status %d", d.DisplayName(), status)
	snippet := strings.Join(strings.Fields(strings.ToValidUTF8(string(raw), "")), " ")
	if len(snippet) > maxSnippetLen {
		snippet = strings.ToValidUTF8(snippet[:maxSnippetLen], "")
	}
	if snippet != "" {
		msg += ": " + snippet
	}
	body, _ := json.Marshal(rejection{Status: "error", Message: msg})
	return body
}

func (g *Gateway) finish(ctx context.Context, rec *model.CallRecord, start time.Time, status int, bodyBytes int64, callErr *Error) {
	elapsed := g.now().Sub(start)
	rec.TsNs = start.UnixNano()
	rec.DurationNs = elapsed.Nanoseconds()
	rec.HTTPStatus = status
	rec.ResponseBodyBytes = bodyBytes

	switch {
	case callErr == nil && status >= 200 && status < 300:
		rec.Outcome = model.OutcomeOK
	case callErr == nil:
		rec.Outcome = model.OutcomeUpstreamErr
	case callErr.Kind == KindBadGateway:
		rec.Outcome = model.OutcomeBadGateway
		rec.ErrorKind = "malformed_body"
		rec.ErrorMessage = callErr.Cause
	default:
		rec.Outcome = model.OutcomeUnavailable
		if callErr.Detail.Kind == CauseCanceled || errors.Is(ctx.Err(), context.Canceled) {
			rec.Outcome = model.OutcomeCanceled
		}
		rec.ErrorKind = callErr.Detail.Kind
		rec.ErrorMessage = callErr.Detail.Message
	}

	fields := []zap.Field{
		zap.String("request_id", rec.RequestID),
		zap.String("domain", rec.Domain),
		zap.String("operation", rec.Operation),
		zap.Int("status", status),
		zap.String("outcome", rec.Outcome),
		zap.Duration("duration", elapsed),
	}
	if rec.CredentialFP != "" {
		fields = append(fields, zap.String("credential_fp", rec.CredentialFP))
	}
	if callErr != nil {
		g.logger.Warn("downstream call failed", append(fields, zap.String("cause", callErr.Cause))...)
	} else {
		g.logger.Debug("downstream call", fields...)
	}

	for _, o := range g.observers {
		o.ObserveCall(*rec)
	}
}

// observedBody counts streamed bytes and reports once on Close.
type observedBody struct {
	rc      io.ReadCloser
	n       int64
	readErr error
	once    sync.Once
	onClose func(n int64, readErr error)
}

func (b *observedBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	b.n += int64(n)
	if err != nil && !errors.Is(err, io.EOF) && b.readErr == nil {
		b.readErr = err
	}
	return n, err
}

func (b *observedBody) Close() error {
	err := b.rc.Close()
	b.once.Do(func() { b.onClose(b.n, b.readErr) })
	return err
}
