// Package health probes the liveness of each downstream domain.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Resinat/Dashgate/internal/downstream"
)

// Pinger issues a liveness request. *downstream.Gateway implements it.
type Pinger interface {
	Ping(ctx context.Context, d downstream.Domain, timeout time.Duration) (int, error)
}

// ProbeResult is the connectivity verdict for one domain.
type ProbeResult struct {
	Domain    downstream.Domain `json:"domain"`
	Connected bool              `json:"connected"`
	Message   string            `json:"message"`
	Status    int               `json:"status,omitempty"`
	CheckedAt time.Time         `json:"checked_at"`
}

// Aggregator probes domains with a fixed timeout.
type Aggregator struct {
	pinger  Pinger
	timeout time.Duration
	now     func() time.Time
}

// NewAggregator creates an Aggregator. A non-positive timeout means 2s.
func NewAggregator(p Pinger, timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Aggregator{pinger: p, timeout: timeout, now: time.Now}
}

// Probe checks d. It returns within the aggregator timeout even if the
// pinger ignores cancellation.
func (a *Aggregator) Probe(ctx context.Context, d downstream.Domain) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	type pingResult struct {
		status int
		err    error
	}
	done := make(chan pingResult, 1)
	go func() {
		status, err := a.pinger.Ping(ctx, d, a.timeout)
		done <- pingResult{status: status, err: err}
	}()

	var pr pingResult
	select {
	case pr = <-done:
	case <-ctx.Done():
		pr = pingResult{err: ctx.Err()}
	}

	res := ProbeResult{Domain: d, Status: pr.status, CheckedAt: a.now()}
	switch {
	case pr.err != nil:
		res.Message = fmt.Sprintf("%s not responding: %s", capitalize(d.DisplayName()), causeOf(pr.err))
	case pr.status < 200 || pr.status > 299:
		res.Message = fmt.Sprintf("%s responded with status %d.", capitalize(d.DisplayName()), pr.status)
	default:
		res.Connected = true
		res.Message = fmt.Sprintf("Connected to %s.", d.DisplayName())
	}
	return res
}

// ProbeAll probes every domain concurrently, in AllDomains order.
func (a *Aggregator) ProbeAll(ctx context.Context) []ProbeResult {
	return a.probeMany(ctx, downstream.AllDomains())
}

func (a *Aggregator) probeMany(ctx context.Context, domains []downstream.Domain) []ProbeResult {
	out := make([]ProbeResult, len(domains))
	var wg sync.WaitGroup
	for i, d := range domains {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = a.Probe(ctx, d)
		}()
	}
	wg.Wait()
	return out
}

func causeOf(err error) string {
	if de, ok := downstream.AsError(err); ok {
		return de.Cause
	}
	return downstream.Summarize(err).String()
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
