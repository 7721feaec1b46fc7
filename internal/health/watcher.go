package health

import (
	"context"
	"fmt"
	"time"

	"github.com/Resinat/Dashgate/internal/downstream"
	"github.com/maypok86/otter"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Watcher probes all domains on a cron schedule and serves the latest
// results from a TTL cache. A cache miss triggers a fresh probe.
type Watcher struct {
	agg    *Aggregator
	cache  otter.Cache[downstream.Domain, ProbeResult]
	states *xsync.Map[downstream.Domain, bool]
	logger *zap.Logger

	cron        *cron.Cron
	cronEntryID cron.EntryID
	lifeCtx     context.Context
	lifeCancel  context.CancelFunc

	onResult func(ProbeResult)
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger.
func WithWatcherLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithResultHook is called for every probe result the watcher records.
func WithResultHook(fn func(ProbeResult)) WatcherOption {
	return func(w *Watcher) { w.onResult = fn }
}

// NewWatcher creates a Watcher. schedule uses standard cron syntax or
// descriptors such as "@every 30s". ttl bounds how long a result is served.
func NewWatcher(agg *Aggregator, schedule string, ttl time.Duration, opts ...WatcherOption) (*Watcher, error) {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	cache, err := otter.MustBuilder[downstream.Domain, ProbeResult](len(downstream.AllDomains()) * 4).
		Cost(func(_ downstream.Domain, _ ProbeResult) uint32 { return 1 }).
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, fmt.Errorf("health: build cache: %w", err)
	}

	lifeCtx, lifeCancel := context.WithCancel(context.Background())
	w := &Watcher{
		agg:        agg,
		cache:      cache,
		states:     xsync.NewMap[downstream.Domain, bool](),
		logger:     zap.NewNop(),
		cron:       cron.New(),
		lifeCtx:    lifeCtx,
		lifeCancel: lifeCancel,
	}
	for _, opt := range opts {
		opt(w)
	}

	entryID, err := w.cron.AddFunc(schedule, func() { w.Refresh(w.lifeCtx) })
	if err != nil {
		lifeCancel()
		cache.Close()
		return nil, fmt.Errorf("health: invalid schedule %q: %w", schedule, err)
	}
	w.cronEntryID = entryID
	return w, nil
}

// Start runs one refresh in the background and starts the scheduler.
func (w *Watcher) Start() {
	go w.Refresh(w.lifeCtx)
	w.cron.Start()
}

// Stop cancels in-flight probes and waits for a running job to finish.
func (w *Watcher) Stop() {
	w.lifeCancel()
	<-w.cron.Stop().Done()
	w.cache.Close()
}

// NextRun reports when the next scheduled refresh fires.
func (w *Watcher) NextRun() time.Time {
	return w.cron.Entry(w.cronEntryID).Next
}

// Refresh probes every domain and records the results.
func (w *Watcher) Refresh(ctx context.Context) []ProbeResult {
	results := w.agg.ProbeAll(ctx)
	for _, res := range results {
		w.record(res)
	}
	return results
}

// Snapshot returns a result per domain, probing those without a live
// cache entry.
func (w *Watcher) Snapshot(ctx context.Context) []ProbeResult {
	domains := downstream.AllDomains()
	out := make([]ProbeResult, len(domains))
	var missing []downstream.Domain
	var missingIdx []int
	for i, d := range domains {
		if res, ok := w.cache.Get(d); ok {
			out[i] = res
			continue
		}
		missing = append(missing, d)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out
	}
	for j, res := range w.agg.probeMany(ctx, missing) {
		w.record(res)
		out[missingIdx[j]] = res
	}
	return out
}

// Probe runs a live probe for d and records it.
func (w *Watcher) Probe(ctx context.Context, d downstream.Domain) ProbeResult {
	res := w.agg.Probe(ctx, d)
	w.record(res)
	return res
}

func (w *Watcher) record(res ProbeResult) {
	w.cache.Set(res.Domain, res)

	var changed, known bool
	w.states.Compute(res.Domain, func(old bool, loaded bool) (bool, xsync.ComputeOp) {
		known = loaded
		changed = !loaded || old != res.Connected
		return res.Connected, xsync.UpdateOp
	})
	if changed {
		fields := []zap.Field{
			zap.String("domain", string(res.Domain)),
			zap.Bool("connected", res.Connected),
			zap.String("message", res.Message),
		}
		switch {
		case !known:
			w.logger.Info("downstream health observed", fields...)
		case res.Connected:
			w.logger.Info("downstream recovered", fields...)
		default:
			w.logger.Warn("downstream lost", fields...)
		}
	}

	if w.onResult != nil {
		w.onResult(res)
	}
}
