package calllog

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resinat/Dashgate/internal/model"
	"go.uber.org/zap"
)

// Service is an async call log writer. ObserveCall never blocks: records
// are dropped when the queue is full. A background goroutine flushes
// batches to the Repo and trims it to the retention cap.
type Service struct {
	repo      *Repo
	queue     chan model.CallRecord
	batchSize int
	interval  time.Duration
	retain    int
	logger    *zap.Logger
	dropped   atomic.Uint64

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// ServiceConfig configures the call log service.
type ServiceConfig struct {
	Repo          *Repo
	QueueSize     int
	FlushBatch    int
	FlushInterval time.Duration
	RetainRows    int
	Logger        *zap.Logger
}

// NewService creates a new call log service.
func NewService(cfg ServiceConfig) *Service {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 4096
	}
	batchSize := cfg.FlushBatch
	if batchSize <= 0 {
		batchSize = 256
	}
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      cfg.Repo,
		queue:     make(chan model.CallRecord, queueSize),
		batchSize: batchSize,
		interval:  interval,
		retain:    cfg.RetainRows,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the background flush goroutine.
func (s *Service) Start() {
	s.wg.Add(1)
	go s.flushLoop()
}

// Stop signals the flush loop to stop, drains remaining records, and returns.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// ObserveCall enqueues a record.
func (s *Service) ObserveCall(rec model.CallRecord) {
	select {
	case s.queue <- rec:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many records were lost to a full queue.
func (s *Service) Dropped() uint64 {
	return s.dropped.Load()
}

// Repo returns the underlying repository for query access.
func (s *Service) Repo() *Repo {
	return s.repo
}

func (s *Service) flushLoop() {
	defer s.wg.Done()

	batch := make([]model.CallRecord, 0, s.batchSize)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case rec := <-s.queue:
			batch = append(batch, rec)
			if len(batch) >= s.batchSize {
				s.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}

		case <-s.stopCh:
			s.drainAndFlush(batch)
			return
		}
	}
}

func (s *Service) drainAndFlush(batch []model.CallRecord) {
	for {
		select {
		case rec := <-s.queue:
			batch = append(batch, rec)
			if len(batch) >= s.batchSize {
				s.flush(batch)
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				s.flush(batch)
			}
			return
		}
	}
}

func (s *Service) flush(records []model.CallRecord) {
	n, err := s.repo.InsertBatch(records)
	if err != nil {
		s.logger.Error("call log flush failed", zap.Int("records", len(records)), zap.Error(err))
		return
	}
	s.logger.Debug("call log flushed", zap.Int("records", n))

	if s.retain > 0 {
		pruned, err := s.repo.Prune(s.retain)
		if err != nil {
			s.logger.Warn("call log prune failed", zap.Error(err))
		} else if pruned > 0 {
			s.logger.Debug("call log pruned", zap.Int64("rows", pruned))
		}
	}
}
