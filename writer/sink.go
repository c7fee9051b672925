package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"orderly/internal/fanout"
	"orderly/internal/metrics"
	"orderly/logger"
	"orderly/models"
)

// storeFunc persists one encoded merged book.
type storeFunc func(ctx context.Context, book models.MergedBook, data []byte) error

// bookSink is a fan-out subscriber that hands every merged book to store.
// Store failures are counted and logged; the sink keeps consuming.
type bookSink struct {
	component      string
	dist           *fanout.Distributor
	store          storeFunc
	reportInterval time.Duration

	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	stats   metrics.SinkStats
	sub     *fanout.Subscription
	log     *logger.Log
}

func newBookSink(component string, dist *fanout.Distributor, reportInterval time.Duration, store storeFunc) *bookSink {
	return &bookSink{
		component:      component,
		dist:           dist,
		store:          store,
		reportInterval: reportInterval,
		wg:             &sync.WaitGroup{},
		log:            logger.GetLogger(),
	}
}

func (s *bookSink) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("%s already running", s.component)
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.sub = s.dist.Subscribe(s.component)
	s.mu.Unlock()

	s.log.WithComponent(s.component).Info("starting sink")

	s.wg.Add(1)
	go s.run(ctx)

	if s.reportInterval > 0 {
		s.wg.Add(1)
		go s.report(ctx)
	}
	return nil
}

func (s *bookSink) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.log.WithComponent(s.component).Info("stopping sink")
	s.cancel()
	s.wg.Wait()
	metrics.ReportSink(s.log, s.component, s.Stats())
}

// Stats returns a copy of the sink counters.
func (s *bookSink) Stats() metrics.SinkStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := s.stats
	if s.sub != nil {
		stats.Dropped = s.sub.Dropped()
	}
	return stats
}

func (s *bookSink) run(ctx context.Context) {
	defer s.wg.Done()

	err := fanout.Forward(ctx, s.sub, nil, func(book models.MergedBook) error {
		s.write(ctx, book)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		s.log.WithComponent(s.component).WithError(err).Warn("sink subscription ended")
	}
}

func (s *bookSink) write(ctx context.Context, book models.MergedBook) {
	log := s.log.WithComponent(s.component).WithFields(logger.Fields{
		"symbol":   book.Symbol,
		"sequence": book.Sequence,
	})

	data, err := json.Marshal(book)
	if err != nil {
		s.recordError()
		log.WithError(err).Warn("failed to marshal merged book")
		return
	}

	start := time.Now()
	if err := s.store(ctx, book, data); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.recordError()
		log.WithError(err).Warn("failed to write merged book")
		return
	}

	s.mu.Lock()
	s.stats.BooksWritten++
	s.stats.BytesWritten += int64(len(data))
	s.mu.Unlock()
	logger.LogPerformanceEntry(log, s.component, "write_book", time.Since(start), nil)
}

func (s *bookSink) recordError() {
	s.mu.Lock()
	s.stats.ErrorsCount++
	s.mu.Unlock()
}

func (s *bookSink) report(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.reportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.ReportSink(s.log, s.component, s.Stats())
		}
	}
}
