package server

import (
	"context"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"orderly/internal/fanout"
	"orderly/logger"
)

// runtimeSample is one point of the /api/runtime history: process usage
// next to the book throughput it supports.
type runtimeSample struct {
	Timestamp      time.Time `json:"timestamp"`
	CPUPercent     float64   `json:"cpu_percent"`
	RSSBytes       uint64    `json:"rss_bytes"`
	Goroutines     int       `json:"goroutines"`
	Subscribers    int       `json:"subscribers"`
	BooksPublished int64     `json:"books_published"`
	BooksPerSecond float64   `json:"books_per_second"`
}

type processStats struct {
	cpuPercent float64
	rss        uint64
}

// processStatsFn samples this process. CPU is measured since the previous
// call, so the first sample reads zero.
var processStatsFn = func() func(ctx context.Context) (processStats, error) {
	var (
		once sync.Once
		proc *process.Process
		err  error
	)
	return func(ctx context.Context) (processStats, error) {
		once.Do(func() {
			proc, err = process.NewProcessWithContext(ctx, int32(os.Getpid()))
		})
		if err != nil {
			return processStats{}, err
		}
		cpu, cerr := proc.PercentWithContext(ctx, 0)
		if cerr != nil {
			return processStats{}, cerr
		}
		mem, merr := proc.MemoryInfoWithContext(ctx)
		if merr != nil {
			return processStats{}, merr
		}
		return processStats{cpuPercent: cpu, rss: mem.RSS}, nil
	}
}()

// runtimeSampler records a bounded history of runtimeSample values.
type runtimeSampler struct {
	mu       sync.RWMutex
	items    []runtimeSample
	limit    int
	interval time.Duration
	dist     *fanout.Distributor

	lastPublished int64
	lastAt        time.Time

	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup
	log     *logger.Log
}

func newRuntimeSampler(dist *fanout.Distributor, limit int, interval time.Duration, log *logger.Log) *runtimeSampler {
	if limit <= 0 {
		limit = historyLimit
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &runtimeSampler{
		limit:    limit,
		interval: interval,
		dist:     dist,
		log:      log,
	}
}

func (s *runtimeSampler) start(ctx context.Context) {
	if s.running.Swap(true) {
		return
	}
	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(childCtx)
	}()
}

func (s *runtimeSampler) stop() {
	if cancel := s.cancel; cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.running.Store(false)
}

func (s *runtimeSampler) snapshot() []runtimeSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]runtimeSample, len(s.items))
	copy(out, s.items)
	return out
}

func (s *runtimeSampler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample(ctx)
		}
	}
}

func (s *runtimeSampler) sample(ctx context.Context) {
	now := time.Now()
	sample := runtimeSample{
		Timestamp:      now,
		Goroutines:     runtime.NumGoroutine(),
		Subscribers:    s.dist.Len(),
		BooksPublished: s.dist.Published(),
	}
	if stats, err := processStatsFn(ctx); err != nil {
		s.log.WithComponent("runtime_sampler").WithError(err).Debug("failed to sample process usage")
	} else {
		sample.CPUPercent = stats.cpuPercent
		sample.RSSBytes = stats.rss
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lastAt.IsZero() {
		if elapsed := now.Sub(s.lastAt).Seconds(); elapsed > 0 {
			sample.BooksPerSecond = float64(sample.BooksPublished-s.lastPublished) / elapsed
		}
	}
	s.lastPublished, s.lastAt = sample.BooksPublished, now

	s.items = append(s.items, sample)
	if len(s.items) > s.limit {
		s.items = append([]runtimeSample(nil), s.items[len(s.items)-s.limit:]...)
	}
}
