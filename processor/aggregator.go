package processor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"orderly/logger"
	"orderly/models"
)

// Publisher receives every merged book. Publish must not block.
type Publisher interface {
	Publish(book models.MergedBook)
}

// Aggregator owns the latest tick of every venue and re-merges them into a
// depth limited book on every update. Only the goroutine started by Start
// (or a caller of Ingest that does not run Start) may touch its state.
type Aggregator struct {
	symbol    string
	depth     int
	ticks     <-chan *models.NormalizedTick
	publisher Publisher
	ctx       context.Context
	wg        *sync.WaitGroup
	mu        sync.RWMutex
	running   bool
	log       *logger.Log

	latest map[models.Exchange]*models.NormalizedTick
	// rank is the order in which venues first delivered a tick.
	rank     map[models.Exchange]int
	sequence uint64

	// Metrics
	ticksIngested int64
}

func NewAggregator(symbol string, depth int, ticks <-chan *models.NormalizedTick, publisher Publisher) *Aggregator {
	if depth <= 0 {
		depth = 10
	}
	return &Aggregator{
		symbol:    symbol,
		depth:     depth,
		ticks:     ticks,
		publisher: publisher,
		wg:        &sync.WaitGroup{},
		log:       logger.GetLogger(),
		latest:    make(map[models.Exchange]*models.NormalizedTick),
		rank:      make(map[models.Exchange]int),
	}
}

// Ingest replaces the venue's previous contribution with tick and returns
// the recomputed book. An empty side in tick clears that venue's side.
func (a *Aggregator) Ingest(tick *models.NormalizedTick) models.MergedBook {
	if _, seen := a.rank[tick.Exchange]; !seen {
		a.rank[tick.Exchange] = len(a.rank)
	}
	a.latest[tick.Exchange] = tick
	a.sequence++
	a.ticksIngested++
	return a.merge()
}

func (a *Aggregator) merge() models.MergedBook {
	venues := make([]models.Exchange, 0, len(a.latest))
	for ex := range a.latest {
		venues = append(venues, ex)
	}
	sort.Slice(venues, func(i, j int) bool {
		ri, rj := a.rank[venues[i]], a.rank[venues[j]]
		if ri != rj {
			return ri < rj
		}
		return venues[i] < venues[j]
	})

	var bids, asks []models.Level
	for _, ex := range venues {
		bids = append(bids, a.latest[ex].Bids...)
		asks = append(asks, a.latest[ex].Asks...)
	}

	return models.MergedBook{
		Symbol:    a.symbol,
		Sequence:  a.sequence,
		Bids:      best(bids, models.Bid, a.depth),
		Asks:      best(asks, models.Ask, a.depth),
		UpdatedAt: time.Now(),
	}
}

// best orders levels best first and keeps n. The sort is stable so equal
// prices stay in venue rank order.
func best(levels []models.Level, side models.Side, n int) []models.Level {
	sort.SliceStable(levels, func(i, j int) bool {
		if side == models.Bid {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})
	if len(levels) > n {
		levels = levels[:n]
	}
	out := make([]models.Level, len(levels))
	copy(out, levels)
	return out
}

// Venues returns the exchanges that have contributed so far.
func (a *Aggregator) Venues() []models.Exchange {
	out := make([]models.Exchange, 0, len(a.rank))
	for ex := range a.rank {
		out = append(out, ex)
	}
	sort.Slice(out, func(i, j int) bool { return a.rank[out[i]] < a.rank[out[j]] })
	return out
}

func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("aggregator already running")
	}
	a.running = true
	a.ctx = ctx
	a.mu.Unlock()

	a.log.WithComponent("aggregator").WithFields(logger.Fields{
		"symbol": a.symbol,
		"depth":  a.depth,
	}).Info("starting aggregator")

	a.wg.Add(1)
	go a.run()
	return nil
}

func (a *Aggregator) Stop() {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()

	a.log.WithComponent("aggregator").Info("stopping aggregator")
	a.wg.Wait()
	a.log.WithComponent("aggregator").WithFields(logger.Fields{
		"ticks_ingested": a.ticksIngested,
		"venues":         a.Venues(),
	}).Info("aggregator stopped")
}

func (a *Aggregator) run() {
	defer a.wg.Done()

	log := a.log.WithComponent("aggregator")
	for {
		select {
		case <-a.ctx.Done():
			log.Info("aggregator stopped due to context cancellation")
			return
		case tick, ok := <-a.ticks:
			if !ok {
				log.Info("tick channel closed, aggregator stopping")
				return
			}
			if tick == nil {
				continue
			}

			start := time.Now()
			book := a.Ingest(tick)
			if a.publisher != nil {
				a.publisher.Publish(book)
				logger.LogDataFlowEntry(log, "aggregator", "distributor", len(book.Bids)+len(book.Asks), "merged_book")
			}
			logger.IncrementBookPublished()

			logger.LogPerformanceEntry(log, "aggregator", "ingest", time.Since(start), logger.Fields{
				"exchange": tick.Exchange.String(),
				"sequence": book.Sequence,
				"bids":     len(book.Bids),
				"asks":     len(book.Asks),
			})
		}
	}
}
