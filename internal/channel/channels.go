package channel

import (
	"context"
	"sync"
	"time"

	"orderly/logger"
	"orderly/models"
)

type ChannelStats struct {
	TicksSent    int64
	TicksBlocked int64
	// SentByExchange counts accepted ticks per venue.
	SentByExchange map[models.Exchange]int64
}

// Channels carries ticks from every connector to the aggregator. There is
// one producer per venue and a single consumer.
type Channels struct {
	Ticks chan *models.NormalizedTick

	stats      ChannelStats
	statsMutex sync.RWMutex
	closeOnce  sync.Once
	log        *logger.Log
}

func NewChannels(tickBufferSize int) *Channels {
	if tickBufferSize < 1 {
		tickBufferSize = 1
	}
	log := logger.GetLogger()
	c := &Channels{
		Ticks: make(chan *models.NormalizedTick, tickBufferSize),
		stats: ChannelStats{SentByExchange: make(map[models.Exchange]int64)},
		log:   log,
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"tick_buffer_size": tickBufferSize,
	}).Info("tick channel initialized")

	return c
}

// SendTick enqueues tick, waiting for room when the buffer is full. It
// returns false only when ctx is done first.
func (c *Channels) SendTick(ctx context.Context, tick *models.NormalizedTick) bool {
	select {
	case c.Ticks <- tick:
		c.recordSent(tick.Exchange)
		return true
	default:
	}

	c.statsMutex.Lock()
	c.stats.TicksBlocked++
	c.statsMutex.Unlock()

	select {
	case c.Ticks <- tick:
		c.recordSent(tick.Exchange)
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Channels) recordSent(ex models.Exchange) {
	c.statsMutex.Lock()
	c.stats.TicksSent++
	c.stats.SentByExchange[ex]++
	c.statsMutex.Unlock()
}

func (c *Channels) Len() int {
	return len(c.Ticks)
}

func (c *Channels) Cap() int {
	return cap(c.Ticks)
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	stats := c.stats
	stats.SentByExchange = make(map[models.Exchange]int64, len(c.stats.SentByExchange))
	for k, v := range c.stats.SentByExchange {
		stats.SentByExchange[k] = v
	}
	return stats
}

// StartMetricsReporting logs channel statistics every interval until ctx is
// done.
func (c *Channels) StartMetricsReporting(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.logChannelStats()
			}
		}
	}()
}

func (c *Channels) logChannelStats() {
	stats := c.GetStats()
	perExchange := make(logger.Fields, len(stats.SentByExchange))
	for ex, n := range stats.SentByExchange {
		perExchange[ex.String()] = n
	}
	c.log.WithComponent("channels").WithFields(logger.Fields{
		"ticks_sent":       stats.TicksSent,
		"ticks_blocked":    stats.TicksBlocked,
		"sent_by_exchange": perExchange,
		"tick_channel_len": len(c.Ticks),
		"tick_channel_cap": cap(c.Ticks),
	}).Info("channel statistics")
}

// Close closes the tick channel. Every producer must have stopped.
func (c *Channels) Close() {
	c.closeOnce.Do(func() {
		close(c.Ticks)
		c.log.WithComponent("channels").Info("tick channel closed")
	})
}
