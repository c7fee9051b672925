package metrics

import (
	"context"
	"time"

	"orderly/internal/channel"
	"orderly/logger"
)

// StartChannelSizeMetrics samples the tick channel occupancy every interval
// until ctx is done. When interval <= 0 a one-second cadence is used.
func StartChannelSizeMetrics(ctx context.Context, channels *channel.Channels, interval time.Duration) {
	if channels == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}
	Init()

	log := logger.GetLogger()
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				length := channels.Len()
				tickBuffer.Set(float64(length))
				EmitMetric(log, "channel_buffers", "tick_buffer_length", length, "gauge", logger.Fields{
					"buffer":   "ticks",
					"capacity": channels.Cap(),
				})
			}
		}
	}()
}
