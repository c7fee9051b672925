// Registers:
//
//	#orderly_ticks_total{exchange}
//	#orderly_reconnects_total{exchange}
//	#orderly_connector_state{exchange}
//	#orderly_book_levels{side}
//	#orderly_book_spread
//	#orderly_pipeline_*_total mirrors of the logger counters
//	#go_* and process_* system metrics
//
// Handler exposes them for the HTTP server's /metrics route.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orderly/logger"
	"orderly/models"
)

var (
	once     sync.Once
	registry *prometheus.Registry

	ticksTotal      *prometheus.CounterVec
	reconnectsTotal *prometheus.CounterVec
	connectorState  *prometheus.GaugeVec
	bookLevels      *prometheus.GaugeVec
	bookSpread      prometheus.Gauge
	bookBest        *prometheus.GaugeVec
	tickBuffer      prometheus.Gauge
)

// Names of the logger counters mirrored into Prometheus.
var pipelineCounters = []string{
	"ticks_read",
	"protocol_errors",
	"reconnects",
	"books_published",
	"snapshots_dropped",
}

func Init() {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		ticksTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderly_ticks_total",
				Help: "Number of normalized ticks forwarded to the aggregator",
			},
			[]string{"exchange"},
		)
		reconnectsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderly_reconnects_total",
				Help: "Number of connector reconnect attempts",
			},
			[]string{"exchange"},
		)
		connectorState = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orderly_connector_state",
				Help: "Connector state: 0 disconnected, 1 connecting, 2 subscribed, 3 streaming",
			},
			[]string{"exchange"},
		)
		bookLevels = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orderly_book_levels",
				Help: "Number of levels in the latest merged book",
			},
			[]string{"side"},
		)
		bookSpread = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderly_book_spread",
			Help: "Best ask minus best bid of the latest merged book",
		})
		bookBest = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orderly_book_best_price",
				Help: "Best price per side of the latest merged book",
			},
			[]string{"side"},
		)
		tickBuffer = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderly_tick_buffer_length",
			Help: "Ticks waiting in the aggregator channel",
		})

		registry.MustRegister(ticksTotal, reconnectsTotal, connectorState, bookLevels, bookSpread, bookBest, tickBuffer)
		for _, name := range pipelineCounters {
			name := name
			registry.MustRegister(prometheus.NewCounterFunc(
				prometheus.CounterOpts{
					Name: "orderly_pipeline_" + name + "_total",
					Help: "Pipeline counter " + name,
				},
				func() float64 { return float64(logger.Counters()[name]) },
			))
		}
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// RegisterGaugeFunc exposes a value computed on every scrape.
func RegisterGaugeFunc(name, help string, fn func() float64) error {
	Init()
	return registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn))
}

// IncrementTick counts one tick from exchange.
func IncrementTick(exchange models.Exchange) {
	if ticksTotal != nil {
		ticksTotal.WithLabelValues(exchange.String()).Inc()
	}
}

// IncrementReconnect counts one reconnect attempt for exchange.
func IncrementReconnect(exchange models.Exchange) {
	if reconnectsTotal != nil {
		reconnectsTotal.WithLabelValues(exchange.String()).Inc()
	}
}

// SetConnectorState records the numeric connector state for exchange.
func SetConnectorState(exchange models.Exchange, state int) {
	if connectorState != nil {
		connectorState.WithLabelValues(exchange.String()).Set(float64(state))
	}
}

// ObserveBook records the shape of a merged book.
func ObserveBook(book models.MergedBook) {
	if bookLevels == nil {
		return
	}
	bookLevels.WithLabelValues(models.Bid.String()).Set(float64(len(book.Bids)))
	bookLevels.WithLabelValues(models.Ask.String()).Set(float64(len(book.Asks)))
	spread, _ := book.Spread().Float64()
	bookSpread.Set(spread)
	if bid, ok := book.BestBid(); ok {
		bookBest.WithLabelValues(models.Bid.String()).Set(bid.Price.InexactFloat64())
	}
	if ask, ok := book.BestAsk(); ok {
		bookBest.WithLabelValues(models.Ask.String()).Set(ask.Price.InexactFloat64())
	}
}
