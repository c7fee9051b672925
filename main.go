package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"orderly/config"
	"orderly/internal/channel"
	"orderly/internal/fanout"
	"orderly/internal/metrics"
	"orderly/internal/orchestrator"
	"orderly/logger"
	"orderly/models"
	"orderly/processor"
	"orderly/reader"
	_ "orderly/reader/binance"
	_ "orderly/reader/bitstamp"
	_ "orderly/reader/coinbase"
	_ "orderly/reader/gateio"
	_ "orderly/reader/kraken"
	"orderly/server"
	"orderly/writer"
)

const shutdownTimeout = 30 * time.Second

// bookPublisher records every merged book in the metrics before handing it
// to the distributor.
type bookPublisher struct {
	dist *fanout.Distributor
}

func (p bookPublisher) Publish(book models.MergedBook) {
	metrics.ObserveBook(book)
	p.dist.Publish(book)
}

type stopper interface {
	Stop()
}

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultConfigPath, "Path to configuration file")
	symbol := flag.String("symbol", "", "Trading pair to aggregate, e.g. BTC/USDT (overrides the config file)")
	port := flag.Int("port", 0, "gRPC listen port (overrides the config file)")
	disabled := make(map[models.Exchange]*bool)
	for _, ex := range models.Exchanges() {
		disabled[ex] = flag.Bool("no-"+ex.String(), false, fmt.Sprintf("Disable the %s connector", ex))
	}
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	overrides := config.Overrides{Symbol: *symbol, Port: *port}
	for _, ex := range models.Exchanges() {
		if *disabled[ex] {
			overrides.Disabled = append(overrides.Disabled, ex.String())
		}
	}
	if err := cfg.Apply(overrides); err != nil {
		log.WithError(err).Error("Invalid command line overrides")
		os.Exit(1)
	}

	env := config.AppEnvironment()
	if config.IsProductionLike(env) && cfg.Logging.Format == "text" {
		cfg.Logging.Format = "json"
	}
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.Orderly.Name,
		"version":     cfg.Orderly.Version,
		"environment": env,
		"symbol":      cfg.Market.Symbol,
		"depth":       cfg.Market.Depth,
		"grpc_port":   cfg.Server.GRPCPort,
	}).Info("starting orderly")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.Configure(cfg.Metrics.Enabled)
	metrics.Init()
	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(ctx, logger.CloudWatchOptions{
			Region:          cfg.Metrics.CloudWatch.Region,
			Namespace:       cfg.Metrics.CloudWatch.Namespace,
			Dashboard:       cfg.Metrics.CloudWatch.Dashboard,
			AccessKeyID:     cfg.Metrics.CloudWatch.AccessKeyID,
			SecretAccessKey: cfg.Metrics.CloudWatch.SecretAccessKey,
		})
	}
	if cfg.Metrics.Enabled || strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, cfg.Metrics.ReportInterval)
	}

	channels := channel.NewChannels(cfg.Channels.TickBuffer)
	channels.StartMetricsReporting(ctx, cfg.Metrics.ReportInterval)
	metrics.StartChannelSizeMetrics(ctx, channels, cfg.Metrics.ReportInterval)

	dist := fanout.New(cfg.Distributor.QueueSize)
	if err := metrics.RegisterGaugeFunc("orderly_subscribers", "Active merged book subscribers", func() float64 {
		return float64(dist.Len())
	}); err != nil {
		log.WithError(err).Warn("failed to register subscriber gauge")
	}

	aggregator := processor.NewAggregator(cfg.Market.Symbol, cfg.Market.Depth, channels.Ticks, bookPublisher{dist: dist})

	connectors := make([]reader.Connector, 0, len(cfg.EnabledExchanges()))
	for _, venue := range cfg.EnabledExchanges() {
		c, err := reader.New(venue.Exchange, reader.Options{Depth: cfg.Market.ConnectorDepth, URL: venue.URL})
		if err != nil {
			log.WithError(err).WithField("exchange", venue.Exchange.String()).Warn("skipping exchange without connector")
			continue
		}
		connectors = append(connectors, c)
	}

	orch := orchestrator.New(orchestrator.Options{
		Symbol: cfg.Market.Symbol,
		Session: reader.SessionOptions{
			HandshakeTimeout: cfg.Reader.HandshakeTimeout,
			IdleTimeout:      cfg.Reader.IdleTimeout,
			PingInterval:     cfg.Reader.PingInterval,
		},
		Retry: orchestrator.RetryOptions{
			BaseDelay:  cfg.Reader.Retry.BaseDelay,
			MaxDelay:   cfg.Reader.Retry.MaxDelay,
			Multiplier: cfg.Reader.Retry.Multiplier,
			Jitter:     cfg.Reader.Retry.Jitter,
		},
	}, connectors, channels)

	// The gRPC listener is the only component whose failure stops startup.
	grpcServer, err := server.ListenGRPC(dist, cfg.Server.GRPCPort, cfg.Server.MaxUpdatesPerSecond)
	if err != nil {
		log.WithError(err).Error("failed to start gRPC server")
		os.Exit(1)
	}

	var sinks []stopper
	if cfg.Sinks.Kafka.Enabled {
		kw, err := writer.NewKafkaWriter(cfg.Sinks.Kafka, dist, cfg.Metrics.ReportInterval)
		if err != nil {
			log.WithError(err).Warn("kafka sink disabled")
		} else if err := kw.Start(ctx); err != nil {
			log.WithError(err).Warn("kafka writer failed to start")
		} else {
			sinks = append(sinks, kw)
		}
	}
	if cfg.Sinks.Redis.Enabled {
		rc, err := writer.NewRedisCache(ctx, cfg.Sinks.Redis, dist, cfg.Metrics.ReportInterval)
		if err != nil {
			log.WithError(err).Warn("redis sink disabled")
		} else if err := rc.Start(ctx); err != nil {
			log.WithError(err).Warn("redis cache failed to start")
		} else {
			sinks = append(sinks, rc)
		}
	}

	var wg sync.WaitGroup

	httpServer := server.NewHTTPServer(cfg.Server.HTTPAddress, dist, orch, cfg.Server.MaxUpdatesPerSecond, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpServer.Run(ctx); err != nil {
			log.WithError(err).WithField("address", httpServer.Address()).Warn("HTTP server stopped")
		}
	}()

	if err := aggregator.Start(ctx); err != nil {
		log.WithError(err).Error("aggregator failed to start")
		os.Exit(1)
	}
	if err := orch.Start(ctx); err != nil {
		log.WithError(err).Error("orchestrator failed to start")
		os.Exit(1)
	}

	log.WithField("exchanges", len(connectors)).Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	done := make(chan struct{})
	go func() {
		defer close(done)

		log.Info("stopping connectors")
		orch.Stop()

		// Producers are gone, so the aggregator drains and exits.
		channels.Close()
		aggregator.Stop()

		log.Info("closing subscribers")
		dist.Close()
		grpcServer.Stop(5 * time.Second)
		for _, s := range sinks {
			s.Stop()
		}

		cancel()
		wg.Wait()
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(shutdownTimeout):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("orderly stopped")
}
