package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"orderly/internal/fanout"
	"orderly/logger"
	"orderly/models"
)

func TestRuntimeSamplerTracksThroughput(t *testing.T) {
	original := processStatsFn
	t.Cleanup(func() { processStatsFn = original })
	processStatsFn = func(context.Context) (processStats, error) {
		return processStats{cpuPercent: 12.5, rss: 64 << 20}, nil
	}

	dist := fanout.New(1)
	sub := dist.Subscribe("sampler-test")
	defer sub.Close()

	sampler := newRuntimeSampler(dist, 2, time.Hour, logger.Logger())
	sampler.sample(context.Background())
	for i := 0; i < 5; i++ {
		dist.Publish(models.MergedBook{Sequence: uint64(i + 1)})
	}
	time.Sleep(10 * time.Millisecond)
	sampler.sample(context.Background())
	sampler.sample(context.Background())

	samples := sampler.snapshot()
	if len(samples) != 2 {
		t.Fatalf("history length = %d, want limit 2", len(samples))
	}
	first := samples[0]
	if first.BooksPublished != 5 || first.BooksPerSecond <= 0 {
		t.Fatalf("unexpected throughput: %+v", first)
	}
	if first.CPUPercent != 12.5 || first.RSSBytes != 64<<20 || first.Subscribers != 1 || first.Goroutines == 0 {
		t.Fatalf("unexpected sample: %+v", first)
	}
	if samples[1].BooksPerSecond != 0 {
		t.Fatalf("expected no throughput without new books, got %v", samples[1].BooksPerSecond)
	}
}

func TestRuntimeSamplerKeepsSamplingOnProcessError(t *testing.T) {
	original := processStatsFn
	t.Cleanup(func() { processStatsFn = original })
	processStatsFn = func(context.Context) (processStats, error) {
		return processStats{}, errors.New("no procfs")
	}

	sampler := newRuntimeSampler(fanout.New(1), 3, 5*time.Millisecond, logger.Logger())
	sampler.start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for len(sampler.snapshot()) < 3 {
		if time.Now().After(deadline) {
			t.Fatal("runtime sampler did not collect samples in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
	sampler.stop()

	if s := sampler.snapshot()[0]; s.CPUPercent != 0 || s.RSSBytes != 0 {
		t.Fatalf("expected empty process stats, got %+v", s)
	}
}

func fire(t *testing.T, l *venueLog, level logrus.Level, msg string, fields logrus.Fields) {
	t.Helper()
	entry := logrus.NewEntry(logrus.New())
	entry.Time = time.Now()
	entry.Level = level
	entry.Message = msg
	entry.Data = fields
	if err := l.Fire(entry); err != nil {
		t.Fatalf("Fire: %v", err)
	}
}

func TestVenueLogKeepsHistoryPerExchange(t *testing.T) {
	l := newVenueLog(2)

	fire(t, l, logrus.WarnLevel, "discarding malformed frame", logrus.Fields{
		"exchange":       "coinbase",
		"payload":        `{"type":"snapshot","bids":[["x","1"]]}`,
		logrus.ErrorKey: errors.New(`invalid price "x"`),
	})
	// A noisy venue must not evict coinbase's history.
	for i := 0; i < 5; i++ {
		fire(t, l, logrus.InfoLevel, "connection lost", logrus.Fields{"exchange": "binance", "attempt": i})
	}
	fire(t, l, logrus.InfoLevel, "starting orderly", logrus.Fields{"component": "main"})

	coinbase := models.Coinbase
	events := l.recent(&coinbase, logrus.InfoLevel, 0)
	if len(events) != 1 || events[0].Error != `invalid price "x"` || events[0].Payload == "" {
		t.Fatalf("unexpected coinbase history: %+v", events)
	}

	binance := models.Binance
	if events := l.recent(&binance, logrus.InfoLevel, 0); len(events) != 2 || events[1].Fields["attempt"] != 4 {
		t.Fatalf("expected the last two binance lines, got %+v", events)
	}

	all := l.recent(nil, logrus.InfoLevel, 0)
	if len(all) != 4 || all[len(all)-1].Component != "main" {
		t.Fatalf("unexpected merged history: %+v", all)
	}
	if warn := l.recent(nil, logrus.WarnLevel, 0); len(warn) != 1 || warn[0].Exchange != "coinbase" {
		t.Fatalf("unexpected warn filter: %+v", warn)
	}
	if last := l.recent(nil, logrus.InfoLevel, 1); len(last) != 1 || last[0].Message != "starting orderly" {
		t.Fatalf("unexpected limited history: %+v", last)
	}

	summaries := l.summaries()
	if len(summaries) != 2 || summaries[0].Exchange != models.Binance || summaries[1].Exchange != models.Coinbase {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}
	if cb := summaries[1]; cb.ProtocolErrors != 1 || cb.Warnings != 1 || cb.LastError == "" || cb.LastPayload == "" {
		t.Fatalf("unexpected coinbase summary: %+v", cb)
	}

	l.close()
	fire(t, l, logrus.ErrorLevel, "ignored", logrus.Fields{"exchange": "kraken"})
	if len(l.summaries()) != 2 {
		t.Fatalf("venue log accepted entries after close")
	}
}
