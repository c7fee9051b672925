package fanout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"orderly/models"
	"orderly/processor"
)

func book(seq uint64) models.MergedBook {
	return models.MergedBook{Symbol: "BTC/USDT", Sequence: seq}
}

func TestPublishLatestWins(t *testing.T) {
	d := New(3)
	slow := d.Subscribe("slow")

	for i := uint64(1); i <= 10; i++ {
		d.Publish(book(i))
	}

	if got := len(slow.C()); got != 3 {
		t.Fatalf("expected a full queue of 3, got %d", got)
	}
	for want := uint64(8); want <= 10; want++ {
		if b := <-slow.C(); b.Sequence != want {
			t.Fatalf("expected sequence %d, got %d", want, b.Sequence)
		}
	}
	if slow.Dropped() != 7 {
		t.Fatalf("expected 7 dropped, got %d", slow.Dropped())
	}
	if latest, ok := d.Latest(); !ok || latest.Sequence != 10 {
		t.Fatalf("unexpected latest: %+v %v", latest, ok)
	}
	if d.Published() != 10 {
		t.Fatalf("expected 10 published, got %d", d.Published())
	}
}

func TestSubscribeReceivesLatest(t *testing.T) {
	d := New(2)
	d.Publish(book(5))
	sub := d.Subscribe("late")
	select {
	case b := <-sub.C():
		if b.Sequence != 5 {
			t.Fatalf("expected latest book, got %d", b.Sequence)
		}
	default:
		t.Fatal("expected latest book to be queued on subscribe")
	}
}

func TestSlowSubscriberDoesNotStallIngestion(t *testing.T) {
	d := New(2)
	stuck := d.Subscribe("stuck")
	fast := d.Subscribe("fast")

	ticks := make(chan *models.NormalizedTick)
	agg := processor.NewAggregator("BTC/USDT", 10, ticks, d)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := agg.Start(ctx); err != nil {
		t.Fatal(err)
	}

	received := make(chan uint64, 1000)
	go func() {
		for b := range fast.C() {
			received <- b.Sequence
		}
	}()

	const n = 500
	start := time.Now()
	for i := 0; i < n; i++ {
		price := decimal.NewFromInt(int64(100 + i%7))
		ticks <- &models.NormalizedTick{
			Exchange: models.Exchanges()[i%5],
			Bids:     []models.Level{models.NewLevel(models.Bid, price, decimal.NewFromInt(1), models.Exchanges()[i%5])},
		}
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("ingestion took %s with a stuck subscriber", elapsed)
	}

	deadline := time.After(2 * time.Second)
wait:
	for {
		select {
		case seq := <-received:
			if seq == n {
				break wait
			}
		case <-deadline:
			t.Fatal("fast subscriber never saw the final book")
		}
	}
	cancel()
	agg.Stop()

	if len(stuck.C()) != 2 {
		t.Fatalf("stuck subscriber should hold a full queue, got %d", len(stuck.C()))
	}
	if stuck.Dropped() < n-2 {
		t.Fatalf("expected at least %d drops, got %d", n-2, stuck.Dropped())
	}
	var last models.MergedBook
	for len(stuck.C()) > 0 {
		last = <-stuck.C()
	}
	if last.Sequence != n {
		t.Fatalf("stuck subscriber should keep the newest book, got %d", last.Sequence)
	}
}

func TestForwardRemovesFailedSubscriber(t *testing.T) {
	d := New(4)
	bad := d.Subscribe("bad")
	good := d.Subscribe("good")

	errc := make(chan error, 1)
	go func() {
		errc <- Forward(context.Background(), bad, nil, func(models.MergedBook) error {
			return errors.New("broken pipe")
		})
	}()

	d.Publish(book(1))
	var derr *DistributionError
	select {
	case err := <-errc:
		if !errors.As(err, &derr) || derr.Subscriber != "bad" {
			t.Fatalf("expected DistributionError for bad, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("forward did not fail")
	}

	d.Publish(book(2))
	if d.Len() != 1 {
		t.Fatalf("failed subscriber should be removed, %d left", d.Len())
	}
	if len(good.C()) != 2 {
		t.Fatalf("good subscriber should have both books, got %d", len(good.C()))
	}
}

func TestForwardStopsOnCancelAndClose(t *testing.T) {
	d := New(1)
	sub := d.Subscribe("client")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Forward(ctx, sub, nil, func(models.MergedBook) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	sub = d.Subscribe("client2")
	d.Close()
	if err := Forward(context.Background(), sub, nil, func(models.MergedBook) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if d.Len() != 0 {
		t.Fatalf("expected no subscribers after close")
	}
	d.Publish(book(1))
	if _, ok := d.Latest(); ok {
		t.Fatal("publish after close should be ignored")
	}

	closed := d.Subscribe("after-close")
	select {
	case <-closed.Done():
	default:
		t.Fatal("subscribe after close should return a closed subscription")
	}
}

func TestForwardRateLimitConflates(t *testing.T) {
	d := New(8)
	sub := d.Subscribe("limited")
	limiter := rate.NewLimiter(rate.Every(100*time.Millisecond), 1)
	limiter.Allow() // use the initial token

	for i := uint64(1); i <= 5; i++ {
		d.Publish(book(i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sent := make(chan uint64, 8)
	go Forward(ctx, sub, limiter, func(b models.MergedBook) error {
		sent <- b.Sequence
		return nil
	})

	select {
	case seq := <-sent:
		if seq != 5 {
			t.Fatalf("expected conflated book 5, got %d", seq)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("nothing sent")
	}
}
