// Package fanout delivers merged books to independent subscribers. Every
// subscriber has a bounded queue; when it is full the oldest queued book is
// dropped so the publisher never waits.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"orderly/logger"
	"orderly/models"
)

// ErrClosed is returned by Forward when the subscription was closed.
var ErrClosed = errors.New("subscription closed")

// DistributionError reports a subscriber whose outbound transport failed.
type DistributionError struct {
	Subscriber string
	Err        error
}

func (e *DistributionError) Error() string {
	return fmt.Sprintf("delivery to %s failed: %v", e.Subscriber, e.Err)
}

func (e *DistributionError) Unwrap() error {
	return e.Err
}

type Subscription struct {
	id      string
	name    string
	ch      chan models.MergedBook
	done    chan struct{}
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Int64
}

// ID uniquely identifies the subscription.
func (s *Subscription) ID() string { return s.id }

func (s *Subscription) Name() string { return s.name }

// C delivers queued books, oldest first.
func (s *Subscription) C() <-chan models.MergedBook { return s.ch }

// Done is closed once the subscription is closed.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Dropped returns how many books were discarded because the queue was full.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Close stops delivery. The distributor forgets the subscription on its next
// publish.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.done)
	})
}

// offer enqueues book, evicting the oldest entries while the queue is full.
// Only the distributor sends on s.ch, so the loop ends once an eviction
// makes room.
func (s *Subscription) offer(book models.MergedBook) {
	for {
		select {
		case s.ch <- book:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
			logger.AddSnapshotsDropped(1)
		default:
		}
	}
}

// newest drains the queue and returns the most recent book, or book when
// nothing newer is waiting.
func (s *Subscription) newest(book models.MergedBook) models.MergedBook {
	for {
		select {
		case b := <-s.ch:
			book = b
			s.dropped.Add(1)
			logger.AddSnapshotsDropped(1)
		default:
			return book
		}
	}
}

type Distributor struct {
	queueSize int
	mu        sync.Mutex
	subs      map[string]*Subscription
	latest    models.MergedBook
	hasLatest bool
	closed    bool
	published int64
	log       *logger.Log
}

func New(queueSize int) *Distributor {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Distributor{
		queueSize: queueSize,
		subs:      make(map[string]*Subscription),
		log:       logger.GetLogger(),
	}
}

// Subscribe registers a new subscriber. The latest book, if any, is queued
// immediately so the subscriber does not wait for the next update.
func (d *Distributor) Subscribe(name string) *Subscription {
	sub := &Subscription{
		id:   uuid.New().String(),
		name: name,
		ch:   make(chan models.MergedBook, d.queueSize),
		done: make(chan struct{}),
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		sub.Close()
		return sub
	}
	d.subs[sub.id] = sub
	if d.hasLatest {
		sub.offer(d.latest)
	}

	d.log.WithComponent("fanout").WithFields(logger.Fields{
		"subscriber": name,
		"id":         sub.id,
		"active":     len(d.subs),
	}).Info("subscriber added")
	return sub
}

// Publish hands book to every live subscriber without blocking.
func (d *Distributor) Publish(book models.MergedBook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.latest = book
	d.hasLatest = true
	d.published++

	for id, sub := range d.subs {
		if sub.closed.Load() {
			delete(d.subs, id)
			d.log.WithComponent("fanout").WithFields(logger.Fields{
				"subscriber": sub.name,
				"id":         id,
				"dropped":    sub.Dropped(),
			}).Info("subscriber removed")
			continue
		}
		sub.offer(book)
	}
}

// Latest returns the most recently published book.
func (d *Distributor) Latest() (models.MergedBook, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latest, d.hasLatest
}

// Len returns the number of registered subscribers.
func (d *Distributor) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

// Published returns the number of books published so far.
func (d *Distributor) Published() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.published
}

// Close closes every subscription and ignores later publishes.
func (d *Distributor) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for id, sub := range d.subs {
		sub.Close()
		delete(d.subs, id)
	}
	d.log.WithComponent("fanout").Info("distributor closed")
}

// Forward calls send for every book delivered to sub until ctx is done, the
// subscription closes or send fails. A non-nil limiter caps the send rate;
// books that arrive while waiting are conflated into the newest one. A send
// failure closes the subscription and is returned as *DistributionError.
func Forward(ctx context.Context, sub *Subscription, limiter *rate.Limiter, send func(models.MergedBook) error) error {
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.Done():
			return ErrClosed
		case book := <-sub.C():
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return err
				}
				book = sub.newest(book)
			}
			if err := send(book); err != nil {
				derr := &DistributionError{Subscriber: sub.name, Err: err}
				logger.GetLogger().WithComponent("fanout").WithFields(logger.Fields{
					"subscriber": sub.name,
					"id":         sub.id,
				}).WithError(err).Warn("dropping subscriber after failed delivery")
				return derr
			}
		}
	}
}
