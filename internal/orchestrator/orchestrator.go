// Package orchestrator supervises one connector goroutine per venue. Each
// connector cycles Disconnected -> Connecting -> Subscribed -> Streaming and
// back to Disconnected on any error, reconnecting after an exponential,
// capped and jittered delay.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"orderly/internal/channel"
	"orderly/internal/metrics"
	"orderly/logger"
	"orderly/models"
	"orderly/reader"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Subscribed
	Streaming
)

var stateNames = [...]string{
	Disconnected: "disconnected",
	Connecting:   "connecting",
	Subscribed:   "subscribed",
	Streaming:    "streaming",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type ConnectorStatus struct {
	Exchange   models.Exchange `json:"exchange"`
	State      State           `json:"state"`
	Since      time.Time       `json:"since"`
	Ticks      int64           `json:"ticks"`
	Reconnects int64           `json:"reconnects"`
	// NextDelay is the wait before the pending reconnect.
	NextDelay time.Duration `json:"next_delay"`
	LastError string        `json:"last_error,omitempty"`
}

type RetryOptions struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     bool
}

type Options struct {
	Symbol  string
	Session reader.SessionOptions
	Retry   RetryOptions
	// OnState observes every state transition.
	OnState func(models.Exchange, State)
}

type Orchestrator struct {
	opts       Options
	connectors []reader.Connector
	ticks      *channel.Channels
	cancel     context.CancelFunc
	wg         *sync.WaitGroup
	mu         sync.RWMutex
	running    bool
	log        *logger.Log

	status map[models.Exchange]*ConnectorStatus
	wait   func(ctx context.Context, delay time.Duration) bool
}

func New(opts Options, connectors []reader.Connector, ticks *channel.Channels) *Orchestrator {
	o := &Orchestrator{
		opts:       opts,
		connectors: connectors,
		ticks:      ticks,
		wg:         &sync.WaitGroup{},
		log:        logger.GetLogger(),
		status:     make(map[models.Exchange]*ConnectorStatus),
		wait:       waitForReconnect,
	}
	now := time.Now()
	for _, c := range connectors {
		o.status[c.Exchange()] = &ConnectorStatus{Exchange: c.Exchange(), State: Disconnected, Since: now}
	}
	return o
}

func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already running")
	}
	if len(o.connectors) == 0 {
		o.mu.Unlock()
		return fmt.Errorf("no connectors configured")
	}
	o.running = true
	ctx, o.cancel = context.WithCancel(ctx)
	o.mu.Unlock()

	names := make([]string, 0, len(o.connectors))
	for _, c := range o.connectors {
		names = append(names, c.Exchange().String())
		o.wg.Add(1)
		go o.runConnector(ctx, c)
	}

	o.log.WithComponent("orchestrator").WithFields(logger.Fields{
		"symbol":     o.opts.Symbol,
		"exchanges":  names,
		"base_delay": o.opts.Retry.BaseDelay,
		"max_delay":  o.opts.Retry.MaxDelay,
	}).Info("orchestrator started")
	return nil
}

// Stop cancels every connector and waits for them to exit.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	cancel := o.cancel
	o.mu.Unlock()

	o.log.WithComponent("orchestrator").Info("stopping orchestrator")
	cancel()
	o.wg.Wait()
	o.log.WithComponent("orchestrator").Info("orchestrator stopped")
}

// Status returns a snapshot of every connector's status.
func (o *Orchestrator) Status() map[models.Exchange]ConnectorStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[models.Exchange]ConnectorStatus, len(o.status))
	for ex, st := range o.status {
		out[ex] = *st
	}
	return out
}

func (o *Orchestrator) setState(ex models.Exchange, state State, err error) {
	o.mu.Lock()
	st := o.status[ex]
	changed := st.State != state
	st.State = state
	if changed {
		st.Since = time.Now()
	}
	if err != nil {
		st.LastError = err.Error()
	}
	o.mu.Unlock()

	if changed {
		metrics.SetConnectorState(ex, int(state))
		if o.opts.OnState != nil {
			o.opts.OnState(ex, state)
		}
	}
}

func (o *Orchestrator) update(ex models.Exchange, fn func(*ConnectorStatus)) {
	o.mu.Lock()
	fn(o.status[ex])
	o.mu.Unlock()
}

func (o *Orchestrator) newBackoff() *backoff.Backoff {
	r := o.opts.Retry
	return &backoff.Backoff{
		Min:    r.BaseDelay,
		Max:    r.MaxDelay,
		Factor: r.Multiplier,
		Jitter: r.Jitter,
	}
}

func (o *Orchestrator) runConnector(ctx context.Context, c reader.Connector) {
	defer o.wg.Done()

	ex := c.Exchange()
	log := o.log.WithComponent("orchestrator").WithFields(logger.Fields{
		"exchange": ex.String(),
		"symbol":   o.opts.Symbol,
	})
	b := o.newBackoff()

	for {
		if ctx.Err() != nil {
			o.setState(ex, Disconnected, nil)
			return
		}

		o.setState(ex, Connecting, nil)

		streamed := false
		sessOpts := o.opts.Session
		sessOpts.OnFrame = func() {
			if !streamed {
				streamed = true
				o.setState(ex, Streaming, nil)
			}
		}

		sess, err := reader.Connect(ctx, c, o.opts.Symbol, sessOpts)
		if err == nil {
			o.setState(ex, Subscribed, nil)
			err = sess.Stream(ctx, func(tick *models.NormalizedTick) error {
				if !o.ticks.SendTick(ctx, tick) {
					return ctx.Err()
				}
				metrics.IncrementTick(ex)
				o.update(ex, func(st *ConnectorStatus) { st.Ticks++ })
				return nil
			})
		}

		if ctx.Err() != nil {
			o.setState(ex, Disconnected, nil)
			log.Info("connector stopped")
			return
		}

		if streamed {
			b.Reset()
		}
		delay := b.Duration()

		o.setState(ex, Disconnected, err)
		o.update(ex, func(st *ConnectorStatus) {
			st.Reconnects++
			st.NextDelay = delay
		})
		logger.IncrementReconnect()
		metrics.IncrementReconnect(ex)

		entry := log.WithError(err).WithFields(logger.Fields{
			"delay":    delay.String(),
			"attempt":  int(b.Attempt()),
			"streamed": streamed,
		})
		var cerr *reader.ConnectionError
		switch {
		case errors.Is(err, reader.ErrReconnectRequested):
			entry.Info("venue requested reconnect")
		case errors.As(err, &cerr):
			entry.Warn("failed to connect")
		default:
			entry.Warn("connection lost")
		}

		if o.wait(ctx, delay) {
			o.setState(ex, Disconnected, nil)
			return
		}
	}
}

// waitForReconnect sleeps for delay and reports whether ctx ended first.
func waitForReconnect(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}
