package server

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"orderly/models"
)

// venueEvent is one captured log line. Payload holds the raw frame of a
// discarded message, truncated by the session.
type venueEvent struct {
	seq       uint64
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Exchange  string                 `json:"exchange,omitempty"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Error     string                 `json:"error,omitempty"`
	Payload   string                 `json:"payload,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// venueSummary is the per exchange view served by /api/venues.
type venueSummary struct {
	Exchange          models.Exchange `json:"exchange"`
	Events            int             `json:"events"`
	Warnings          int64           `json:"warnings"`
	ProtocolErrors    int64           `json:"protocol_errors"`
	LastError         string          `json:"last_error,omitempty"`
	LastPayload       string          `json:"last_payload,omitempty"`
	LastProtocolError time.Time       `json:"last_protocol_error"`
}

type venueHistory struct {
	events  []venueEvent
	summary venueSummary
}

// venueLog is a logrus hook that keeps recent log lines per exchange, so a
// noisy venue cannot push another venue's history out. Lines without an
// exchange field go to a shared history.
type venueLog struct {
	mu      sync.RWMutex
	limit   int
	seq     uint64
	general []venueEvent
	venues  map[models.Exchange]*venueHistory
	enabled atomic.Bool
}

func newVenueLog(limit int) *venueLog {
	if limit <= 0 {
		limit = historyLimit
	}
	l := &venueLog{limit: limit, venues: make(map[models.Exchange]*venueHistory)}
	l.enabled.Store(true)
	return l
}

func (l *venueLog) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel, logrus.InfoLevel}
}

func (l *venueLog) Fire(entry *logrus.Entry) error {
	if !l.enabled.Load() {
		return nil
	}

	ev := venueEvent{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
	}
	var (
		exchange models.Exchange
		known    bool
	)
	for k, v := range entry.Data {
		switch k {
		case "component":
			ev.Component = fmt.Sprint(v)
		case "exchange":
			ev.Exchange = fmt.Sprint(v)
			if ex, err := models.ParseExchange(ev.Exchange); err == nil {
				exchange, known = ex, true
			}
		case logrus.ErrorKey:
			ev.Error = fmt.Sprint(v)
		case "payload":
			ev.Payload = fmt.Sprint(v)
		default:
			if ev.Fields == nil {
				ev.Fields = make(map[string]interface{})
			}
			if s, ok := v.(fmt.Stringer); ok {
				v = s.String()
			}
			ev.Fields[k] = v
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	ev.seq = l.seq

	if !known {
		l.general = trimEvents(append(l.general, ev), l.limit)
		return nil
	}

	h := l.venues[exchange]
	if h == nil {
		h = &venueHistory{summary: venueSummary{Exchange: exchange}}
		l.venues[exchange] = h
	}
	h.events = trimEvents(append(h.events, ev), l.limit)
	if entry.Level <= logrus.WarnLevel {
		h.summary.Warnings++
		if ev.Error != "" {
			h.summary.LastError = ev.Error
		}
	}
	if ev.Payload != "" {
		h.summary.ProtocolErrors++
		h.summary.LastPayload = ev.Payload
		h.summary.LastProtocolError = ev.Timestamp
	}
	return nil
}

func trimEvents(events []venueEvent, limit int) []venueEvent {
	if len(events) > limit {
		return append([]venueEvent(nil), events[len(events)-limit:]...)
	}
	return events
}

// recent returns up to limit events at or above minLevel, oldest first.
// A nil exchange merges every history.
func (l *venueLog) recent(exchange *models.Exchange, minLevel logrus.Level, limit int) []venueEvent {
	l.mu.RLock()
	var out []venueEvent
	if exchange != nil {
		if h := l.venues[*exchange]; h != nil {
			out = filterEvents(out, h.events, minLevel)
		}
	} else {
		out = filterEvents(out, l.general, minLevel)
		for _, h := range l.venues {
			out = filterEvents(out, h.events, minLevel)
		}
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func filterEvents(dst, events []venueEvent, minLevel logrus.Level) []venueEvent {
	for _, ev := range events {
		lvl, err := logrus.ParseLevel(ev.Level)
		if err == nil && lvl <= minLevel {
			dst = append(dst, ev)
		}
	}
	return dst
}

// summaries returns one entry per exchange seen so far in ordinal order.
func (l *venueLog) summaries() []venueSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]venueSummary, 0, len(l.venues))
	for _, h := range l.venues {
		s := h.summary
		s.Events = len(h.events)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Exchange < out[j].Exchange })
	return out
}

func (l *venueLog) close() {
	l.enabled.Store(false)
}
