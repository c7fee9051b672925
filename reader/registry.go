package reader

import (
	"fmt"
	"sort"
	"sync"

	"orderly/models"
)

// Options configures a connector instance.
type Options struct {
	// Depth is the number of levels per side forwarded in each tick.
	Depth int
	// URL overrides the venue's default endpoint when not empty.
	URL string
}

// Factory builds a connector for one venue.
type Factory func(Options) Connector

var (
	registryMu sync.RWMutex
	registry   = make(map[models.Exchange]Factory)
)

// Register makes a connector available to New. Venue packages call it from
// init.
func Register(exchange models.Exchange, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if factory == nil {
		panic("reader: Register factory is nil")
	}
	if _, dup := registry[exchange]; dup {
		panic("reader: Register called twice for " + exchange.String())
	}
	registry[exchange] = factory
}

// New returns the connector registered for exchange.
func New(exchange models.Exchange, opts Options) (Connector, error) {
	registryMu.RLock()
	factory, ok := registry[exchange]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no connector registered for %s", exchange)
	}
	if opts.Depth <= 0 {
		opts.Depth = DefaultDepth
	}
	return factory(opts), nil
}

// Registered lists the venues with a connector, in ordinal order.
func Registered() []models.Exchange {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]models.Exchange, 0, len(registry))
	for ex := range registry {
		out = append(out, ex)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
