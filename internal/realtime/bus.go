// Package realtime is the change feed: gorm callbacks publish typed events
// to a Bus, an Invalidator maps them onto query-cache key prefixes, and
// subscribers (the SSE endpoint) receive them debounced.
package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Op is the kind of row change.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Watched tables.
const (
	TableQuotations      = "quotations"
	TableQuotationItems  = "quotation_items"
	TableExchangeRates   = "exchange_rates"
	TableUsers           = "users"
	TableVendorDocuments = "vendor_documents"
	TableCompanySettings = "company_settings"
	TableVendors         = "vendors"
	TableItemTypes       = "item_types"
)

// Event describes one row change. ID is 0 for bulk statements.
type Event struct {
	Table string    `json:"table"`
	Op    Op        `json:"op"`
	ID    uint      `json:"id,omitempty"`
	At    time.Time `json:"at"`
}

// subscriberBuffer bounds how far a subscriber may lag before events are dropped.
const subscriberBuffer = 64

type subscription struct {
	ch     chan Event
	tables map[string]struct{}
}

func (s *subscription) wants(table string) bool {
	if len(s.tables) == 0 {
		return true
	}
	_, ok := s.tables[table]
	return ok
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*subscription]struct{}
	closed  bool
	dropped atomic.Int64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*subscription]struct{})}
}

// Publish delivers e to every interested subscriber.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if !s.wants(e.Table) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel of events for tables (all tables when none are
// given). The channel is closed once ctx is done or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context, tables ...string) <-chan Event {
	s := &subscription{ch: make(chan Event, subscriberBuffer), tables: make(map[string]struct{}, len(tables))}
	for _, t := range tables {
		if t != "" {
			s.tables[t] = struct{}{}
		}
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.ch)
		return s.ch
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(s)
	}()
	return s.ch
}

func (b *Bus) remove(s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber lagged.
func (b *Bus) Dropped() int64 { return b.dropped.Load() }

// Close ends every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		delete(b.subs, s)
		close(s.ch)
	}
}
