package realtime

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"
)

// Cache key prefixes used by the services.
const (
	KeyQuotations    = "quotations:"
	KeyStats         = "stats:"
	KeyExchangeRates = "exchange_rates:"
	KeyUsers         = "users:"
	KeyDocuments     = "documents:"
	KeySettings      = "settings:"
	KeyVendors       = "vendors:"
	KeyItemTypes     = "item_types:"
)

// Invalidations maps a table to the cache prefixes its changes make stale.
// Quotation lists show vendor cost in IQD, so rate changes reach them too.
var Invalidations = map[string][]string{
	TableQuotations:      {KeyQuotations, KeyStats},
	TableQuotationItems:  {KeyQuotations, KeyStats},
	TableExchangeRates:   {KeyExchangeRates, KeyQuotations, KeyStats},
	TableUsers:           {KeyUsers, KeyQuotations},
	TableVendorDocuments: {KeyDocuments},
	TableCompanySettings: {KeySettings},
	TableVendors:         {KeyVendors, KeyQuotations},
	TableItemTypes:       {KeyItemTypes, KeyStats},
}

// WatchedTables returns the tables present in Invalidations.
func WatchedTables() []string {
	out := make([]string, 0, len(Invalidations))
	for t := range Invalidations {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// PrefixInvalidator is implemented by *cache.Cache.
type PrefixInvalidator interface {
	InvalidatePrefix(prefixes ...string) int
}

// Invalidator drains a bus subscription and drops the mapped cache prefixes,
// coalescing bursts through a Debouncer.
type Invalidator struct {
	cache    PrefixInvalidator
	mapping  map[string][]string
	debounce *Debouncer

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewInvalidator builds an invalidator over mapping (Invalidations when nil).
func NewInvalidator(c PrefixInvalidator, mapping map[string][]string, wait, maxWait time.Duration) *Invalidator {
	if mapping == nil {
		mapping = Invalidations
	}
	inv := &Invalidator{cache: c, mapping: mapping, pending: make(map[string]struct{})}
	inv.debounce = NewDebouncer(wait, maxWait, inv.flush)
	return inv
}

// Handle queues the prefixes for e and schedules a flush.
func (inv *Invalidator) Handle(e Event) {
	prefixes := inv.mapping[e.Table]
	if len(prefixes) == 0 {
		return
	}
	inv.mu.Lock()
	for _, p := range prefixes {
		inv.pending[p] = struct{}{}
	}
	inv.mu.Unlock()
	inv.debounce.Trigger()
}

func (inv *Invalidator) flush() {
	inv.mu.Lock()
	prefixes := make([]string, 0, len(inv.pending))
	for p := range inv.pending {
		prefixes = append(prefixes, p)
	}
	inv.pending = make(map[string]struct{})
	inv.mu.Unlock()
	if len(prefixes) == 0 {
		return
	}
	sort.Strings(prefixes)
	n := inv.cache.InvalidatePrefix(prefixes...)
	log.Printf("realtime: invalidated %d cache entries for %v", n, prefixes)
}

// Run consumes bus events until ctx is done, then cancels any pending flush.
func (inv *Invalidator) Run(ctx context.Context, bus *Bus) {
	events := bus.Subscribe(ctx, WatchedTables()...)
	defer inv.debounce.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			inv.Handle(e)
		}
	}
}

// Flush applies queued invalidations immediately.
func (inv *Invalidator) Flush() { inv.debounce.Flush() }
