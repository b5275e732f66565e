package realtime

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Batch is a debounced group of events.
type Batch struct {
	Tables []string  `json:"tables"`
	Events int       `json:"events"`
	At     time.Time `json:"at"`
}

// Coalesce groups events from in into batches using a Debouncer. The output
// closes when in closes or ctx is done; a pending batch is then discarded.
func Coalesce(ctx context.Context, in <-chan Event, wait, maxWait time.Duration) <-chan Batch {
	out := make(chan Batch, 16)
	var (
		mu     sync.Mutex
		tables = map[string]struct{}{}
		count  int
		closed bool
	)
	d := NewDebouncer(wait, maxWait, func() {
		mu.Lock()
		defer mu.Unlock()
		if closed || count == 0 {
			return
		}
		b := Batch{Events: count, At: time.Now()}
		for t := range tables {
			b.Tables = append(b.Tables, t)
		}
		sort.Strings(b.Tables)
		tables = map[string]struct{}{}
		count = 0
		select {
		case out <- b:
		default:
		}
	})

	go func() {
		defer func() {
			d.Stop()
			mu.Lock()
			closed = true
			close(out)
			mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-in:
				if !ok {
					return
				}
				mu.Lock()
				tables[e.Table] = struct{}{}
				count++
				mu.Unlock()
				d.Trigger()
			}
		}
	}()
	return out
}
