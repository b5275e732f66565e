package realtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestBus_SubscribeFiltersAndTearsDown(t *testing.T) {
	bus := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	events := bus.Subscribe(ctx, TableQuotations)

	bus.Publish(Event{Table: TableUsers, Op: OpUpdate, ID: 1})
	bus.Publish(Event{Table: TableQuotations, Op: OpInsert, ID: 7})

	select {
	case e := <-events:
		if e.Table != TableQuotations || e.ID != 7 || e.At.IsZero() {
			t.Fatalf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	cancel()
	deadline := time.After(time.Second)
	for bus.Subscribers() != 0 {
		select {
		case <-deadline:
			t.Fatal("subscription not removed after cancel")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if _, ok := <-events; ok {
		t.Fatal("channel should be closed")
	}
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	bus := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = bus.Subscribe(ctx)
	for i := 0; i < subscriberBuffer+10; i++ {
		bus.Publish(Event{Table: TableQuotations, Op: OpUpdate})
	}
	if bus.Dropped() != 10 {
		t.Fatalf("dropped = %d, want 10", bus.Dropped())
	}
	bus.Close()
	bus.Close()
}

func TestDebouncer_CoalescesBurst(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(30*time.Millisecond, 0, func() { calls.Add(1) })
	for i := 0; i < 10; i++ {
		d.Trigger()
		time.Sleep(2 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestDebouncer_MaxWait(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(50*time.Millisecond, 60*time.Millisecond, func() { calls.Add(1) })
	defer d.Stop()
	stop := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(stop) {
		d.Trigger()
		time.Sleep(10 * time.Millisecond)
	}
	if calls.Load() < 1 {
		t.Fatal("max wait ceiling never fired during a continuous burst")
	}
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(20*time.Millisecond, 0, func() { calls.Add(1) })
	d.Trigger()
	d.Stop()
	d.Trigger()
	time.Sleep(60 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("calls = %d after Stop", calls.Load())
	}
}

type recordingCache struct {
	mu       sync.Mutex
	prefixes [][]string
}

func (r *recordingCache) InvalidatePrefix(prefixes ...string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefixes = append(r.prefixes, prefixes)
	return len(prefixes)
}

func TestInvalidator_MapsAndCoalesces(t *testing.T) {
	rc := &recordingCache{}
	inv := NewInvalidator(rc, nil, time.Hour, 0)
	inv.Handle(Event{Table: TableQuotationItems, Op: OpInsert})
	inv.Handle(Event{Table: TableExchangeRates, Op: OpUpdate})
	inv.Handle(Event{Table: "unrelated", Op: OpUpdate})
	inv.Flush()

	rc.mu.Lock()
	defer rc.mu.Unlock()
	if len(rc.prefixes) != 1 {
		t.Fatalf("flushes = %d, want 1", len(rc.prefixes))
	}
	got := fmt.Sprint(rc.prefixes[0])
	if got != fmt.Sprint([]string{KeyExchangeRates, KeyQuotations, KeyStats}) {
		t.Fatalf("prefixes = %s", got)
	}
}

func TestCoalesce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan Event)
	out := Coalesce(ctx, in, 20*time.Millisecond, 0)
	in <- Event{Table: TableQuotations}
	in <- Event{Table: TableQuotationItems}
	in <- Event{Table: TableQuotations}

	select {
	case b := <-out:
		if b.Events != 3 || len(b.Tables) != 2 {
			t.Fatalf("batch = %+v", b)
		}
	case <-time.After(time.Second):
		t.Fatal("no batch")
	}
	cancel()
	for range out {
	}
}

type widget struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func TestPlugin_PublishesRowChanges(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&widget{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	bus := NewBus()
	if err := db.Use(NewPlugin(bus, "widgets")); err != nil {
		t.Fatalf("use plugin: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := bus.Subscribe(ctx)

	w := widget{Name: "a"}
	db.Create(&w)
	db.Model(&w).Update("name", "b")
	db.Delete(&w)

	want := []Op{OpInsert, OpUpdate, OpDelete}
	for _, op := range want {
		select {
		case e := <-events:
			if e.Table != "widgets" || e.Op != op || e.ID != w.ID {
				t.Fatalf("event = %+v, want %s on id %d", e, op, w.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing %s event", op)
		}
	}
}
