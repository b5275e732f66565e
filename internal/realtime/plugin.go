package realtime

import (
	"reflect"

	"gorm.io/gorm"
)

// Plugin publishes an Event for every successful create, update or delete on
// a watched table. Register it with db.Use.
type Plugin struct {
	bus     *Bus
	watched map[string]struct{}
}

// NewPlugin watches tables (all tables when none are given).
func NewPlugin(bus *Bus, tables ...string) *Plugin {
	p := &Plugin{bus: bus, watched: make(map[string]struct{}, len(tables))}
	for _, t := range tables {
		p.watched[t] = struct{}{}
	}
	return p
}

func (p *Plugin) Name() string { return "realtime:changefeed" }

func (p *Plugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Create().After("gorm:create").Register("realtime:after_create", p.emit(OpInsert)); err != nil {
		return err
	}
	if err := db.Callback().Update().After("gorm:update").Register("realtime:after_update", p.emit(OpUpdate)); err != nil {
		return err
	}
	return db.Callback().Delete().After("gorm:delete").Register("realtime:after_delete", p.emit(OpDelete))
}

func (p *Plugin) emit(op Op) func(*gorm.DB) {
	return func(tx *gorm.DB) {
		if tx.Error != nil || tx.Statement == nil || tx.RowsAffected == 0 {
			return
		}
		table := tx.Statement.Table
		if len(p.watched) > 0 {
			if _, ok := p.watched[table]; !ok {
				return
			}
		}
		ids := primaryKeys(tx)
		if len(ids) == 0 {
			p.bus.Publish(Event{Table: table, Op: op})
			return
		}
		for _, id := range ids {
			p.bus.Publish(Event{Table: table, Op: op, ID: id})
		}
	}
}

// primaryKeys reads uint primary keys from the statement's model value.
func primaryKeys(tx *gorm.DB) []uint {
	sch := tx.Statement.Schema
	if sch == nil || sch.PrioritizedPrimaryField == nil {
		return nil
	}
	field := sch.PrioritizedPrimaryField
	rv := tx.Statement.ReflectValue
	ctx := tx.Statement.Context

	var ids []uint
	read := func(v reflect.Value) {
		for v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return
		}
		val, zero := field.ValueOf(ctx, v)
		if zero {
			return
		}
		if id, ok := toUint(val); ok {
			ids = append(ids, id)
		}
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			read(rv.Index(i))
		}
	default:
		read(rv)
	}
	return ids
}

func toUint(v any) (uint, bool) {
	switch n := v.(type) {
	case uint:
		return n, true
	case uint64:
		return uint(n), true
	case uint32:
		return uint(n), true
	case int:
		return uint(n), n > 0
	case int64:
		return uint(n), n > 0
	}
	return 0, false
}
