// Package forms holds in-progress quotation edits: the header and vendor
// fields and the ordered item list, with line totals kept in step with
// quantity and unit price on every edit.
package forms

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/diewo77/go-quotations/internal/pricing"
	"github.com/google/uuid"
)

// Item fields accepted by ItemList.UpdateItem.
const (
	FieldName        = "name"
	FieldDescription = "description"
	FieldQuantity    = "quantity"
	FieldUnitPrice   = "unit_price"
	FieldType        = "type"
)

// Item is one editable line. Key identifies the row inside the editor; ID is
// the persisted row id (0 for lines that were never saved).
type Item struct {
	Key         string  `json:"key"`
	ID          uint    `json:"id,omitempty"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	TotalPrice  float64 `json:"total_price"`
	TypeID      *uint   `json:"type_id,omitempty"`
	TypeName    string  `json:"type_name,omitempty"`
}

// LineTotal implements pricing.Line.
func (i Item) LineTotal() float64 { return i.TotalPrice }

func (i *Item) recompute() {
	i.TotalPrice = pricing.LineTotal(i.Quantity, i.UnitPrice)
}

// ItemList is an ordered list of items. There is no reorder operation.
type ItemList struct {
	items []Item
}

// NewItemList copies items into a list, recomputing totals and filling missing keys.
func NewItemList(items ...Item) *ItemList {
	l := &ItemList{items: make([]Item, 0, len(items))}
	for _, it := range items {
		if it.Key == "" {
			it.Key = uuid.NewString()
		}
		it.recompute()
		l.items = append(l.items, it)
	}
	return l
}

// AddItem appends a zero-valued item with a fresh key and returns it.
func (l *ItemList) AddItem() Item {
	it := Item{Key: uuid.NewString()}
	l.items = append(l.items, it)
	return it
}

// UpdateItem sets one field of the item identified by key. Quantity and unit
// price parse leniently (non-numeric input becomes 0) and the line total is
// recomputed in the same call.
func (l *ItemList) UpdateItem(key, field, value string) error {
	idx := l.index(key)
	if idx < 0 {
		return fmt.Errorf("item %q: %w", key, ErrUnknownItem)
	}
	it := &l.items[idx]
	switch field {
	case FieldName:
		it.Name = value
	case FieldDescription:
		it.Description = value
	case FieldQuantity:
		it.Quantity = ParseNumber(value)
		it.recompute()
	case FieldUnitPrice:
		it.UnitPrice = ParseNumber(value)
		it.recompute()
	case FieldType:
		it.TypeName = strings.TrimSpace(value)
		it.TypeID = nil
	default:
		return fmt.Errorf("field %q: %w", field, ErrUnknownField)
	}
	return nil
}

// RemoveItem deletes the item identified by key. Unknown keys are ignored.
func (l *ItemList) RemoveItem(key string) {
	if idx := l.index(key); idx >= 0 {
		l.items = append(l.items[:idx], l.items[idx+1:]...)
	}
}

// Items returns a copy of the current list.
func (l *ItemList) Items() []Item {
	out := make([]Item, len(l.items))
	copy(out, l.items)
	return out
}

// Len returns the number of items.
func (l *ItemList) Len() int { return len(l.items) }

// Get returns the item identified by key.
func (l *ItemList) Get(key string) (Item, bool) {
	if idx := l.index(key); idx >= 0 {
		return l.items[idx], true
	}
	return Item{}, false
}

func (l *ItemList) index(key string) int {
	for i := range l.items {
		if l.items[i].Key == key {
			return i
		}
	}
	return -1
}

// ParseNumber reads a user-typed number, treating anything unparsable as 0.
// Thousands separators are accepted.
func ParseNumber(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

var (
	ErrUnknownItem  = errors.New("unknown item")
	ErrUnknownField = errors.New("unknown item field")
)
