package forms

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestItemList_AddUpdateRemove(t *testing.T) {
	l := NewItemList()
	a := l.AddItem()
	b := l.AddItem()
	if a.Key == "" || a.Key == b.Key {
		t.Fatalf("keys must be unique and non-empty: %q %q", a.Key, b.Key)
	}
	if a.Quantity != 0 || a.UnitPrice != 0 || a.TotalPrice != 0 {
		t.Fatalf("new item not zero-valued: %+v", a)
	}

	steps := []struct {
		field, value string
		want         float64
	}{
		{FieldQuantity, "2", 0},
		{FieldUnitPrice, "100", 200},
		{FieldQuantity, "3", 300},
		{FieldUnitPrice, "abc", 0},
		{FieldUnitPrice, "1,250", 3750},
	}
	for _, s := range steps {
		if err := l.UpdateItem(a.Key, s.field, s.value); err != nil {
			t.Fatalf("update %s: %v", s.field, err)
		}
		got, _ := l.Get(a.Key)
		if got.TotalPrice != got.Quantity*got.UnitPrice || got.TotalPrice != s.want {
			t.Fatalf("after %s=%s total=%v (q=%v p=%v), want %v", s.field, s.value, got.TotalPrice, got.Quantity, got.UnitPrice, s.want)
		}
	}

	if err := l.UpdateItem(a.Key, FieldType, " Hardware "); err != nil {
		t.Fatal(err)
	}
	if got, _ := l.Get(a.Key); got.TypeName != "Hardware" {
		t.Errorf("type name = %q", got.TypeName)
	}

	l.RemoveItem(a.Key)
	if l.Len() != 1 {
		t.Fatalf("len = %d after remove", l.Len())
	}
	if _, ok := l.Get(a.Key); ok {
		t.Fatal("removed item still present")
	}
	if items := l.Items(); items[0].Key != b.Key {
		t.Fatalf("remaining item = %q, want %q", items[0].Key, b.Key)
	}
}

func TestItemList_UpdateErrors(t *testing.T) {
	l := NewItemList()
	it := l.AddItem()
	if err := l.UpdateItem("missing", FieldName, "x"); !errors.Is(err, ErrUnknownItem) {
		t.Errorf("expected ErrUnknownItem, got %v", err)
	}
	if err := l.UpdateItem(it.Key, "colour", "x"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
}

func TestParseNumber(t *testing.T) {
	tests := map[string]float64{
		"":        0,
		"  12 ":   12,
		"1,000.5": 1000.5,
		"abc":     0,
		"NaN":     0,
		"-3":      -3,
	}
	for in, want := range tests {
		if got := ParseNumber(in); got != want {
			t.Errorf("ParseNumber(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseQuotationForm_JSON(t *testing.T) {
	body := `{"project_name":" Tower ","date":"2024-05-01T10:00:00Z","budget_type":"ma","currency_type":"IQD",
		"discount":"20","vendor_name":"Acme","vendor_cost":"oops",
		"items":[{"name":"Cable","quantity":2,"unit_price":100},{"name":"Switch","quantity":"1","unit_price":50,"type_name":"Network"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/quotations", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	f, err := ParseQuotationForm(req)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.ProjectName != "Tower" || f.Date != "2024-05-01" || f.CurrencyType != "iqd" {
		t.Fatalf("header = %+v", f)
	}
	if f.VendorCost != 0 {
		t.Errorf("non-numeric vendor cost should coerce to 0, got %v", f.VendorCost)
	}
	if v := f.Validate(); !v.Empty() {
		t.Fatalf("unexpected violations: %v", v)
	}
	p := f.Preview()
	if p.Subtotal != 250 || p.Total != 230 {
		t.Fatalf("preview = %+v", p)
	}
	if p.Items[1].TypeName != "Network" {
		t.Errorf("type name lost: %+v", p.Items[1])
	}
}

func TestParseQuotationForm_URLEncoded(t *testing.T) {
	form := url.Values{}
	form.Set("project_name", "Site B")
	form.Set("date", "2024-06-01")
	form.Set("validity_date", "2024-05-01")
	form.Set("budget_type", "unknown")
	form.Set("items[1][name]", "Second")
	form.Set("items[1][quantity]", "1")
	form.Set("items[1][unit_price]", "5")
	form.Set("items[0][name]", "First")
	form.Set("items[0][quantity]", "x")
	form.Set("items[0][unit_price]", "9")
	req := httptest.NewRequest(http.MethodPost, "/api/quotations", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	f, err := ParseQuotationForm(req)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	items := f.Items.Items()
	if len(items) != 2 || items[0].Name != "First" || items[1].Name != "Second" {
		t.Fatalf("items out of order: %+v", items)
	}
	if items[0].Quantity != 0 || items[0].TotalPrice != 0 {
		t.Errorf("non-numeric quantity should coerce to 0: %+v", items[0])
	}
	v := f.Validate()
	if v["budget_type"] != "invalid_choice" || v["validity_date"] != "before_start" {
		t.Fatalf("violations = %v", v)
	}
}

func TestValidate_NegativeDiscount(t *testing.T) {
	f := &QuotationForm{ProjectName: "P", Date: "2024-01-01", BudgetType: "ma", CurrencyType: "usd", VendorCurrencyType: "usd", Discount: -5, Items: NewItemList()}
	if v := f.Validate(); v["discount"] != "must_not_be_negative" {
		t.Fatalf("violations = %v", v)
	}
}
