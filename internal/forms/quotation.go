package forms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/diewo77/go-quotations/httpx"
	"github.com/diewo77/go-quotations/internal/models"
	"github.com/diewo77/go-quotations/internal/pricing"
	"github.com/diewo77/go-quotations/validation"
)

// Number is a float that also accepts quoted or malformed JSON input,
// which decodes to 0.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			*n = 0
			return nil
		}
		*n = Number(ParseNumber(s))
		return nil
	}
	*n = Number(ParseNumber(string(b)))
	return nil
}

// QuotationForm is the snapshot submitted from the create/edit screen.
// ID is zero in create mode.
type QuotationForm struct {
	ID                 uint
	Version            uint
	ProjectName        string
	Date               string
	ValidityDate       string
	BudgetType         string
	Recipient          string
	CurrencyType       string
	Discount           float64
	Note               string
	VendorName         string
	VendorCost         float64
	VendorCurrencyType string
	Items              *ItemList
}

type itemPayload struct {
	ID          uint   `json:"id"`
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Quantity    Number `json:"quantity"`
	UnitPrice   Number `json:"unit_price"`
	TypeID      *uint  `json:"type_id"`
	TypeName    string `json:"type_name"`
}

type quotationPayload struct {
	Version            uint          `json:"version"`
	ProjectName        string        `json:"project_name"`
	Date               string        `json:"date"`
	ValidityDate       string        `json:"validity_date"`
	BudgetType         string        `json:"budget_type"`
	Recipient          string        `json:"recipient"`
	CurrencyType       string        `json:"currency_type"`
	Discount           Number        `json:"discount"`
	Note               string        `json:"note"`
	VendorName         string        `json:"vendor_name"`
	VendorCost         Number        `json:"vendor_cost"`
	VendorCurrencyType string        `json:"vendor_currency_type"`
	Items              []itemPayload `json:"items"`
}

// ParseQuotationForm reads a JSON, urlencoded or multipart submission.
// Form bodies carry items as items[<n>][<field>].
func ParseQuotationForm(r *http.Request) (*QuotationForm, error) {
	var p quotationPayload
	if httpx.IsJSONBody(r) {
		if err := httpx.DecodeJSON(r, &p); err != nil {
			return nil, err
		}
	} else {
		if err := r.ParseMultipartForm(10 << 20); err != nil && err != http.ErrNotMultipart {
			return nil, fmt.Errorf("parse form: %w", err)
		}
		p = payloadFromValues(r)
	}
	return p.toForm(), nil
}

var itemKeyRe = regexp.MustCompile(`^items\[(\d+)\]\[([a-z_]+)\]$`)

func payloadFromValues(r *http.Request) quotationPayload {
	get := r.FormValue
	version, _ := strconv.ParseUint(get("version"), 10, 64)
	p := quotationPayload{
		Version:            uint(version),
		ProjectName:        get("project_name"),
		Date:               get("date"),
		ValidityDate:       get("validity_date"),
		BudgetType:         get("budget_type"),
		Recipient:          get("recipient"),
		CurrencyType:       get("currency_type"),
		Discount:           Number(ParseNumber(get("discount"))),
		Note:               get("note"),
		VendorName:         get("vendor_name"),
		VendorCost:         Number(ParseNumber(get("vendor_cost"))),
		VendorCurrencyType: get("vendor_currency_type"),
	}

	rows := map[int]*itemPayload{}
	for key, vals := range r.Form {
		m := itemKeyRe.FindStringSubmatch(key)
		if m == nil || len(vals) == 0 {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		it, ok := rows[n]
		if !ok {
			it = &itemPayload{}
			rows[n] = it
		}
		v := vals[0]
		switch m[2] {
		case "id":
			id, _ := strconv.ParseUint(v, 10, 64)
			it.ID = uint(id)
		case "key":
			it.Key = v
		case FieldName:
			it.Name = v
		case FieldDescription:
			it.Description = v
		case FieldQuantity:
			it.Quantity = Number(ParseNumber(v))
		case FieldUnitPrice:
			it.UnitPrice = Number(ParseNumber(v))
		case "type_id":
			if id, err := strconv.ParseUint(v, 10, 64); err == nil && id > 0 {
				tid := uint(id)
				it.TypeID = &tid
			}
		case "type_name", FieldType:
			it.TypeName = v
		}
	}
	idx := make([]int, 0, len(rows))
	for n := range rows {
		idx = append(idx, n)
	}
	sort.Ints(idx)
	for _, n := range idx {
		p.Items = append(p.Items, *rows[n])
	}
	return p
}

func (p quotationPayload) toForm() *QuotationForm {
	items := make([]Item, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, Item{
			Key:         it.Key,
			ID:          it.ID,
			Name:        strings.TrimSpace(it.Name),
			Description: it.Description,
			Quantity:    float64(it.Quantity),
			UnitPrice:   float64(it.UnitPrice),
			TypeID:      it.TypeID,
			TypeName:    strings.TrimSpace(it.TypeName),
		})
	}
	return &QuotationForm{
		Version:            p.Version,
		ProjectName:        strings.TrimSpace(p.ProjectName),
		Date:               NormalizeDate(p.Date),
		ValidityDate:       NormalizeDate(p.ValidityDate),
		BudgetType:         strings.TrimSpace(p.BudgetType),
		Recipient:          strings.TrimSpace(p.Recipient),
		CurrencyType:       defaultCurrency(p.CurrencyType),
		Discount:           float64(p.Discount),
		Note:               p.Note,
		VendorName:         strings.TrimSpace(p.VendorName),
		VendorCost:         float64(p.VendorCost),
		VendorCurrencyType: defaultCurrency(p.VendorCurrencyType),
		Items:              NewItemList(items...),
	}
}

func defaultCurrency(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return pricing.USD
	}
	return c
}

// NormalizeDate trims timestamps down to yyyy-MM-dd. Unrecognised input is
// returned unchanged so validation can flag it.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04", validation.DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(validation.DateLayout)
		}
	}
	return s
}

// Validate checks required fields and enumerations.
func (f *QuotationForm) Validate() validation.Violations {
	v := make(validation.Violations)
	validation.Required("project_name", f.ProjectName, v)
	validation.Required("date", f.Date, v)
	validation.Date("date", f.Date, v)
	validation.Date("validity_date", f.ValidityDate, v)
	if v["date"] == "" && v["validity_date"] == "" {
		validation.NotBefore("validity_date", f.Date, f.ValidityDate, v)
	}
	validation.Required("budget_type", f.BudgetType, v)
	validation.OneOf("budget_type", f.BudgetType, models.BudgetTypes, v)
	validation.OneOf("currency_type", f.CurrencyType, models.Currencies, v)
	validation.OneOf("vendor_currency_type", f.VendorCurrencyType, models.Currencies, v)
	validation.NonNegativeFloat("discount", f.Discount, v)
	validation.NonNegativeFloat("vendor_cost", f.VendorCost, v)
	for i, it := range f.Items.Items() {
		validation.Required(fmt.Sprintf("items[%d].name", i), it.Name, v)
		validation.NonNegativeFloat(fmt.Sprintf("items[%d].quantity", i), it.Quantity, v)
	}
	return v
}

// Preview is what the edit screen shows before saving. The same arithmetic
// produces the persisted record.
type Preview struct {
	Items    []Item  `json:"items"`
	Subtotal float64 `json:"subtotal"`
	Discount float64 `json:"discount"`
	Total    float64 `json:"total"`
	Currency string  `json:"currency"`
}

func (f *QuotationForm) Preview() Preview {
	items := f.Items.Items()
	return Preview{
		Items:    items,
		Subtotal: pricing.Subtotal(items),
		Discount: f.Discount,
		Total:    pricing.CalculateTotalPrice(items, f.Discount),
		Currency: f.CurrencyType,
	}
}

// FormFromQuotation loads a saved quotation into an editable form.
func FormFromQuotation(q *models.Quotation) *QuotationForm {
	items := make([]Item, 0, len(q.Items))
	for _, it := range q.Items {
		item := Item{
			ID:          it.ID,
			Name:        it.Name,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TypeID:      it.TypeID,
		}
		if it.Type != nil {
			item.TypeName = it.Type.Name
		}
		items = append(items, item)
	}
	vendorName := ""
	if q.Vendor != nil {
		vendorName = q.Vendor.Name
	}
	return &QuotationForm{
		ID:                 q.ID,
		Version:            q.Version,
		ProjectName:        q.ProjectName,
		Date:               q.Date,
		ValidityDate:       q.ValidityDate,
		BudgetType:         q.BudgetType,
		Recipient:          q.Recipient,
		CurrencyType:       q.CurrencyType,
		Discount:           q.Discount,
		Note:               q.Note,
		VendorName:         vendorName,
		VendorCost:         q.VendorCost,
		VendorCurrencyType: q.VendorCurrencyType,
		Items:              NewItemList(items...),
	}
}
