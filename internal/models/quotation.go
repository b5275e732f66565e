package models

import (
	"time"

	"github.com/diewo77/go-quotations/internal/pricing"
	"gorm.io/gorm"
)

// QuotationStatus is the workflow state of a quotation.
type QuotationStatus string

const (
	StatusDraft    QuotationStatus = "draft"
	StatusPending  QuotationStatus = "pending"
	StatusRejected QuotationStatus = "rejected"
	StatusApproved QuotationStatus = "approved"
	StatusInvoiced QuotationStatus = "invoiced"
)

// Statuses lists every valid status.
var Statuses = []string{
	string(StatusDraft), string(StatusPending), string(StatusRejected),
	string(StatusApproved), string(StatusInvoiced),
}

// Valid reports whether s is one of the five workflow states.
func (s QuotationStatus) Valid() bool {
	for _, v := range Statuses {
		if string(s) == v {
			return true
		}
	}
	return false
}

// Won reports whether the quotation counts as converted.
func (s QuotationStatus) Won() bool {
	return s == StatusApproved || s == StatusInvoiced
}

// Budget types group quotations by funding source.
const (
	BudgetMA                 = "ma"
	BudgetKorekCommunication = "korek_communication"
)

var BudgetTypes = []string{BudgetMA, BudgetKorekCommunication}

// Currencies accepted for quotation and vendor amounts.
var Currencies = []string{pricing.USD, pricing.IQD}

// Quotation is a priced proposal with line items and a vendor cost.
// Dates are stored as yyyy-MM-dd.
type Quotation struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	CreatedAt          time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	ProjectName        string          `gorm:"size:255;not null" json:"project_name"`
	Date               string          `gorm:"size:10;not null" json:"date"`
	ValidityDate       string          `gorm:"size:10" json:"validity_date"`
	BudgetType         string          `gorm:"size:40;not null;index" json:"budget_type"`
	Recipient          string          `gorm:"size:255" json:"recipient"`
	CurrencyType       string          `gorm:"size:3;not null;default:'usd'" json:"currency_type"`
	Discount           float64         `gorm:"not null;default:0" json:"discount"`
	Note               string          `gorm:"type:text" json:"note,omitempty"`
	Status             QuotationStatus `gorm:"size:20;not null;default:'draft';index" json:"status"`
	VendorID           *uint           `gorm:"index" json:"vendor_id,omitempty"`
	Vendor             *Vendor         `gorm:"foreignKey:VendorID" json:"vendor,omitempty"`
	VendorCost         float64         `gorm:"not null;default:0" json:"vendor_cost"`
	VendorCurrencyType string          `gorm:"size:3;not null;default:'usd'" json:"vendor_currency_type"`
	CreatedBy          uint            `gorm:"index;not null" json:"created_by"`
	Creator            *User           `gorm:"foreignKey:CreatedBy" json:"creator,omitempty"`
	// Version increments on every update; callers may send it back to detect lost updates.
	Version uint            `gorm:"not null;default:1" json:"version"`
	Items   []QuotationItem `gorm:"foreignKey:QuotationID;constraint:OnDelete:CASCADE" json:"items"`
}

// OwnerID returns the creator. A nil quotation has no owner.
func (q *Quotation) OwnerID() (uint, bool) {
	if q == nil {
		return 0, false
	}
	return q.CreatedBy, true
}

// Subtotal sums the line totals.
func (q *Quotation) Subtotal() float64 { return pricing.Subtotal(q.Items) }

// Total is the subtotal minus the discount; it may be negative.
func (q *Quotation) Total() float64 { return pricing.CalculateTotalPrice(q.Items, q.Discount) }

// QuotationItem is a line on a quotation.
type QuotationItem struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	QuotationID uint      `gorm:"index;not null" json:"quotation_id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	Quantity    float64   `gorm:"not null;default:0" json:"quantity"`
	UnitPrice   float64   `gorm:"not null;default:0" json:"unit_price"`
	TotalPrice  float64   `gorm:"not null;default:0" json:"total_price"`
	TypeID      *uint     `gorm:"index" json:"type_id,omitempty"`
	Type        *ItemType `gorm:"foreignKey:TypeID" json:"type,omitempty"`
}

// LineTotal implements pricing.Line.
func (i QuotationItem) LineTotal() float64 { return i.TotalPrice }

// BeforeSave keeps TotalPrice equal to Quantity × UnitPrice.
func (i *QuotationItem) BeforeSave(*gorm.DB) error {
	i.TotalPrice = pricing.LineTotal(i.Quantity, i.UnitPrice)
	return nil
}
