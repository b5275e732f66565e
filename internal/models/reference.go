package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Vendor is a third-party supplier. Names are unique.
type Vendor struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Name      string    `gorm:"uniqueIndex;size:255;not null" json:"name"`
	CreatedBy uint      `gorm:"index" json:"created_by"`
}

// ItemType is a free-form category for quotation items. Names are unique
// ignoring case: NameKey holds the folded name and carries the index.
type ItemType struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	NameKey   string    `gorm:"uniqueIndex;size:255" json:"-"`
	CreatedBy uint      `gorm:"index" json:"created_by"`
}

// ItemTypeKey folds an item type name for matching.
func ItemTypeKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (t *ItemType) BeforeSave(*gorm.DB) error {
	t.NameKey = ItemTypeKey(t.Name)
	return nil
}

// ExchangeRate is the USD→IQD factor a user recorded for one day.
// There is at most one row per (date, created_by).
type ExchangeRate struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Date      string    `gorm:"size:10;not null;uniqueIndex:idx_rate_date_creator" json:"date"`
	Rate      float64   `gorm:"not null" json:"rate"`
	CreatedBy uint      `gorm:"not null;uniqueIndex:idx_rate_date_creator" json:"created_by"`
}

func (e *ExchangeRate) OwnerID() (uint, bool) {
	if e == nil {
		return 0, false
	}
	return e.CreatedBy, true
}

// CompanySettings is the per-user letterhead used on exported quotations.
type CompanySettings struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	LogoURL   string    `gorm:"size:500" json:"logo_url,omitempty"`
	LogoPath  string    `gorm:"size:500" json:"-"`
	Address   string    `gorm:"size:1000" json:"address,omitempty"`
}

func (c *CompanySettings) OwnerID() (uint, bool) {
	if c == nil {
		return 0, false
	}
	return c.UserID, true
}

// Document types inferred from the uploaded file name.
const (
	DocumentInvoice   = "invoice"
	DocumentQuotation = "quotation"
)

// VendorDocument is the metadata of a file attached to a quotation.
// The bytes live in the object store under FilePath.
type VendorDocument struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	QuotationID uint       `gorm:"index;not null" json:"quotation_id"`
	Quotation   *Quotation `gorm:"foreignKey:QuotationID;constraint:OnDelete:CASCADE" json:"-"`
	FileName    string     `gorm:"size:255;not null" json:"file_name"`
	FilePath    string     `gorm:"size:500;not null;uniqueIndex" json:"file_path"`
	FileType    string     `gorm:"size:20;not null" json:"file_type"`
	FileSize    int64      `json:"file_size"`
	ContentType string     `gorm:"size:100" json:"content_type"`
	URL         string     `gorm:"-" json:"url,omitempty"`
	UploadedBy  uint       `gorm:"index" json:"uploaded_by"`
}

// OwnerID is the owner of the document's quotation, unknown when the
// quotation was not loaded.
func (d *VendorDocument) OwnerID() (uint, bool) {
	if d == nil {
		return 0, false
	}
	return d.Quotation.OwnerID()
}
