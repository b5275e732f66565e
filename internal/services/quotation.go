package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/diewo77/go-quotations/internal/cache"
	"github.com/diewo77/go-quotations/internal/forms"
	"github.com/diewo77/go-quotations/internal/models"
	"github.com/diewo77/go-quotations/internal/pricing"
	"github.com/diewo77/go-quotations/internal/realtime"
	"github.com/diewo77/go-quotations/internal/storage"
	"github.com/diewo77/go-quotations/validation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PageSize is the fixed number of quotations per list page.
const PageSize = 10

// Filter narrows quotation lists, counts and statistics. From and To bound
// the creation date, inclusive. CreatedBy is honoured for admins only.
type Filter struct {
	Search     string
	BudgetType string
	Status     string
	From       string
	To         string
	CreatedBy  uint
}

func (f Filter) key() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%d",
		strings.ToLower(strings.TrimSpace(f.Search)), f.BudgetType, f.Status, f.From, f.To, f.CreatedBy)
}

// QuotationRow is a quotation with its derived amounts.
type QuotationRow struct {
	models.Quotation
	Subtotal      float64 `json:"subtotal"`
	Total         float64 `json:"total"`
	VendorCostIQD float64 `json:"vendor_cost_iqd"`
	Warning       string  `json:"warning,omitempty"`
}

// Page is one page of a quotation list.
type Page struct {
	Items      []QuotationRow `json:"items"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalPages int            `json:"total_pages"`
	Rate       float64        `json:"rate,omitempty"`
	Warnings   []string       `json:"warnings,omitempty"`
}

// QuotationService runs the submit workflow and quotation queries.
type QuotationService struct {
	db        *gorm.DB
	cache     *cache.Cache
	store     storage.Store
	vendors   *VendorService
	itemTypes *ItemTypeService
	rates     *ExchangeRateService
}

func NewQuotationService(db *gorm.DB, c *cache.Cache, store storage.Store, vendors *VendorService, itemTypes *ItemTypeService, rates *ExchangeRateService) *QuotationService {
	return &QuotationService{db: db, cache: c, store: store, vendors: vendors, itemTypes: itemTypes, rates: rates}
}

func (s *QuotationService) invalidate() {
	s.cache.InvalidatePrefix(realtime.KeyQuotations, realtime.KeyStats)
}

// Submit saves a create (form.ID == 0) or edit. Creates always start as
// draft. Edits reconcile the item set by id inside one transaction, so the
// stored items equal the submitted list. A non-zero form.Version must match
// the stored version.
func (s *QuotationService) Submit(ctx context.Context, userID uint, form *forms.QuotationForm) (*models.Quotation, error) {
	if err := invalid(form.Validate()); err != nil {
		return nil, err
	}

	// Vendor and item type upserts are idempotent and stay committed if the
	// quotation write fails.
	vendor, err := s.vendors.Resolve(ctx, form.VendorName, userID)
	if err != nil {
		return nil, err
	}
	var vendorID *uint
	if vendor != nil {
		vendorID = &vendor.ID
	}
	formItems := form.Items.Items()
	items := make([]models.QuotationItem, len(formItems))
	for i, it := range formItems {
		typeID, err := s.itemTypes.Resolve(ctx, it.TypeID, it.TypeName, userID)
		if err != nil {
			return nil, err
		}
		items[i] = models.QuotationItem{
			ID:          it.ID,
			Name:        it.Name,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TotalPrice:  it.TotalPrice,
			TypeID:      typeID,
		}
	}

	var id uint
	if form.ID == 0 {
		id, err = s.create(ctx, userID, form, vendorID, items)
	} else {
		id, err = s.update(ctx, form, vendorID, items)
	}
	if err != nil {
		return nil, err
	}
	s.invalidate()
	return s.Get(ctx, id)
}

func applyForm(q *models.Quotation, form *forms.QuotationForm, vendorID *uint) {
	q.ProjectName = form.ProjectName
	q.Date = form.Date
	q.ValidityDate = form.ValidityDate
	q.BudgetType = form.BudgetType
	q.Recipient = form.Recipient
	q.CurrencyType = form.CurrencyType
	q.Discount = form.Discount
	q.Note = form.Note
	q.VendorID = vendorID
	q.VendorCost = form.VendorCost
	q.VendorCurrencyType = form.VendorCurrencyType
}

func (s *QuotationService) create(ctx context.Context, userID uint, form *forms.QuotationForm, vendorID *uint, items []models.QuotationItem) (uint, error) {
	q := models.Quotation{Status: models.StatusDraft, CreatedBy: userID, Version: 1}
	applyForm(&q, form, vendorID)
	for i := range items {
		items[i].ID = 0
	}
	q.Items = items
	if err := s.db.WithContext(ctx).Create(&q).Error; err != nil {
		return 0, fmt.Errorf("create quotation: %w", err)
	}
	return q.ID, nil
}

func (s *QuotationService) update(ctx context.Context, form *forms.QuotationForm, vendorID *uint, items []models.QuotationItem) (uint, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var q models.Quotation
		if err := tx.First(&q, form.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if form.Version != 0 && form.Version != q.Version {
			return ErrVersionConflict
		}
		if err := updateHeader(tx, q.ID, form.Version, form, vendorID); err != nil {
			return err
		}
		return reconcileItems(tx, q.ID, items)
	})
	if err != nil {
		return 0, err
	}
	return form.ID, nil
}

// updateHeader writes the form's header fields and bumps the version. A
// non-zero expected version is part of the UPDATE predicate, so an edit
// committed after our read makes it match nothing.
func updateHeader(tx *gorm.DB, id, expected uint, form *forms.QuotationForm, vendorID *uint) error {
	var q models.Quotation
	applyForm(&q, form, vendorID)
	upd := tx.Model(&models.Quotation{ID: id})
	if expected != 0 {
		upd = upd.Where("version = ?", expected)
	}
	res := upd.Updates(map[string]any{
		"project_name":         q.ProjectName,
		"date":                 q.Date,
		"validity_date":        q.ValidityDate,
		"budget_type":          q.BudgetType,
		"recipient":            q.Recipient,
		"currency_type":        q.CurrencyType,
		"discount":             q.Discount,
		"note":                 q.Note,
		"vendor_id":            q.VendorID,
		"vendor_cost":          q.VendorCost,
		"vendor_currency_type": q.VendorCurrencyType,
		"version":              gorm.Expr("version + 1"),
	})
	if res.Error != nil {
		return fmt.Errorf("update quotation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// reconcileItems makes the stored items of quotationID equal items: rows
// with a known id are updated, the rest inserted, and missing ones deleted.
func reconcileItems(tx *gorm.DB, quotationID uint, items []models.QuotationItem) error {
	var existing []uint
	if err := tx.Model(&models.QuotationItem{}).Where("quotation_id = ?", quotationID).Pluck("id", &existing).Error; err != nil {
		return err
	}
	known := make(map[uint]bool, len(existing))
	for _, id := range existing {
		known[id] = true
	}

	keep := make([]uint, 0, len(items))
	for i := range items {
		it := items[i]
		it.QuotationID = quotationID
		if it.ID != 0 && known[it.ID] {
			err := tx.Model(&it).Where("quotation_id = ?", quotationID).
				Select("name", "description", "quantity", "unit_price", "total_price", "type_id").
				Updates(&it).Error
			if err != nil {
				return fmt.Errorf("update item %d: %w", it.ID, err)
			}
		} else {
			it.ID = 0
			if err := tx.Omit(clause.Associations).Create(&it).Error; err != nil {
				return fmt.Errorf("insert item: %w", err)
			}
		}
		keep = append(keep, it.ID)
	}

	del := tx.Where("quotation_id = ?", quotationID)
	if len(keep) > 0 {
		del = del.Where("id NOT IN ?", keep)
	}
	return del.Delete(&models.QuotationItem{}).Error
}

// Get loads a quotation with its items, vendor and creator.
func (s *QuotationService) Get(ctx context.Context, id uint) (*models.Quotation, error) {
	key := fmt.Sprintf("%sdetail:%d", realtime.KeyQuotations, id)
	return cache.Fetch(ctx, s.cache, key, func(ctx context.Context) (*models.Quotation, error) {
		var q models.Quotation
		err := s.db.WithContext(ctx).
			Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
			Preload("Items.Type").
			Preload("Vendor").
			Preload("Creator").
			First(&q, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return &q, nil
	})
}

// Detail returns a quotation with vendor cost converted at the rate the
// viewer recorded for the quotation's date.
func (s *QuotationService) Detail(ctx context.Context, viewer Viewer, id uint) (*QuotationRow, error) {
	q, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var rate float64
	r, err := s.rates.ForDate(ctx, viewer.ID, q.Date)
	switch {
	case err == nil:
		rate = r.Rate
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	row := newRow(*q, rate)
	return &row, nil
}

func newRow(q models.Quotation, rate float64) QuotationRow {
	conv := pricing.ConvertToIQD(q.VendorCost, q.VendorCurrencyType, rate)
	return QuotationRow{
		Quotation:     q,
		Subtotal:      q.Subtotal(),
		Total:         q.Total(),
		VendorCostIQD: conv.Amount,
		Warning:       conv.Warning,
	}
}

// scope applies the filter and the viewer's visibility to a quotations query.
func scope(db *gorm.DB, viewer Viewer, f Filter) *gorm.DB {
	q := db.Model(&models.Quotation{})
	if !viewer.Admin {
		q = q.Where("quotations.created_by = ?", viewer.ID)
	} else if f.CreatedBy != 0 {
		q = q.Where("quotations.created_by = ?", f.CreatedBy)
	}
	if search := strings.ToLower(strings.TrimSpace(f.Search)); search != "" {
		q = q.Where("LOWER(quotations.project_name) LIKE ? ESCAPE '\\'", containsPattern(search))
	}
	if f.BudgetType != "" {
		q = q.Where("quotations.budget_type = ?", f.BudgetType)
	}
	if f.Status != "" {
		q = q.Where("quotations.status = ?", f.Status)
	}
	if t, err := time.ParseInLocation(validation.DateLayout, f.From, time.Local); err == nil {
		q = q.Where("quotations.created_at >= ?", t)
	}
	if t, err := time.ParseInLocation(validation.DateLayout, f.To, time.Local); err == nil {
		q = q.Where("quotations.created_at < ?", t.AddDate(0, 0, 1))
	}
	return q
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern is a LIKE pattern matching s anywhere. Wildcards in s
// match literally under ESCAPE '\'.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// Count returns how many quotations match f.
func (s *QuotationService) Count(ctx context.Context, viewer Viewer, f Filter) (int64, error) {
	key := fmt.Sprintf("%scount:%d:%t:%s", realtime.KeyQuotations, viewer.ID, viewer.Admin, f.key())
	return cache.Fetch(ctx, s.cache, key, func(ctx context.Context) (int64, error) {
		var n int64
		err := scope(s.db.WithContext(ctx), viewer, f).Count(&n).Error
		return n, err
	})
}

// List returns one page of matching quotations, newest first. Vendor cost
// is converted with the viewer's latest rate.
func (s *QuotationService) List(ctx context.Context, viewer Viewer, f Filter, page int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	key := fmt.Sprintf("%slist:%d:%t:%s:%d", realtime.KeyQuotations, viewer.ID, viewer.Admin, f.key(), page)
	return cache.Fetch(ctx, s.cache, key, func(ctx context.Context) (*Page, error) {
		total, err := s.Count(ctx, viewer, f)
		if err != nil {
			return nil, err
		}
		var rows []models.Quotation
		err = scope(s.db.WithContext(ctx), viewer, f).
			Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
			Preload("Items.Type").
			Preload("Vendor").
			Preload("Creator").
			Order("quotations.created_at DESC, quotations.id DESC").
			Limit(PageSize).Offset((page - 1) * PageSize).
			Find(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("list quotations: %w", err)
		}

		p := &Page{
			Items:      make([]QuotationRow, 0, len(rows)),
			Total:      total,
			Page:       page,
			PageSize:   PageSize,
			TotalPages: int((total + PageSize - 1) / PageSize),
		}
		latest, err := s.rates.Latest(ctx, viewer.ID)
		switch {
		case err == nil:
			p.Rate = latest.Rate
		case errors.Is(err, ErrNotFound):
			p.Warnings = append(p.Warnings, "no exchange rate recorded; vendor costs are shown unconverted")
		default:
			return nil, err
		}
		for _, q := range rows {
			p.Items = append(p.Items, newRow(q, p.Rate))
		}
		return p, nil
	})
}

// Export returns every matching quotation without paging, newest first.
func (s *QuotationService) Export(ctx context.Context, viewer Viewer, f Filter) ([]QuotationRow, error) {
	var rows []models.Quotation
	err := scope(s.db.WithContext(ctx), viewer, f).
		Preload("Items").
		Preload("Vendor").
		Preload("Creator").
		Order("quotations.created_at DESC, quotations.id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	var rate float64
	if latest, err := s.rates.Latest(ctx, viewer.ID); err == nil {
		rate = latest.Rate
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	out := make([]QuotationRow, 0, len(rows))
	for _, q := range rows {
		out = append(out, newRow(q, rate))
	}
	return out, nil
}

// UpdateStatus moves a quotation to status.
func (s *QuotationService) UpdateStatus(ctx context.Context, id uint, status models.QuotationStatus) (*models.Quotation, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	res := s.db.WithContext(ctx).Model(&models.Quotation{}).Where("id = ?", id).Updates(map[string]any{
		"status":  status,
		"version": gorm.Expr("version + 1"),
	})
	if res.Error != nil {
		return nil, fmt.Errorf("update status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	s.invalidate()
	return s.Get(ctx, id)
}

// Delete removes a quotation with its items and document rows, then
// removes the stored document objects. Object removal failures are logged.
func (s *QuotationService) Delete(ctx context.Context, id uint) error {
	var paths []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.VendorDocument{}).Where("quotation_id = ?", id).Pluck("file_path", &paths).Error; err != nil {
			return err
		}
		if err := tx.Where("quotation_id = ?", id).Delete(&models.VendorDocument{}).Error; err != nil {
			return err
		}
		if err := tx.Where("quotation_id = ?", id).Delete(&models.QuotationItem{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Quotation{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.cache.InvalidatePrefix(realtime.KeyQuotations, realtime.KeyStats, realtime.KeyDocuments)
	if s.store != nil {
		for _, p := range paths {
			if err := s.store.Delete(ctx, p); err != nil {
				log.Printf("delete document object %s: %v", p, err)
			}
		}
	}
	return nil
}
