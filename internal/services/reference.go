package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/diewo77/go-quotations/internal/cache"
	"github.com/diewo77/go-quotations/internal/models"
	"github.com/diewo77/go-quotations/internal/realtime"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VendorService resolves vendor names to rows.
type VendorService struct {
	db    *gorm.DB
	cache *cache.Cache
}

func NewVendorService(db *gorm.DB, c *cache.Cache) *VendorService {
	return &VendorService{db: db, cache: c}
}

// Resolve returns the vendor named name, creating it if needed. The insert
// relies on the unique name index, so concurrent callers converge on one row.
func (s *VendorService) Resolve(ctx context.Context, name string, userID uint) (*models.Vendor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	db := s.db.WithContext(ctx)
	v := models.Vendor{Name: name, CreatedBy: userID}
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&v)
	if res.Error != nil {
		return nil, fmt.Errorf("upsert vendor: %w", res.Error)
	}
	var out models.Vendor
	if err := db.Where("name = ?", name).First(&out).Error; err != nil {
		return nil, fmt.Errorf("load vendor: %w", err)
	}
	if res.RowsAffected > 0 {
		s.cache.InvalidatePrefix(realtime.KeyVendors)
	}
	return &out, nil
}

// List returns vendors whose name contains search, alphabetically.
func (s *VendorService) List(ctx context.Context, search string) ([]models.Vendor, error) {
	search = strings.ToLower(strings.TrimSpace(search))
	key := realtime.KeyVendors + "list:" + search
	return cache.Fetch(ctx, s.cache, key, func(ctx context.Context) ([]models.Vendor, error) {
		var out []models.Vendor
		q := s.db.WithContext(ctx).Order("name")
		if search != "" {
			q = q.Where("LOWER(name) LIKE ? ESCAPE '\\'", containsPattern(search))
		}
		if err := q.Find(&out).Error; err != nil {
			return nil, err
		}
		return out, nil
	})
}

// ItemTypeService resolves the free-form item type typed on an item line.
type ItemTypeService struct {
	db    *gorm.DB
	cache *cache.Cache
}

func NewItemTypeService(db *gorm.DB, c *cache.Cache) *ItemTypeService {
	return &ItemTypeService{db: db, cache: c}
}

// Resolve picks the item type for a line. A typed name wins over an id:
// it matches an existing type case-insensitively or creates one. Without a
// name the id is kept only if it still exists.
func (s *ItemTypeService) Resolve(ctx context.Context, id *uint, name string, userID uint) (*uint, error) {
	db := s.db.WithContext(ctx)
	name = strings.TrimSpace(name)
	if name != "" {
		key := models.ItemTypeKey(name)
		var t models.ItemType
		err := db.Where("name_key = ?", key).First(&t).Error
		if err == nil {
			return &t.ID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		t = models.ItemType{Name: name, CreatedBy: userID}
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name_key"}},
			DoNothing: true,
		}).Create(&t).Error; err != nil {
			return nil, fmt.Errorf("upsert item type: %w", err)
		}
		var out models.ItemType
		if err := db.Where("name_key = ?", key).First(&out).Error; err != nil {
			return nil, fmt.Errorf("load item type: %w", err)
		}
		s.cache.InvalidatePrefix(realtime.KeyItemTypes)
		return &out.ID, nil
	}
	if id == nil || *id == 0 {
		return nil, nil
	}
	var count int64
	if err := db.Model(&models.ItemType{}).Where("id = ?", *id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	out := *id
	return &out, nil
}

// List returns every item type, alphabetically.
func (s *ItemTypeService) List(ctx context.Context) ([]models.ItemType, error) {
	return cache.Fetch(ctx, s.cache, realtime.KeyItemTypes+"list", func(ctx context.Context) ([]models.ItemType, error) {
		var out []models.ItemType
		if err := s.db.WithContext(ctx).Order("name").Find(&out).Error; err != nil {
			return nil, err
		}
		return out, nil
	})
}
