package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/diewo77/go-quotations/internal/cache"
	"github.com/diewo77/go-quotations/internal/models"
	"github.com/diewo77/go-quotations/internal/realtime"
	"github.com/diewo77/go-quotations/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingsService manages the per-user company letterhead.
type SettingsService struct {
	db    *gorm.DB
	cache *cache.Cache
	store storage.Store
}

func NewSettingsService(db *gorm.DB, c *cache.Cache, store storage.Store) *SettingsService {
	return &SettingsService{db: db, cache: c, store: store}
}

// Get returns userID's settings. Users without a row get empty settings.
func (s *SettingsService) Get(ctx context.Context, userID uint) (*models.CompanySettings, error) {
	key := fmt.Sprintf("%s%d", realtime.KeySettings, userID)
	return cache.Fetch(ctx, s.cache, key, func(ctx context.Context) (*models.CompanySettings, error) {
		var cs models.CompanySettings
		err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&cs).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.CompanySettings{UserID: userID}, nil
		}
		if err != nil {
			return nil, err
		}
		return &cs, nil
	})
}

func (s *SettingsService) upsert(ctx context.Context, cs *models.CompanySettings, columns ...string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(append(columns, "updated_at")),
	}).Create(cs).Error
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	s.cache.InvalidatePrefix(fmt.Sprintf("%s%d", realtime.KeySettings, cs.UserID))
	return nil
}

// UpdateAddress stores the footer address.
func (s *SettingsService) UpdateAddress(ctx context.Context, userID uint, address string) (*models.CompanySettings, error) {
	if err := s.upsert(ctx, &models.CompanySettings{UserID: userID, Address: address}, "address"); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

// SetLogo stores a new logo and replaces the previous one.
func (s *SettingsService) SetLogo(ctx context.Context, userID uint, f FileUpload) (*models.CompanySettings, error) {
	prev, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	key := storage.ObjectKey(storage.NamespaceLogos, userID, f.Name)
	if err := s.store.Put(ctx, key, f.Body, f.ContentType); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	cs := &models.CompanySettings{UserID: userID, LogoURL: s.store.URL(key), LogoPath: key}
	if err := s.upsert(ctx, cs, "logo_url", "logo_path"); err != nil {
		return nil, err
	}
	if prev.LogoPath != "" && prev.LogoPath != key {
		if err := s.store.Delete(ctx, prev.LogoPath); err != nil {
			log.Printf("delete old logo %s: %v", prev.LogoPath, err)
		}
	}
	return s.Get(ctx, userID)
}

// Logo returns the stored logo bytes, or nil when no logo is set.
func (s *SettingsService) Logo(ctx context.Context, cs *models.CompanySettings) ([]byte, error) {
	if cs == nil || cs.LogoPath == "" {
		return nil, nil
	}
	rc, err := s.store.Open(ctx, cs.LogoPath)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
