package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/diewo77/go-quotations/internal/cache"
	"github.com/diewo77/go-quotations/internal/models"
	"github.com/diewo77/go-quotations/internal/realtime"
	"github.com/diewo77/go-quotations/validation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ExchangeRateService stores the daily USD→IQD rates each user records.
// Lookups are keyed on (date, created_by).
type ExchangeRateService struct {
	db    *gorm.DB
	cache *cache.Cache
}

func NewExchangeRateService(db *gorm.DB, c *cache.Cache) *ExchangeRateService {
	return &ExchangeRateService{db: db, cache: c}
}

// Set records the rate for date, replacing an existing one.
func (s *ExchangeRateService) Set(ctx context.Context, userID uint, date string, rate float64) (*models.ExchangeRate, error) {
	v := make(validation.Violations)
	validation.Required("date", date, v)
	validation.Date("date", date, v)
	validation.PositiveFloat("rate", rate, v)
	if err := invalid(v); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	row := models.ExchangeRate{Date: date, Rate: rate, CreatedBy: userID}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}, {Name: "created_by"}},
		DoUpdates: clause.AssignmentColumns([]string{"rate", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("upsert exchange rate: %w", err)
	}
	s.cache.InvalidatePrefix(realtime.Invalidations[realtime.TableExchangeRates]...)

	var out models.ExchangeRate
	if err := db.Where("date = ? AND created_by = ?", date, userID).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// ForDate returns the rate userID recorded for date, or ErrNotFound.
func (s *ExchangeRateService) ForDate(ctx context.Context, userID uint, date string) (*models.ExchangeRate, error) {
	var out models.ExchangeRate
	err := s.db.WithContext(ctx).Where("date = ? AND created_by = ?", date, userID).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Latest returns the most recent rate userID recorded, or ErrNotFound.
func (s *ExchangeRateService) Latest(ctx context.Context, userID uint) (*models.ExchangeRate, error) {
	key := fmt.Sprintf("%slatest:%d", realtime.KeyExchangeRates, userID)
	return cache.Fetch(ctx, s.cache, key, func(ctx context.Context) (*models.ExchangeRate, error) {
		var out models.ExchangeRate
		err := s.db.WithContext(ctx).Where("created_by = ?", userID).Order("date DESC").First(&out).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return &out, nil
	})
}

// List returns userID's rates, newest first.
func (s *ExchangeRateService) List(ctx context.Context, userID uint) ([]models.ExchangeRate, error) {
	key := fmt.Sprintf("%slist:%d", realtime.KeyExchangeRates, userID)
	return cache.Fetch(ctx, s.cache, key, func(ctx context.Context) ([]models.ExchangeRate, error) {
		var out []models.ExchangeRate
		if err := s.db.WithContext(ctx).Where("created_by = ?", userID).Order("date DESC").Find(&out).Error; err != nil {
			return nil, err
		}
		return out, nil
	})
}

// RateTable maps a date to the rate recorded for it.
type RateTable map[string]float64

// For returns the rate for date, or 0 when none was recorded.
func (t RateTable) For(date string) float64 { return t[date] }

// Table loads all of userID's rates for by-date lookups.
func (s *ExchangeRateService) Table(ctx context.Context, userID uint) (RateTable, error) {
	rows, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	t := make(RateTable, len(rows))
	for _, r := range rows {
		t[r.Date] = r.Rate
	}
	return t, nil
}
