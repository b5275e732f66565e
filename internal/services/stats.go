package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/diewo77/go-quotations/internal/cache"
	"github.com/diewo77/go-quotations/internal/models"
	"github.com/diewo77/go-quotations/internal/pricing"
	"github.com/diewo77/go-quotations/internal/realtime"
	"gorm.io/gorm"
)

// Summary is the dashboard aggregate over a filtered set of quotations.
type Summary struct {
	TotalProfitIQD  float64  `json:"total_profit_iqd"`
	TotalQuotations int      `json:"total_quotations"`
	ApprovedCount   int      `json:"approved_count"`
	ConversionRate  float64  `json:"conversion_rate"`
	Warnings        []string `json:"warnings,omitempty"`
}

// ItemFilter narrows item statistics by quotation date and item name.
type ItemFilter struct {
	From   string
	To     string
	Search string
}

// ItemStat aggregates one (item name, type) pair across quotations.
type ItemStat struct {
	Name           string  `json:"name"`
	TypeName       string  `json:"type_name,omitempty"`
	Quantity       float64 `json:"quantity"`
	TotalValueIQD  float64 `json:"total_value_iqd"`
	QuotationCount int     `json:"quotation_count"`
}

// StatsService computes aggregates. Amounts are converted to IQD with the
// rate the viewer recorded for each quotation's date.
type StatsService struct {
	db    *gorm.DB
	cache *cache.Cache
	rates *ExchangeRateService
}

func NewStatsService(db *gorm.DB, c *cache.Cache, rates *ExchangeRateService) *StatsService {
	return &StatsService{db: db, cache: c, rates: rates}
}

// Summary aggregates the quotations matching f.
func (s *StatsService) Summary(ctx context.Context, viewer Viewer, f Filter) (*Summary, error) {
	key := fmt.Sprintf("%ssummary:%d:%t:%s", realtime.KeyStats, viewer.ID, viewer.Admin, f.key())
	return cache.Fetch(ctx, s.cache, key, func(ctx context.Context) (*Summary, error) {
		var rows []models.Quotation
		if err := scope(s.db.WithContext(ctx), viewer, f).Preload("Items").Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("load quotations: %w", err)
		}
		rates, err := s.rates.Table(ctx, viewer.ID)
		if err != nil {
			return nil, err
		}
		return summarize(rows, rates), nil
	})
}

func summarize(rows []models.Quotation, rates RateTable) *Summary {
	sum := &Summary{TotalQuotations: len(rows)}
	missing := map[string]bool{}
	for i := range rows {
		q := &rows[i]
		rate := rates.For(q.Date)
		total := pricing.ConvertToIQD(q.Total(), q.CurrencyType, rate)
		cost := pricing.ConvertToIQD(q.VendorCost, q.VendorCurrencyType, rate)
		if total.Warning != "" || cost.Warning != "" {
			missing[q.Date] = true
		}
		sum.TotalProfitIQD += total.Amount - cost.Amount
		if q.Status.Won() {
			sum.ApprovedCount++
		}
	}
	if sum.TotalQuotations > 0 {
		sum.ConversionRate = float64(sum.ApprovedCount) / float64(sum.TotalQuotations) * 100
	}
	sum.Warnings = rateWarnings(missing)
	return sum
}

func rateWarnings(missing map[string]bool) []string {
	if len(missing) == 0 {
		return nil
	}
	dates := make([]string, 0, len(missing))
	for d := range missing {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = "no exchange rate for " + d + "; amounts left unconverted"
	}
	return out
}

// ItemsResult is the item statistics table plus conversion warnings.
type ItemsResult struct {
	Items    []ItemStat `json:"items"`
	Warnings []string   `json:"warnings,omitempty"`
}

// Items aggregates quotation lines by item name and type, largest total first.
func (s *StatsService) Items(ctx context.Context, viewer Viewer, f ItemFilter) (*ItemsResult, error) {
	key := fmt.Sprintf("%sitems:%d:%t:%s|%s|%s", realtime.KeyStats, viewer.ID, viewer.Admin,
		f.From, f.To, strings.ToLower(strings.TrimSpace(f.Search)))
	return cache.Fetch(ctx, s.cache, key, func(ctx context.Context) (*ItemsResult, error) {
		q := scope(s.db.WithContext(ctx), viewer, Filter{})
		if f.From != "" {
			q = q.Where("quotations.date >= ?", f.From)
		}
		if f.To != "" {
			q = q.Where("quotations.date <= ?", f.To)
		}
		var rows []models.Quotation
		if err := q.Preload("Items.Type").Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("load items: %w", err)
		}
		rates, err := s.rates.Table(ctx, viewer.ID)
		if err != nil {
			return nil, err
		}
		return aggregateItems(rows, rates, f.Search), nil
	})
}

func aggregateItems(rows []models.Quotation, rates RateTable, search string) *ItemsResult {
	search = strings.ToLower(strings.TrimSpace(search))
	type groupKey struct{ name, typ string }
	groups := map[groupKey]*ItemStat{}
	seen := map[groupKey]map[uint]bool{}
	missing := map[string]bool{}

	for _, q := range rows {
		rate := rates.For(q.Date)
		for _, it := range q.Items {
			if search != "" && !strings.Contains(strings.ToLower(it.Name), search) {
				continue
			}
			typ := ""
			if it.Type != nil {
				typ = it.Type.Name
			}
			k := groupKey{name: strings.TrimSpace(it.Name), typ: typ}
			g, ok := groups[k]
			if !ok {
				g = &ItemStat{Name: k.name, TypeName: typ}
				groups[k] = g
				seen[k] = map[uint]bool{}
			}
			conv := pricing.ConvertToIQD(it.TotalPrice, q.CurrencyType, rate)
			if conv.Warning != "" {
				missing[q.Date] = true
			}
			g.Quantity += it.Quantity
			g.TotalValueIQD += conv.Amount
			if !seen[k][q.ID] {
				seen[k][q.ID] = true
				g.QuotationCount++
			}
		}
	}

	out := make([]ItemStat, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalValueIQD != out[j].TotalValueIQD {
			return out[i].TotalValueIQD > out[j].TotalValueIQD
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].TypeName < out[j].TypeName
	})
	return &ItemsResult{Items: out, Warnings: rateWarnings(missing)}
}
