package policy

import (
	"context"
	"time"

	"github.com/diewo77/go-quotations/internal/cache"
	"github.com/diewo77/go-quotations/internal/config"
	"github.com/diewo77/go-quotations/internal/db"
	"github.com/diewo77/go-quotations/internal/handlers"
	"github.com/diewo77/go-quotations/internal/realtime"
	"github.com/diewo77/go-quotations/internal/services"
	"github.com/diewo77/go-quotations/internal/storage"
	"gorm.io/gorm"
)

// roleCacheTTL bounds how long a resolved role is reused.
const roleCacheTTL = 5 * time.Minute

// RouterConfig holds configured handlers and middleware for the application.
type RouterConfig struct {
	// AuthGate provides authorization checks and middleware
	AuthGate *AuthGate

	// Services used outside of request handling (jobs, auth verifier)
	Users     *services.UserService
	Documents *services.DocumentService

	// Handlers
	AuthHandler         *handlers.AuthHandler
	MeHandler           *handlers.MeHandler
	QuotationHandler    *handlers.QuotationHandler
	DocumentHandler     *handlers.DocumentHandler
	ReferenceHandler    *handlers.ReferenceHandler
	ExchangeRateHandler *handlers.ExchangeRateHandler
	StatsHandler        *handlers.StatsHandler
	SettingsHandler     *handlers.SettingsHandler
	AdminUserHandler    *handlers.AdminUserHandler
	AdminRoleHandler    *handlers.AdminRoleHandler
	EventsHandler       *handlers.EventsHandler
	HealthHandler       *handlers.HealthHandler
}

// NewRouterConfig wires the authorization gate, services and handlers.
//
// Example usage:
//
//	cfg := policy.NewRouterConfig(conn, c, store, bus, appCfg.Realtime)
//	mux.Handle("GET /api/quotations", cfg.AuthGate.RequirePermission("quotation", gate.ActionList)(http.HandlerFunc(cfg.QuotationHandler.List)))
func NewRouterConfig(conn *gorm.DB, c *cache.Cache, store storage.Store, bus *realtime.Bus, rt config.RealtimeConfig) *RouterConfig {
	authGate := NewAuthGate(conn, roleCacheTTL)

	// Record-level checks: owners only, admins see everything.
	// Documents are checked against their quotation.
	ownership := NewAdminOverride(CreatorPolicy{}, authGate.isAdmin)
	authGate.RegisterPolicy("quotation", ownership)
	authGate.RegisterPolicy("document", ownership)
	authGate.RegisterPolicy("exchange_rate", ownership)
	authGate.RegisterPolicy("settings", ownership)

	vendors := services.NewVendorService(conn, c)
	itemTypes := services.NewItemTypeService(conn, c)
	rates := services.NewExchangeRateService(conn, c)
	quotations := services.NewQuotationService(conn, c, store, vendors, itemTypes, rates)
	stats := services.NewStatsService(conn, c, rates)
	documents := services.NewDocumentService(conn, c, store)
	settings := services.NewSettingsService(conn, c, store)
	users := services.NewUserService(conn, c, store)
	roles := services.NewRoleService(conn)

	return &RouterConfig{
		AuthGate:            authGate,
		Users:               users,
		Documents:           documents,
		AuthHandler:         handlers.NewAuthHandler(users),
		MeHandler:           handlers.NewMeHandler(users, authGate),
		QuotationHandler:    handlers.NewQuotationHandler(quotations, settings, authGate),
		DocumentHandler:     handlers.NewDocumentHandler(documents, quotations, authGate),
		ReferenceHandler:    handlers.NewReferenceHandler(vendors, itemTypes),
		ExchangeRateHandler: handlers.NewExchangeRateHandler(rates),
		StatsHandler:        handlers.NewStatsHandler(stats, authGate),
		SettingsHandler:     handlers.NewSettingsHandler(settings),
		AdminUserHandler:    handlers.NewAdminUserHandler(users, authGate),
		AdminRoleHandler:    handlers.NewAdminRoleHandler(roles, authGate),
		EventsHandler:       handlers.NewEventsHandler(bus, rt.Debounce, rt.MaxWait),
		HealthHandler: handlers.NewHealthHandler(func(ctx context.Context) error {
			return db.Ping(ctx, conn)
		}),
	}
}
