package main

import (
	"log"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/diewo77/go-quotations/auth"
	"github.com/diewo77/go-quotations/gate"
	"github.com/diewo77/go-quotations/httpx"
	"github.com/diewo77/go-quotations/internal/policy"
	"github.com/diewo77/go-quotations/internal/storage"
)

// App is the main application handler that sets up all routes.
type App struct {
	mux       *http.ServeMux
	routerCfg *policy.RouterConfig
	store     storage.Store
}

// NewApp creates a new application with all routes configured.
func NewApp(routerCfg *policy.RouterConfig, store storage.Store) *App {
	app := &App{
		mux:       http.NewServeMux(),
		routerCfg: routerCfg,
		store:     store,
	}
	app.setupRoutes()
	return app
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	handler := withRecover(auth.Middleware(a.mux))
	handler.ServeHTTP(w, r)
}

// setupRoutes configures all application routes.
func (a *App) setupRoutes() {
	cfg := a.routerCfg

	// ─────────────────────────────────────────────────────────────────────────
	// Public routes (no auth required)
	// ─────────────────────────────────────────────────────────────────────────
	ah := cfg.AuthHandler
	a.mux.Handle("GET /auth", auth.RedirectIfAuthenticated(http.HandlerFunc(ah.Page)))
	a.mux.HandleFunc("POST /api/auth/signup", ah.Signup)
	a.mux.HandleFunc("POST /api/auth/login", ah.Login)
	a.mux.HandleFunc("POST /api/auth/logout", ah.Logout)
	a.mux.HandleFunc("GET /health", cfg.HealthHandler.Check)
	a.mux.HandleFunc("GET /healthz", cfg.HealthHandler.Check)
	a.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, auth.HomePath, http.StatusSeeOther)
	})

	// ─────────────────────────────────────────────────────────────────────────
	// Authenticated routes (require logged-in user)
	// ─────────────────────────────────────────────────────────────────────────
	sth := cfg.StatsHandler
	a.mux.Handle("GET /dashboard",
		a.requireAuth(a.requirePermission("stats", gate.ActionView)(http.HandlerFunc(sth.Summary))))

	me := cfg.MeHandler
	a.mux.Handle("GET /api/me", a.requireAuth(http.HandlerFunc(me.Get)))
	a.mux.Handle("PUT /api/me", a.requireAuth(http.HandlerFunc(me.Update)))
	a.mux.Handle("POST /api/me/password", a.requireAuth(http.HandlerFunc(me.ChangePassword)))
	a.mux.Handle("POST /api/me/avatar", a.requireAuth(http.HandlerFunc(me.Avatar)))

	a.mux.Handle("GET /api/events", a.requireAuth(http.HandlerFunc(cfg.EventsHandler.Stream)))

	// ─────────────────────────────────────────────────────────────────────────
	// Protected resource routes (require auth + specific permissions)
	// ─────────────────────────────────────────────────────────────────────────
	qh := cfg.QuotationHandler
	a.mux.Handle("GET /api/quotations",
		a.requireAuth(a.requirePermission("quotation", gate.ActionList)(http.HandlerFunc(qh.List))))
	a.mux.Handle("POST /api/quotations",
		a.requireAuth(a.requirePermission("quotation", gate.ActionCreate)(http.HandlerFunc(qh.Create))))
	a.mux.Handle("POST /api/quotations/preview",
		a.requireAuth(a.requirePermission("quotation", gate.ActionCreate)(http.HandlerFunc(qh.Preview))))
	a.mux.Handle("GET /api/quotations/export.xlsx",
		a.requireAuth(a.requirePermission("quotation", gate.ActionExport)(http.HandlerFunc(qh.Export))))
	a.mux.Handle("GET /api/quotations/{id}",
		a.requireAuth(a.requirePermission("quotation", gate.ActionView)(http.HandlerFunc(qh.Get))))
	a.mux.Handle("GET /api/quotations/{id}/edit",
		a.requireAuth(a.requirePermission("quotation", gate.ActionUpdate)(http.HandlerFunc(qh.Edit))))
	a.mux.Handle("PUT /api/quotations/{id}",
		a.requireAuth(a.requirePermission("quotation", gate.ActionUpdate)(http.HandlerFunc(qh.Update))))
	a.mux.Handle("DELETE /api/quotations/{id}",
		a.requireAuth(a.requirePermission("quotation", gate.ActionDelete)(http.HandlerFunc(qh.Delete))))
	a.mux.Handle("PATCH /api/quotations/{id}/status",
		a.requireAuth(a.requirePermission("quotation", gate.ActionStatus)(http.HandlerFunc(qh.UpdateStatus))))
	a.mux.Handle("GET /api/quotations/{id}/pdf",
		a.requireAuth(a.requirePermission("quotation", gate.ActionView)(http.HandlerFunc(qh.PDF))))

	// Documents
	dh := cfg.DocumentHandler
	a.mux.Handle("GET /api/quotations/{id}/documents",
		a.requireAuth(a.requirePermission("document", gate.ActionList)(http.HandlerFunc(dh.List))))
	a.mux.Handle("POST /api/quotations/{id}/documents",
		a.requireAuth(a.requirePermission("document", gate.ActionCreate)(http.HandlerFunc(dh.Upload))))
	a.mux.Handle("GET /api/documents/{id}",
		a.requireAuth(a.requirePermission("document", gate.ActionView)(http.HandlerFunc(dh.Download))))
	a.mux.Handle("DELETE /api/documents/{id}",
		a.requireAuth(a.requirePermission("document", gate.ActionDelete)(http.HandlerFunc(dh.Delete))))

	// Reference data
	rh := cfg.ReferenceHandler
	a.mux.Handle("GET /api/vendors",
		a.requireAuth(a.requirePermission("vendor", gate.ActionList)(http.HandlerFunc(rh.Vendors))))
	a.mux.Handle("GET /api/item-types",
		a.requireAuth(a.requirePermission("item_type", gate.ActionList)(http.HandlerFunc(rh.ItemTypes))))

	// Exchange rates
	eh := cfg.ExchangeRateHandler
	a.mux.Handle("GET /api/exchange-rates",
		a.requireAuth(a.requirePermission("exchange_rate", gate.ActionList)(http.HandlerFunc(eh.List))))
	a.mux.Handle("GET /api/exchange-rates/latest",
		a.requireAuth(a.requirePermission("exchange_rate", gate.ActionList)(http.HandlerFunc(eh.Latest))))
	a.mux.Handle("PUT /api/exchange-rates",
		a.requireAuth(a.requirePermission("exchange_rate", gate.ActionUpdate)(http.HandlerFunc(eh.Set))))

	// Statistics
	a.mux.Handle("GET /api/stats",
		a.requireAuth(a.requirePermission("stats", gate.ActionView)(http.HandlerFunc(sth.Summary))))
	a.mux.Handle("GET /api/stats/items",
		a.requireAuth(a.requirePermission("stats", gate.ActionView)(http.HandlerFunc(sth.Items))))
	a.mux.Handle("GET /api/stats/items/export.xlsx",
		a.requireAuth(a.requirePermission("stats", gate.ActionExport)(http.HandlerFunc(sth.ItemsExport))))

	// Company settings
	sh := cfg.SettingsHandler
	a.mux.Handle("GET /api/settings",
		a.requireAuth(a.requirePermission("settings", gate.ActionView)(http.HandlerFunc(sh.Get))))
	a.mux.Handle("PUT /api/settings",
		a.requireAuth(a.requirePermission("settings", gate.ActionUpdate)(http.HandlerFunc(sh.Update))))
	a.mux.Handle("POST /api/settings/logo",
		a.requireAuth(a.requirePermission("settings", gate.ActionUpdate)(http.HandlerFunc(sh.Logo))))

	// ─────────────────────────────────────────────────────────────────────────
	// Admin routes (require the *:* permission)
	// ─────────────────────────────────────────────────────────────────────────
	uh := cfg.AdminUserHandler
	a.mux.Handle("GET /api/users", a.requireAdmin(http.HandlerFunc(uh.List)))
	a.mux.Handle("PATCH /api/users/{id}", a.requireAdmin(http.HandlerFunc(uh.Update)))

	roh := cfg.AdminRoleHandler
	a.mux.Handle("GET /api/roles", a.requireAdmin(http.HandlerFunc(roh.List)))
	a.mux.Handle("GET /api/permissions", a.requireAdmin(http.HandlerFunc(roh.ListPermissions)))
	a.mux.Handle("PUT /api/roles/{id}/permissions", a.requireAdmin(http.HandlerFunc(roh.SavePermissions)))

	// ─────────────────────────────────────────────────────────────────────────
	// Stored files (local object store only)
	// ─────────────────────────────────────────────────────────────────────────
	if ls, ok := a.store.(*storage.LocalStore); ok && ls.PublicURL != "" {
		prefix := strings.TrimSuffix(ls.PublicURL, "/") + "/"
		a.mux.Handle("GET "+prefix,
			a.requireAuth(http.StripPrefix(prefix, http.FileServer(http.Dir(ls.Dir)))))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Middleware
// ─────────────────────────────────────────────────────────────────────────────

// requireAuth wraps a handler to require authentication.
func (a *App) requireAuth(next http.Handler) http.Handler {
	return auth.RequireAuth(next)
}

// requireAdmin wraps a handler to require admin permissions.
func (a *App) requireAdmin(next http.Handler) http.Handler {
	return auth.RequireAuth(a.routerCfg.AuthGate.RequireAdmin()(next))
}

// requirePermission wraps a handler to require specific resource permission.
func (a *App) requirePermission(resourceType string, action gate.Action) func(http.Handler) http.Handler {
	return a.routerCfg.AuthGate.RequirePermission(resourceType, action)
}

// withRecover turns a handler panic into a 500.
func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Printf("panic: %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
				httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
