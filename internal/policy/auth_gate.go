package policy

import (
	"context"
	"net/http"
	"time"

	"github.com/diewo77/go-quotations/auth"
	"github.com/diewo77/go-quotations/gate"
	"github.com/diewo77/go-quotations/httpx"
	"gorm.io/gorm"
)

// AuthGate holds the configured HybridGate with caching.
// Every gated route and handler consults it.
type AuthGate struct {
	Gate          *gate.HybridGate[uint]
	CacheResolver *gate.CachedResolver[uint]
}

// NewAuthGate creates a fully configured authorization gate.
// - db: GORM database connection for role lookups
// - cacheTTL: how long to cache resolved roles (e.g., 5*time.Minute)
func NewAuthGate(db *gorm.DB, cacheTTL time.Duration) *AuthGate {
	// Wrap the DB resolver with caching to avoid a query per request
	cachedResolver := gate.NewCachedResolver[uint](NewDBRoleResolver(db), cacheTTL)

	return &AuthGate{
		Gate:          gate.NewHybridGate[uint](cachedResolver),
		CacheResolver: cachedResolver,
	}
}

// RegisterPolicy adds a record-level policy for a resource type.
func (ag *AuthGate) RegisterPolicy(resourceType string, p gate.Policy[uint]) {
	ag.Gate.Register(resourceType, p)
}

// Authorize checks if the current user can perform an action on a resource.
// Returns nil if authorized, gate.ErrUnauthorized or gate.ErrForbidden otherwise.
func (ag *AuthGate) Authorize(ctx context.Context, action gate.Action, resourceType string, resource any) error {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return gate.ErrUnauthorized
	}
	return ag.Gate.Authorize(ctx, userID, action, resourceType, resource)
}

// Can is a convenience method that returns bool instead of error.
func (ag *AuthGate) Can(ctx context.Context, action gate.Action, resourceType string, resource any) bool {
	return ag.Authorize(ctx, action, resourceType, resource) == nil
}

// CanProfile checks only role permissions (no ownership check).
func (ag *AuthGate) CanProfile(ctx context.Context, action gate.Action, resourceType string) bool {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return false
	}
	return ag.Gate.CanProfile(ctx, userID, action, resourceType)
}

// IsAdmin reports whether the current user holds the superadmin permission.
func (ag *AuthGate) IsAdmin(ctx context.Context) bool {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return false
	}
	return ag.isAdmin(ctx, userID)
}

func (ag *AuthGate) isAdmin(ctx context.Context, userID uint) bool {
	profile := ag.Gate.Profile(ctx, userID)
	return profile != nil && profile.HasPermission(gate.PermissionSuperAdmin)
}

// Permissions lists the current user's granted permissions.
func (ag *AuthGate) Permissions(ctx context.Context) []gate.Permission {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return nil
	}
	profile := ag.Gate.Profile(ctx, userID)
	if profile == nil {
		return nil
	}
	return profile.Permissions()
}

// InvalidateUser clears the cache for a specific user.
// Call this when a user's role or approval changes.
func (ag *AuthGate) InvalidateUser(userID uint) {
	ag.CacheResolver.Invalidate(userID)
}

// InvalidateAll clears the entire role cache.
// Call this when role permissions are modified.
func (ag *AuthGate) InvalidateAll() {
	ag.CacheResolver.InvalidateAll()
}

// RequirePermission returns middleware that checks role permission.
func (ag *AuthGate) RequirePermission(resourceType string, action gate.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !ag.CanProfile(r.Context(), action, resourceType) {
				httpx.JSONError(w, http.StatusForbidden, "forbidden", string(gate.NewPermission(resourceType, action)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin returns middleware that only allows users with the "*:*"
// superadmin permission.
func (ag *AuthGate) RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := auth.UserIDFromContext(r.Context())
			if !ok {
				httpx.JSONError(w, http.StatusUnauthorized, "unauthorized", nil)
				return
			}
			if !ag.isAdmin(r.Context(), userID) {
				httpx.JSONError(w, http.StatusForbidden, "forbidden", "admin only")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
