// Package gate is the authorization checkpoint for the quotation service.
//
// A request is allowed when the caller's permission profile grants
// "resource:action" and, when a concrete record is supplied, the resource
// policy registered for that resource type also agrees (ownership, role
// overrides). Profiles are resolved per subject through a ProfileResolver,
// usually wrapped in a CachedResolver so a session costs one lookup.
package gate

import "context"

// Policy defines record-level rules for one resource type.
// For list/create checks the resource is nil.
type Policy[U any] interface {
	Can(ctx context.Context, user U, action Action, resource any) bool
}

// PolicyFunc adapts a plain function to Policy.
type PolicyFunc[U any] func(ctx context.Context, user U, action Action, resource any) bool

// Can implements Policy.
func (f PolicyFunc[U]) Can(ctx context.Context, user U, action Action, resource any) bool {
	return f(ctx, user, action, resource)
}

// HybridGate combines profile permissions with resource policies.
type HybridGate[U comparable] struct {
	resolver ProfileResolver[U]
	policies map[string]Policy[U]
}

// NewHybridGate creates a gate that resolves profiles through resolver.
func NewHybridGate[U comparable](resolver ProfileResolver[U]) *HybridGate[U] {
	return &HybridGate[U]{
		resolver: resolver,
		policies: make(map[string]Policy[U]),
	}
}

// Register sets the record-level policy for resourceType, replacing any previous one.
func (g *HybridGate[U]) Register(resourceType string, p Policy[U]) {
	g.policies[resourceType] = p
}

// Authorize returns nil when user may perform action on the resource.
//  1. the zero subject is never authorized
//  2. the resolved profile must grant resourceType:action
//  3. a non-nil resource is checked against the registered policy, if any
func (g *HybridGate[U]) Authorize(ctx context.Context, user U, action Action, resourceType string, resource any) error {
	if !g.CanProfile(ctx, user, action, resourceType) {
		return ErrUnauthorized
	}
	if resource == nil {
		return nil
	}
	if p, ok := g.policies[resourceType]; ok && !p.Can(ctx, user, action, resource) {
		return ErrForbidden
	}
	return nil
}

// Can reports whether Authorize succeeds.
func (g *HybridGate[U]) Can(ctx context.Context, user U, action Action, resourceType string, resource any) bool {
	return g.Authorize(ctx, user, action, resourceType, resource) == nil
}

// CanProfile checks only the profile permission, before any record is loaded.
func (g *HybridGate[U]) CanProfile(ctx context.Context, user U, action Action, resourceType string) bool {
	var zero U
	if user == zero {
		return false
	}
	profile, err := g.resolver.Resolve(ctx, user)
	if err != nil || profile == nil {
		return false
	}
	return profile.HasPermission(NewPermission(resourceType, action))
}

// Profile returns the resolved profile for user, or nil.
func (g *HybridGate[U]) Profile(ctx context.Context, user U) Profile {
	var zero U
	if user == zero {
		return nil
	}
	profile, err := g.resolver.Resolve(ctx, user)
	if err != nil {
		return nil
	}
	return profile
}
