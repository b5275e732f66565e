package policy

import (
	"context"
	"errors"

	"github.com/diewo77/go-quotations/gate"
	"github.com/diewo77/go-quotations/internal/models"
	"gorm.io/gorm"
)

// DBRoleResolver resolves a user's role from the database.
// It implements gate.ProfileResolver for uint user IDs.
type DBRoleResolver struct {
	DB *gorm.DB
}

// NewDBRoleResolver creates a new database-backed role resolver.
func NewDBRoleResolver(db *gorm.DB) *DBRoleResolver {
	return &DBRoleResolver{DB: db}
}

// Resolve loads the user's role with its permissions. Users awaiting
// approval, and users whose role row is missing, get an empty profile.
func (r *DBRoleResolver) Resolve(ctx context.Context, userID uint) (gate.Profile, error) {
	db := r.DB.WithContext(ctx)
	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		return nil, err
	}
	if !user.Approved {
		return gate.NewStaticProfile("unapproved"), nil
	}
	var role models.Role
	err := db.Preload("Permissions").Where("name = ?", user.Role).First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return gate.NewStaticProfile(user.Role), nil
	}
	if err != nil {
		return nil, err
	}
	return &roleProfile{role: &role}, nil
}

// roleProfile wraps a models.Role to implement gate.Profile.
type roleProfile struct {
	role *models.Role
}

func (p *roleProfile) Name() string {
	return p.role.Name
}

// HasPermission supports wildcards: "*:*" and "resource:*".
func (p *roleProfile) HasPermission(perm gate.Permission) bool {
	for _, rp := range p.role.Permissions {
		if gate.NewPermission(rp.ResourceType, gate.Action(rp.Action)).Matches(perm) {
			return true
		}
	}
	return false
}

func (p *roleProfile) Permissions() []gate.Permission {
	out := make([]gate.Permission, len(p.role.Permissions))
	for i, rp := range p.role.Permissions {
		out[i] = gate.NewPermission(rp.ResourceType, gate.Action(rp.Action))
	}
	return out
}
