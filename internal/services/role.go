package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/diewo77/go-quotations/internal/models"
	"gorm.io/gorm"
)

// RoleService manages which permissions each role grants.
type RoleService struct {
	db *gorm.DB
}

func NewRoleService(db *gorm.DB) *RoleService {
	return &RoleService{db: db}
}

// List returns every role with its permissions.
func (s *RoleService) List(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	err := s.db.WithContext(ctx).Preload("Permissions").Order("name").Find(&roles).Error
	return roles, err
}

// Permissions returns every known permission, grouped by resource.
func (s *RoleService) Permissions(ctx context.Context) ([]models.Permission, error) {
	var perms []models.Permission
	err := s.db.WithContext(ctx).Order("resource_type, action").Find(&perms).Error
	return perms, err
}

// SetPermissions replaces the permissions granted by role id. Unknown
// permission ids are ignored.
func (s *RoleService) SetPermissions(ctx context.Context, id uint, permissionIDs []uint) (*models.Role, error) {
	db := s.db.WithContext(ctx)
	var role models.Role
	if err := db.First(&role, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var perms []models.Permission
	if len(permissionIDs) > 0 {
		if err := db.Where("id IN ?", permissionIDs).Find(&perms).Error; err != nil {
			return nil, err
		}
	}
	if err := db.Model(&role).Association("Permissions").Replace(perms); err != nil {
		return nil, fmt.Errorf("replace permissions: %w", err)
	}
	if err := db.Preload("Permissions").First(&role, id).Error; err != nil {
		return nil, err
	}
	return &role, nil
}
