package db

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/diewo77/go-quotations/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// permissionSeed lists every resource:action pair the application checks.
var permissionSeed = []struct {
	ResourceType string
	Action       string
	Description  string
}{
	{"*", "*", "Full system access"},
	{"quotation", "*", "All quotation actions"},
	{"quotation", "list", "List quotations"},
	{"quotation", "view", "View quotation details"},
	{"quotation", "create", "Create quotations"},
	{"quotation", "update", "Edit quotations"},
	{"quotation", "status", "Change quotation status"},
	{"quotation", "delete", "Delete quotations"},
	{"quotation", "export", "Export quotations"},
	{"document", "*", "All vendor document actions"},
	{"document", "list", "List vendor documents"},
	{"document", "view", "Download vendor documents"},
	{"document", "create", "Upload vendor documents"},
	{"document", "delete", "Delete vendor documents"},
	{"vendor", "list", "List vendors"},
	{"item_type", "list", "List item types"},
	{"exchange_rate", "*", "All exchange rate actions"},
	{"exchange_rate", "list", "List exchange rates"},
	{"exchange_rate", "update", "Set exchange rates"},
	{"stats", "view", "View statistics"},
	{"stats", "export", "Export statistics"},
	{"settings", "view", "View company settings"},
	{"settings", "update", "Edit company settings"},
	{"user", "*", "All user management"},
	{"user", "list", "List users"},
	{"user", "update", "Approve users and change roles"},
}

// roleSeed maps the two roles to their permission codes.
var roleSeed = []struct {
	Name        string
	Description string
	Permissions []string
}{
	{
		Name:        models.RoleAdmin,
		Description: "Administrator with every permission",
		Permissions: []string{"*:*"},
	},
	{
		Name:        models.RoleUser,
		Description: "Works on their own quotations",
		Permissions: []string{
			"quotation:*",
			"document:*",
			"vendor:list",
			"item_type:list",
			"exchange_rate:*",
			"stats:view",
			"stats:export",
			"settings:view",
			"settings:update",
		},
	},
}

// SeedPermissions creates the permission rows.
func SeedPermissions(conn *gorm.DB) error {
	for _, p := range permissionSeed {
		perm := models.Permission{ResourceType: p.ResourceType, Action: p.Action, Description: p.Description}
		if err := conn.Where("resource_type = ? AND action = ?", p.ResourceType, p.Action).
			FirstOrCreate(&perm).Error; err != nil {
			return err
		}
	}
	return nil
}

// SeedRoles creates the admin and user roles and replaces their permissions.
func SeedRoles(conn *gorm.DB) error {
	if err := SeedPermissions(conn); err != nil {
		return err
	}
	for _, r := range roleSeed {
		role := models.Role{Name: r.Name, Description: r.Description}
		if err := conn.Where("name = ?", r.Name).FirstOrCreate(&role).Error; err != nil {
			return err
		}
		var perms []models.Permission
		for _, code := range r.Permissions {
			resource, action, ok := strings.Cut(code, ":")
			if !ok {
				return fmt.Errorf("bad permission code %q", code)
			}
			var perm models.Permission
			if err := conn.Where("resource_type = ? AND action = ?", resource, action).First(&perm).Error; err != nil {
				return fmt.Errorf("permission %s: %w", code, err)
			}
			perms = append(perms, perm)
		}
		if err := conn.Model(&role).Association("Permissions").Replace(perms); err != nil {
			return err
		}
	}
	return nil
}

// SeedAdmin creates an approved admin account when none exists. An empty
// password skips the step.
func SeedAdmin(conn *gorm.DB, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	var existing models.User
	err := conn.Where("role = ?", models.RoleAdmin).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := models.User{
		Email:     strings.ToLower(email),
		Password:  string(hash),
		FirstName: "Admin",
		Role:      models.RoleAdmin,
		Approved:  true,
	}
	if err := conn.Create(&admin).Error; err != nil {
		return err
	}
	log.Printf("Seeded admin account %s", admin.Email)
	return nil
}

// Seed runs every seed step.
func Seed(conn *gorm.DB, adminEmail, adminPassword string) error {
	if err := SeedRoles(conn); err != nil {
		return fmt.Errorf("seed roles: %w", err)
	}
	if err := SeedAdmin(conn, adminEmail, adminPassword); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	return nil
}
