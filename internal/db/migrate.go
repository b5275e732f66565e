package db

import (
	"fmt"

	"github.com/diewo77/go-quotations/internal/models"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// Models lists every table, in dependency order. Tests migrate with it.
func Models() []any {
	return []any{
		&models.Permission{}, &models.Role{}, &models.User{},
		&models.Vendor{}, &models.ItemType{},
		&models.Quotation{}, &models.QuotationItem{},
		&models.ExchangeRate{}, &models.CompanySettings{}, &models.VendorDocument{},
	}
}

func migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			ID: "20240301_create_accounts",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.Permission{}, &models.Role{}, &models.User{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("role_permissions", &models.User{}, &models.Role{}, &models.Permission{})
			},
		},
		{
			ID: "20240302_create_quotations",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.Vendor{}, &models.ItemType{}, &models.Quotation{}, &models.QuotationItem{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&models.QuotationItem{}, &models.Quotation{}, &models.ItemType{}, &models.Vendor{})
			},
		},
		{
			ID: "20240310_create_exchange_rates_and_settings",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.ExchangeRate{}, &models.CompanySettings{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&models.CompanySettings{}, &models.ExchangeRate{})
			},
		},
		{
			ID: "20240322_create_vendor_documents",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.VendorDocument{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&models.VendorDocument{})
			},
		},
		{
			ID: "20240405_quotation_version_and_avatar_path",
			Migrate: func(tx *gorm.DB) error {
				if !tx.Migrator().HasColumn(&models.Quotation{}, "Version") {
					if err := tx.Migrator().AddColumn(&models.Quotation{}, "Version"); err != nil {
						return err
					}
				}
				if !tx.Migrator().HasColumn(&models.User{}, "AvatarPath") {
					return tx.Migrator().AddColumn(&models.User{}, "AvatarPath")
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				if err := tx.Migrator().DropColumn(&models.Quotation{}, "Version"); err != nil {
					return err
				}
				return tx.Migrator().DropColumn(&models.User{}, "AvatarPath")
			},
		},
		{
			ID: "20240418_item_type_name_key",
			Migrate: func(tx *gorm.DB) error {
				m := tx.Migrator()
				if !m.HasColumn(&models.ItemType{}, "NameKey") {
					if err := m.AddColumn(&models.ItemType{}, "NameKey"); err != nil {
						return err
					}
				}
				if err := tx.Exec("UPDATE item_types SET name_key = LOWER(TRIM(name))").Error; err != nil {
					return err
				}
				if m.HasIndex(&models.ItemType{}, "idx_item_types_name") {
					if err := m.DropIndex(&models.ItemType{}, "idx_item_types_name"); err != nil {
						return err
					}
				}
				if !m.HasIndex(&models.ItemType{}, "NameKey") {
					return m.CreateIndex(&models.ItemType{}, "NameKey")
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				m := tx.Migrator()
				if m.HasIndex(&models.ItemType{}, "NameKey") {
					if err := m.DropIndex(&models.ItemType{}, "NameKey"); err != nil {
						return err
					}
				}
				if err := m.DropColumn(&models.ItemType{}, "NameKey"); err != nil {
					return err
				}
				return tx.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_item_types_name ON item_types (name)").Error
			},
		},
	}
}

// Migrate applies pending migrations.
func Migrate(conn *gorm.DB) error {
	m := gormigrate.New(conn, gormigrate.DefaultOptions, migrations())
	if err := m.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	for _, table := range []string{"users", "quotations", "quotation_items", "exchange_rates"} {
		if !conn.Migrator().HasTable(table) {
			return fmt.Errorf("missing table after migration: %s", table)
		}
	}
	return nil
}

// RollbackLast reverts the most recent migration.
func RollbackLast(conn *gorm.DB) error {
	return gormigrate.New(conn, gormigrate.DefaultOptions, migrations()).RollbackLast()
}
