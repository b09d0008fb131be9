package db

import (
	"context"

	dbmodels "github.com/gartstein/eagle/internal/taskmgr/db/models"
	"github.com/gartstein/eagle/internal/taskmgr/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultCompany is created by Seed so a fresh store can be logged into.
var DefaultCompany = dbmodels.Company{ID: 1, Name: "TechCorp"}

// DefaultUsers are the demo accounts created by Seed, one per role.
var DefaultUsers = []dbmodels.User{
	{ID: 1, Username: "admin", Password: "admin123", Role: string(models.RoleAdmin), CompanyID: 1},
	{ID: 2, Username: "manager", Password: "manager123", Role: string(models.RoleManager), CompanyID: 1},
	{ID: 3, Username: "employee", Password: "employee123", Role: string(models.RoleEmployee), CompanyID: 1},
}

// Seed inserts the default company and users. Rows that already exist are
// left untouched, so Seed is safe to run on every start.
func (r *Repository) Seed(ctx context.Context) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		company := DefaultCompany
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&company).Error; err != nil {
			return storeErr("seed companies", err)
		}

		users := make([]dbmodels.User, len(DefaultUsers))
		copy(users, DefaultUsers)
		if r.hashPassword != nil {
			for i := range users {
				hashed, err := r.hashPassword(users[i].Password)
				if err != nil {
					return err
				}
				users[i].Password = hashed
			}
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&users).Error; err != nil {
			return storeErr("seed users", err)
		}
		return nil
	})
}
