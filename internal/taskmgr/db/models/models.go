// Package models contains the table rows of the embedded store,
// configured to work using GORM as the ORM.
package models

import (
	"time"
)

// Company represents a row of the companies table.
type Company struct {
	ID   int64  `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"not null;uniqueIndex"`
}

// User represents a row of the users table. Username is unique system-wide.
type User struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Username  string `gorm:"not null;uniqueIndex"`
	Password  string `gorm:"not null"`
	Role      string `gorm:"not null"`
	CompanyID int64  `gorm:"index"`
}

// Task represents a row of the tasks table. AssignedTo is nullable at the
// data layer even though task creation always sets it.
type Task struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	Title       string `gorm:"not null"`
	Description string
	AssignedTo  *int64 `gorm:"index"`
	CompanyID   int64  `gorm:"index"`
	Status      string `gorm:"not null;default:Pending"`
	Priority    string `gorm:"not null;default:Medium"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Deadline    *time.Time
}

// Setting is a durable key/value pair used for client-side state such as
// the persisted session.
type Setting struct {
	Key   string `gorm:"column:setting_key;primaryKey"`
	Value []byte
}

// All lists every table managed by AutoMigrate.
func All() []interface{} {
	return []interface{}{&Company{}, &User{}, &Task{}, &Setting{}}
}
