// Package models defines the core domain models of the task manager:
// companies (tenants), users with roles, and tasks assigned to users.
// Everything here is plain data plus side-effect free validation.
package models

// Company is a tenant scoping users and tasks.
type Company struct {
	// ID is the unique identifier for the company.
	ID int64 `json:"id"`
	// Name is the company's unique, non-empty name.
	Name string `json:"name"`
}
