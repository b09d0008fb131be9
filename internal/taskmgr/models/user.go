package models

// Role determines task visibility and creation rights.
type Role string

const (
	// RoleAdmin sees every task of its company and may create tasks.
	RoleAdmin    Role = "Admin"
	RoleManager  Role = "Manager"
	RoleEmployee Role = "Employee"
)

var roles = map[Role]struct{}{
	RoleAdmin:    {},
	RoleManager:  {},
	RoleEmployee: {},
}

// IsValidRole reports whether r names one of the fixed roles.
func IsValidRole(r string) bool {
	_, ok := roles[Role(r)]
	return ok
}

// ParseRole converts r into a Role when it is recognized.
func ParseRole(r string) (Role, bool) {
	if !IsValidRole(r) {
		return "", false
	}
	return Role(r), true
}

// User defines an account belonging to exactly one company.
type User struct {
	// ID is the unique identifier for the user.
	ID int64 `json:"id"`
	// Username is unique across the whole system, not per company.
	Username string `json:"username"`
	// Password is an opaque credential. It is never serialized.
	Password string `json:"-"`
	// Role is one of Admin, Manager or Employee.
	Role Role `json:"role"`
	// CompanyID references the owning company.
	CompanyID int64 `json:"company_id"`
}

// IsAdmin reports whether the user holds the Admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
