package entities

// UserRole represents the role of a user in the system
type UserRole string

const (
	RolePatient UserRole = "patient"
	RoleNurse   UserRole = "nurse"
	RoleDoctor  UserRole = "doctor"
	RoleAdmin   UserRole = "admin"
)

// User is a read-only projection from the hospital user directory
type User struct {
	ID       int64    `json:"id" db:"id"`
	Name     string   `json:"name" db:"name"`
	Role     UserRole `json:"role" db:"role"`
	Verified bool     `json:"verified" db:"verified"`
	Hospital string   `json:"hospital" db:"hospital"`
}

// Staff reports whether the user acts on queues rather than joining them
func (u *User) Staff() bool {
	return u.Role == RoleNurse || u.Role == RoleDoctor || u.Role == RoleAdmin
}
