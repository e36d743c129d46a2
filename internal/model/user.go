package model

// Roles carried in the JWT "role" claim and stored in users.role.
const (
    RoleUser  = "user"
    RoleAdmin = "admin"
)

// User represents a row of the `users` table.  Credit is the prepaid
// balance in the smallest currency unit and never goes below zero; it
// is only changed through the ledger operations in the service layer.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Username     – unique login name.
//  PasswordHash – bcrypt hashed password.
//  Role         – user or admin.
//  Credit       – current balance.
//  CreatedAt    – timestamp of registration.
type User struct {
    ID           uint64 `json:"id"`
    Username     string `json:"username"`
    PasswordHash string `json:"-"`
    Role         string `json:"role"`
    Credit       int64  `json:"credit"`
    CreatedAt    string `json:"created_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }
