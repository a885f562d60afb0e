// Package user manages staff accounts and the sign-in flow.
package user

import "errors"

// Collection is the document store collection for accounts.
const Collection = "users"

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// User is a staff account. The password hash never leaves the server.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	PasswordHash string `json:"passwordHash"`
	CreatedAt    int64  `json:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt"`
}

// Public strips the credential material for API responses.
func (u User) Public() map[string]any {
	return map[string]any{
		"id":    u.ID,
		"email": u.Email,
		"name":  u.Name,
		"role":  u.Role,
	}
}

// SignUpInput is the registration payload.
type SignUpInput struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// SignInInput is the login payload.
type SignInInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
