package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docsathi/telehealth-api/internal/identity"
)

var (
	ErrNotFound           = errors.New("auth: user not found")
	ErrEmailTaken         = errors.New("auth: email already registered")
	ErrInvalidCredentials = errors.New("auth: invalid email or password")
	ErrRoleMismatch       = errors.New("auth: account role does not match")
	ErrInvalidToken       = errors.New("auth: invalid token")
)

// User is an account of either role.
type User struct {
	ID           uuid.UUID     `json:"id"`
	Name         string        `json:"name"`
	Email        string        `json:"email"`
	PasswordHash string        `json:"-"`
	Role         identity.Role `json:"role"`
	ProfileImage string        `json:"profileImage,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Principal converts the account to a request principal.
func (u *User) Principal() identity.Principal {
	return identity.Principal{UserID: u.ID, Role: u.Role, Name: u.Name}
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"required,oneof=doctor patient"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=doctor patient"`
}

// Session is returned by register and login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
