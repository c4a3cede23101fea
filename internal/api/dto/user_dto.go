package dto

import (
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// LoginRequest is the operator login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued token.
type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// ChangePasswordRequest rotates the caller's password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// UserRequest is the admin create/update payload for accounts.
type UserRequest struct {
	FirstName     string      `json:"first_name"`
	LastName      string      `json:"last_name"`
	Email         string      `json:"email"`
	Password      string      `json:"password"`
	Role          domain.Role `json:"role"`
	EmployeeID    string      `json:"employee_id"`
	CounterNumber *string     `json:"counter_number"`
	IsActive      *bool       `json:"is_active"`
}

// UserResponse is the wire form of an account.
type UserResponse struct {
	ID            string      `json:"id"`
	FirstName     string      `json:"first_name"`
	LastName      string      `json:"last_name"`
	Email         string      `json:"email"`
	Role          domain.Role `json:"role"`
	EmployeeID    string      `json:"employee_id"`
	CounterNumber *string     `json:"counter_number,omitempty"`
	IsActive      bool        `json:"is_active"`
	CreatedAt     time.Time   `json:"created_at"`
}

// FromUser maps a domain user, never exposing the password hash.
func FromUser(u *domain.User) UserResponse {
	return UserResponse{
		ID:            u.ID,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Email:         u.Email,
		Role:          u.Role,
		EmployeeID:    u.EmployeeID,
		CounterNumber: u.CounterNumber,
		IsActive:      u.IsActive,
		CreatedAt:     u.CreatedAt,
	}
}
