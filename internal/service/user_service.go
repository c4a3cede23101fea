package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// UserService manages agent and admin accounts.
type UserService struct {
	ds         repository.Datastore
	bcryptCost int
}

// NewUserService constructs the service.
func NewUserService(cfg config.Config, ds repository.Datastore) *UserService {
	return &UserService{ds: ds, bcryptCost: cfg.Auth.BcryptCost}
}

// UserInput describes account create/update payloads.
type UserInput struct {
	FirstName     string
	LastName      string
	Email         string
	Password      string
	Role          domain.Role
	EmployeeID    string
	CounterNumber *string
	IsActive      *bool
}

// CreateUser registers a new agent or admin account.
func (s *UserService) CreateUser(ctx context.Context, actor Actor, input UserInput) (*domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.FirstName == "" || input.Password == "" {
		return nil, apperrors.NewValidationError("first_name, email, password required", nil)
	}
	if input.Role != domain.RoleAdmin && input.Role != domain.RoleAgent {
		return nil, apperrors.NewValidationError("role must be admin or agent", nil)
	}

	if _, err := s.ds.Users().GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("email already registered", map[string]any{"email": email})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	user := &domain.User{
		FirstName:     strings.TrimSpace(input.FirstName),
		LastName:      strings.TrimSpace(input.LastName),
		Email:         email,
		PasswordHash:  hash,
		Role:          input.Role,
		EmployeeID:    strings.TrimSpace(input.EmployeeID),
		CounterNumber: input.CounterNumber,
		IsActive:      true,
	}
	if err := s.ds.Users().Create(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

// UpdateUser modifies account fields; password changes go through AuthService.
func (s *UserService) UpdateUser(ctx context.Context, actor Actor, userID string, input UserInput) (*domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if v := strings.TrimSpace(input.FirstName); v != "" {
		user.FirstName = v
	}
	if v := strings.TrimSpace(input.LastName); v != "" {
		user.LastName = v
	}
	if v := strings.TrimSpace(input.EmployeeID); v != "" {
		user.EmployeeID = v
	}
	if input.CounterNumber != nil {
		user.CounterNumber = input.CounterNumber
	}
	if input.Role == domain.RoleAdmin || input.Role == domain.RoleAgent {
		user.Role = input.Role
	}
	if input.IsActive != nil {
		user.IsActive = *input.IsActive
	}

	if err := s.ds.Users().Update(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

// ListUsers returns accounts filtered by role.
func (s *UserService) ListUsers(ctx context.Context, actor Actor, role *domain.Role, includeInactive bool) ([]domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	users, err := s.ds.Users().List(ctx, role, includeInactive)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return users, nil
}

// GetUser fetches one account.
func (s *UserService) GetUser(ctx context.Context, actor Actor, userID string) (*domain.User, error) {
	if !actor.IsAdmin() && actor.ID != userID {
		return nil, apperrors.NewForbidden("access denied")
	}
	return s.getUser(ctx, userID)
}

func (s *UserService) getUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.ds.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": userID})
		}
		return nil, apperrors.MapError(err)
	}
	return user, nil
}
