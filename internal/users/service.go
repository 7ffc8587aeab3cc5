package users

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"towfleet/internal/fault"
	"towfleet/pkg/jwt"
	"towfleet/pkg/validation"
)

// ErrInvalidCredentials is returned on login failure without revealing
// whether the email or the password was wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ProfileCreator seeds an empty driver profile when a driver registers.
// Implemented by the drivers store.
type ProfileCreator interface {
	CreateForUser(ctx context.Context, userID string) error
}

// Service contains account business logic.
type Service struct {
	store    Store
	profiles ProfileCreator
}

// NewService creates a user service.
func NewService(store Store, profiles ProfileCreator) *Service {
	return &Service{store: store, profiles: profiles}
}

// Register creates a new account. Drivers and tow companies start
// unapproved and cannot log in until an admin approves them.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if !validation.ValidateEmail(req.Email) {
		return nil, fault.Invalid("email")
	}
	if !validation.ValidatePassword(req.Password) {
		return nil, fault.Invalid("password")
	}
	if !validation.ValidateName(req.FullName) {
		return nil, fault.Invalid("full_name")
	}
	if !ValidRole(req.Role) {
		return nil, fault.Invalid("role")
	}
	if req.Phone != "" && !validation.ValidatePhone(req.Phone) {
		return nil, fault.Invalid("phone")
	}

	exists, err := s.store.EmailExists(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fault.Invalid("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	u := &User{
		ID:           uuid.New().String(),
		Email:        req.Email,
		FullName:     req.FullName,
		Phone:        req.Phone,
		PasswordHash: string(hash),
		Role:         req.Role,
		IsActive:     true,
		IsApproved:   !RequiresApproval(req.Role),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Insert(ctx, u); err != nil {
		return nil, err
	}

	if req.Role == RoleDriver && s.profiles != nil {
		if err := s.profiles.CreateForUser(ctx, u.ID); err != nil {
			log.Printf("[users] driver profile seed failed for %s: %v", u.ID, err)
		}
	}
	return u, nil
}

// Login authenticates an account and returns a bearer token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*Token, error) {
	u, err := s.store.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.IsApproved {
		return nil, fault.Forbidden("account pending approval")
	}
	if !u.IsActive {
		return nil, fault.Forbidden("account deactivated")
	}

	token, err := jwt.Generate(u.ID, u.Email, string(u.Role))
	if err != nil {
		return nil, err
	}
	return &Token{AccessToken: token, TokenType: "bearer", User: u}, nil
}

// GetByID fetches a single account.
func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	return s.store.GetByID(ctx, id)
}

// PendingApprovals lists driver and tow company accounts awaiting approval.
func (s *Service) PendingApprovals(ctx context.Context) ([]User, error) {
	return s.store.PendingApprovals(ctx)
}

// Approve marks an account approved.
func (s *Service) Approve(ctx context.Context, id string) error {
	ok, err := s.store.Approve(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fault.NotFound("user")
	}
	return nil
}
