package service

import (
	"context"
	"time"

	"storefront/internal/apperror"
	"storefront/internal/model"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=customer staff admin"`
}

// DTO for returning User without exposing sensitive data (e.g. password)
type UserResponse struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	Username       *string   `json:"username,omitempty"`
	Phone          *string   `json:"phone,omitempty"`
	Role           string    `json:"role"`
	Verified       bool      `json:"verified"`
	EmailValidated bool      `json:"email_validated"`
	PhoneValidated bool      `json:"phone_validated"`
	CreatedAt      string    `json:"created_at"`
	UpdatedAt      string    `json:"updated_at"`
}

// UserService defines the interface for business logic related to User
type UserService interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*UserResponse, error)
	ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error)
	ChangeRole(ctx context.Context, actorID, id uuid.UUID, req ChangeRoleRequest) (*UserResponse, error)
	// Resolver backs the ownership gate on /users/:id.
	Resolver() ResourceResolver
}

type userService struct {
	repo      repository.UserRepository
	txManager repository.TransactionManager
	audit     AuditService
}

// NewUserService returns a new instance of UserService
func NewUserService(repo repository.UserRepository, txManager repository.TransactionManager, audit AuditService) UserService {
	return &userService{repo: repo, txManager: txManager, audit: audit}
}

// Helper: parse model to standard json API response
func ToUserResponse(user *model.User) *UserResponse {
	return &UserResponse{
		ID:             user.ID,
		Email:          user.Email,
		Username:       user.Username,
		Phone:          user.Phone,
		Role:           user.Role,
		Verified:       user.Verified,
		EmailValidated: user.EmailValidated,
		PhoneValidated: user.PhoneValidated,
		CreatedAt:      user.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      user.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *userService) GetUserByID(ctx context.Context, id uuid.UUID) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return ToUserResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}

	users, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, *ToUserResponse(&users[i]))
	}

	return responses, total, nil
}

func (s *userService) ChangeRole(ctx context.Context, actorID, id uuid.UUID, req ChangeRoleRequest) (*UserResponse, error) {
	if !model.ValidRole(req.Role) {
		return nil, apperror.New(apperror.ErrValidation, "invalid role: must be customer, staff or admin")
	}
	if actorID == id {
		return nil, apperror.New(apperror.ErrValidation, "cannot change your own role")
	}

	var user *model.User
	entry := newAuditEntry(&actorID, model.ActionChangeRole, id.String(), "", nil)
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		user, err = s.repo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		entry.EntityName = user.Email
		entry.Details = detailsJSON(map[string]interface{}{"from": user.Role, "to": req.Role})

		user.Role = req.Role
		if err := s.repo.UpdateFields(txCtx, id, map[string]interface{}{"role": req.Role}); err != nil {
			return err
		}
		return s.audit.Record(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}
	s.audit.Publish(entry)

	return ToUserResponse(user), nil
}

func (s *userService) Resolver() ResourceResolver {
	return NewResolver(
		func(ctx context.Context, id uuid.UUID) (*model.User, error) { return s.repo.GetByID(ctx, id) },
		func(u *model.User) uuid.UUID { return u.ID },
	)
}
