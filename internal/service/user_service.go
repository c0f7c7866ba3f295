package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"crimesleuth/internal/auth"
	"crimesleuth/internal/cache"
	apperrors "crimesleuth/internal/errors"
	"crimesleuth/internal/model"
	"crimesleuth/internal/policy"
	"crimesleuth/internal/repository"
)

const userCacheTTL = 5 * time.Minute

// UserService exposes profile and user administration operations.
type UserService interface {
	Me(ctx context.Context, id uuid.UUID) (*model.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, in ProfileUpdate) (*model.User, error)
	ListUsers(ctx context.Context, actor auth.Principal) ([]model.User, error)
	SetRole(ctx context.Context, actor auth.Principal, id uuid.UUID, role model.Role) (*model.User, error)
}

type userService struct {
	repo  repository.UserRepository
	cache *cache.Client
}

// NewUserService builds a UserService with repository and cache.
func NewUserService(repo repository.UserRepository, cache *cache.Client) UserService {
	return &userService{repo: repo, cache: cache}
}

func (s *userService) cacheKey(id uuid.UUID) string {
	return fmt.Sprintf("user:%s", id)
}

func (s *userService) Me(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var cached model.User
	if s.cache.GetJSON(ctx, s.cacheKey(id), &cached) {
		return &cached, nil
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, apperrors.ErrUserNotFound, "find user")
	}

	_ = s.cache.SetJSON(ctx, s.cacheKey(id), user, userCacheTTL)
	return user, nil
}

func (s *userService) UpdateProfile(ctx context.Context, id uuid.UUID, in ProfileUpdate) (*model.User, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, apperrors.ErrUserNotFound, "find user")
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperrors.Invalid("name must not be empty")
		}
		user.Name = name
	}
	if in.AvatarURL != nil {
		user.AvatarURL = strings.TrimSpace(*in.AvatarURL)
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	_ = s.cache.Delete(ctx, s.cacheKey(id))
	return user, nil
}

func (s *userService) ListUsers(ctx context.Context, actor auth.Principal) ([]model.User, error) {
	if err := authorize(actor, policy.UserManage, policy.Other); err != nil {
		return nil, err
	}
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// SetRole changes a user's role. The change reaches the user's tokens on
// their next refresh.
func (s *userService) SetRole(ctx context.Context, actor auth.Principal, id uuid.UUID, role model.Role) (*model.User, error) {
	if err := authorize(actor, policy.UserManage, policy.Other); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, apperrors.Invalid("role must be one of: investigator, analyst, supervisor, admin")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, apperrors.ErrUserNotFound, "find user")
	}

	user.Role = role
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	_ = s.cache.Delete(ctx, s.cacheKey(id))
	return user, nil
}
