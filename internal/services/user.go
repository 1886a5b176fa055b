package services

import (
	"context"
	"time"

	"github.com/idvault/authserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Save(ctx context.Context, user types.User) (types.User, error)
	SetResetToken(ctx context.Context, id int64, tokenHash string, expiresAt time.Time) error
	ConsumeResetToken(ctx context.Context, id int64, expectedTokenHash, newPasswordHash string) error
}

// UserService encapsulates user lookups used outside the auth flows.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id int64) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return s.repo.GetByUsername(ctx, username)
}
