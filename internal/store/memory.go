package store

import (
	"context"
	"sync"
	"time"

	"github.com/idvault/authserver/types"
)

// MemoryUserRepository is an in-memory UserRepository used by tests and
// local development. It enforces the same username uniqueness and
// single-use reset-token guarantees as the postgres repository.
type MemoryUserRepository struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]types.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		nextID: 1,
		users:  make(map[int64]types.User),
	}
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id int64) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

func (r *MemoryUserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, ErrNotFound
}

func (r *MemoryUserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Username == user.Username {
			return types.User{}, ErrDuplicate
		}
	}

	now := time.Now()
	user.ID = r.nextID
	user.CreatedAt = now
	user.UpdatedAt = now
	r.nextID++
	r.users[user.ID] = user
	return user, nil
}

func (r *MemoryUserRepository) Save(ctx context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; !ok {
		return types.User{}, ErrNotFound
	}
	user.UpdatedAt = time.Now()
	r.users[user.ID] = user
	return user, nil
}

func (r *MemoryUserRepository) SetResetToken(ctx context.Context, id int64, tokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	user.ResetPasswordTokenHash = tokenHash
	user.ResetPasswordExpiresAt = &expiresAt
	user.UpdatedAt = time.Now()
	r.users[id] = user
	return nil
}

func (r *MemoryUserRepository) ConsumeResetToken(ctx context.Context, id int64, expectedTokenHash, newPasswordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok || user.ResetPasswordTokenHash == "" || user.ResetPasswordTokenHash != expectedTokenHash {
		return ErrNotFound
	}
	user.PasswordHash = newPasswordHash
	user.ResetPasswordTokenHash = ""
	user.ResetPasswordExpiresAt = nil
	user.UpdatedAt = time.Now()
	r.users[id] = user
	return nil
}
