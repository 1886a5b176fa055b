package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/idvault/authserver/internal/avatars"
	"github.com/idvault/authserver/internal/events"
	"github.com/idvault/authserver/internal/password"
	"github.com/idvault/authserver/internal/store"
	"github.com/idvault/authserver/internal/token"
	"github.com/idvault/authserver/types"
)

// AuthService orchestrates signup, credential validation, and OAuth
// federation over the user store.
type AuthService struct {
	repo       UserRepository
	tokens     *token.Issuer
	sessionTTL time.Duration
	emitter    *events.Emitter
	avatars    *avatars.Mirror
	logger     *zap.Logger
}

// NewAuthService wires dependencies. The avatar mirror may be nil, in
// which case federated avatars are not mirrored.
func NewAuthService(repo UserRepository, tokens *token.Issuer, sessionTTL time.Duration, emitter *events.Emitter, mirror *avatars.Mirror, logger *zap.Logger) *AuthService {
	return &AuthService{
		repo:       repo,
		tokens:     tokens,
		sessionTTL: sessionTTL,
		emitter:    emitter,
		avatars:    mirror,
		logger:     logger,
	}
}

// Signup creates a new local account and returns its session. A username
// collision, whether found by the pre-check or by the store's unique
// constraint under a racing signup, fails with ErrDuplicateUser and
// leaves no partial state behind.
func (s *AuthService) Signup(ctx context.Context, firstName, lastName, username, plainPassword string) (types.Session, error) {
	_, err := s.repo.GetByUsername(ctx, username)
	if err == nil {
		return types.Session{}, ErrDuplicateUser
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.Session{}, err
	}

	hash, err := password.Hash(plainPassword)
	if err != nil {
		return types.Session{}, err
	}

	user, err := s.repo.Create(ctx, types.User{
		FirstName:    firstName,
		LastName:     lastName,
		Username:     username,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.Session{}, ErrDuplicateUser
		}
		return types.Session{}, err
	}

	s.logger.Info("user signed up", zap.Int64("user_id", user.ID))
	s.emitter.Emit(ctx, events.TopicUserCreated, user.ID, user.Username)

	return s.issueSession(user)
}

// SignIn mints a session for a user the caller has already authenticated
// through ValidateUser.
func (s *AuthService) SignIn(ctx context.Context, user types.User) (types.Session, error) {
	return s.issueSession(user)
}

// ValidateUser checks a username/password pair. It returns nil for an
// unknown username, a wrong password, and an OAuth-only account alike, so
// callers cannot enumerate usernames.
func (s *AuthService) ValidateUser(ctx context.Context, username, plainPassword string) (*types.User, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if !user.HasPassword() {
		return nil, nil
	}
	if !password.Compare(plainPassword, user.PasswordHash) {
		return nil, nil
	}
	return &user, nil
}

// Federate resolves an external OAuth identity to a local account, keyed
// on email equality. An existing account is reused as-is, its password
// untouched; otherwise a passwordless account is created. A nil identity
// (the handshake yielded no profile) returns nil without error.
func (s *AuthService) Federate(ctx context.Context, identity *types.ExternalIdentity) (*types.Session, error) {
	if identity == nil || identity.Email == "" {
		return nil, nil
	}

	created := false
	user, err := s.repo.GetByUsername(ctx, identity.Email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		user, err = s.repo.Create(ctx, types.User{
			FirstName: identity.FirstName,
			LastName:  identity.LastName,
			Username:  identity.Email,
		})
		if err != nil {
			if !errors.Is(err, store.ErrDuplicate) {
				return nil, err
			}
			// Lost a race against a concurrent federation for the same
			// email; the winner's record is authoritative.
			user, err = s.repo.GetByUsername(ctx, identity.Email)
			if err != nil {
				return nil, err
			}
		} else {
			created = true
		}
	}

	if created {
		s.mirrorAvatar(ctx, &user, identity.AvatarURL)
		s.emitter.Emit(ctx, events.TopicUserCreated, user.ID, user.Username)
	}
	s.emitter.Emit(ctx, events.TopicUserFederated, user.ID, user.Username)

	session, err := s.issueSession(user)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// mirrorAvatar copies the provider avatar into object storage,
// best-effort. Federation never fails because an avatar did not copy.
func (s *AuthService) mirrorAvatar(ctx context.Context, user *types.User, avatarURL string) {
	if s.avatars == nil || avatarURL == "" {
		return
	}

	key, err := s.avatars.Fetch(ctx, user.ID, avatarURL)
	if err != nil {
		s.logger.Warn("avatar mirror failed", zap.Int64("user_id", user.ID), zap.Error(err))
		return
	}

	user.AvatarKey = key
	if _, err := s.repo.Save(ctx, *user); err != nil {
		s.logger.Warn("avatar key save failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}
}

func (s *AuthService) issueSession(user types.User) (types.Session, error) {
	accessToken, err := s.tokens.Issue(user.ID, user.Username, s.sessionTTL)
	if err != nil {
		return types.Session{}, err
	}
	return types.Session{
		ID:          user.ID,
		Username:    user.Username,
		AccessToken: accessToken,
	}, nil
}
