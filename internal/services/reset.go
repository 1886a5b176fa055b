package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/idvault/authserver/internal/email"
	"github.com/idvault/authserver/internal/events"
	"github.com/idvault/authserver/internal/password"
	"github.com/idvault/authserver/internal/store"
	"github.com/idvault/authserver/internal/token"
)

const resetEmailSubject = "Reset your password"

// ResetMessages returned to callers after the corresponding flow step.
const (
	resetRequestedMessage = "password reset email sent"
	resetCompletedMessage = "password has been reset"
)

// ResetService carries a user through the password-reset flow: request a
// token, receive it by email, present it once to set a new password.
type ResetService struct {
	repo     UserRepository
	tokens   *token.Issuer
	sender   email.Sender
	emitter  *events.Emitter
	resetTTL time.Duration
	from     string
	resetURL string
	logger   *zap.Logger

	now func() time.Time
}

// NewResetService wires dependencies.
func NewResetService(repo UserRepository, tokens *token.Issuer, sender email.Sender, emitter *events.Emitter, resetTTL time.Duration, from, resetURL string, logger *zap.Logger) *ResetService {
	return &ResetService{
		repo:     repo,
		tokens:   tokens,
		sender:   sender,
		emitter:  emitter,
		resetTTL: resetTTL,
		from:     from,
		resetURL: resetURL,
		logger:   logger,
		now:      time.Now,
	}
}

// RequestReset mints a short-lived reset token for the account behind
// email, stores its hash alongside the expiry deadline, and mails the
// plaintext token to the user. Only the hash is ever persisted. A failed
// delivery is returned to the caller, not swallowed.
func (s *ResetService) RequestReset(ctx context.Context, emailAddr string) (string, error) {
	user, err := s.repo.GetByUsername(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", err
	}

	resetToken, err := s.tokens.Issue(user.ID, user.Username, s.resetTTL)
	if err != nil {
		return "", err
	}

	tokenHash, err := password.Hash(resetToken)
	if err != nil {
		return "", err
	}

	expiresAt := s.now().Add(s.resetTTL)
	if err := s.repo.SetResetToken(ctx, user.ID, tokenHash, expiresAt); err != nil {
		return "", err
	}

	body := email.ResetBody(s.resetURL, resetToken)
	if err := s.sender.Send(ctx, s.from, user.Username, resetEmailSubject, body); err != nil {
		return "", err
	}

	s.logger.Info("password reset requested", zap.Int64("user_id", user.ID))
	s.emitter.Emit(ctx, events.TopicResetRequested, user.ID, user.Username)

	return resetRequestedMessage, nil
}

// ResetPassword consumes an outstanding reset token. The ordering is a
// correctness requirement: outstanding-reset check, then expiry, then
// token compare, then the guarded consume. The consume clears both reset
// fields in one store operation, so a token verifies at most once even
// under racing requests.
func (s *ResetService) ResetPassword(ctx context.Context, username, newPassword, resetToken string) (string, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidResetToken
		}
		return "", err
	}

	if !user.HasPendingReset() {
		return "", ErrInvalidResetToken
	}
	if user.ResetPasswordExpiresAt.Before(s.now()) {
		return "", ErrResetTokenExpired
	}
	if !password.Compare(resetToken, user.ResetPasswordTokenHash) {
		return "", ErrInvalidResetToken
	}

	newHash, err := password.Hash(newPassword)
	if err != nil {
		return "", err
	}

	if err := s.repo.ConsumeResetToken(ctx, user.ID, user.ResetPasswordTokenHash, newHash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidResetToken
		}
		return "", err
	}

	s.logger.Info("password reset completed", zap.Int64("user_id", user.ID))
	s.emitter.Emit(ctx, events.TopicResetCompleted, user.ID, user.Username)

	return resetCompletedMessage, nil
}
