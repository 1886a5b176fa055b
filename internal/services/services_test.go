package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/idvault/authserver/internal/events"
	"github.com/idvault/authserver/internal/store"
	"github.com/idvault/authserver/internal/token"
)

const testSecret = "secret_key_test"

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, event := range p.events {
		out = append(out, event.Topic)
	}
	return out
}

// capturingSender records outgoing mail instead of delivering it.
type capturingSender struct {
	mu   sync.Mutex
	sent []sentMail
	fail error
}

type sentMail struct {
	from, to, subject, body string
}

func (s *capturingSender) Send(ctx context.Context, from, to, subject, body string) error {
	if s.fail != nil {
		return s.fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMail{from: from, to: to, subject: subject, body: body})
	return nil
}

func (s *capturingSender) last() (sentMail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return sentMail{}, false
	}
	return s.sent[len(s.sent)-1], true
}

// extractResetToken pulls the plaintext token out of a reset email body.
func extractResetToken(body string) (string, error) {
	const marker = "Reset token: "
	idx := strings.Index(body, marker)
	if idx < 0 {
		return "", errors.New("no reset token in body")
	}
	rest := body[idx+len(marker):]
	if end := strings.IndexByte(rest, '\n'); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest), nil
}

type authFixture struct {
	repo      *store.MemoryUserRepository
	tokens    *token.Issuer
	publisher *recordingPublisher
	auth      *AuthService
}

func newAuthFixture() *authFixture {
	repo := store.NewMemoryUserRepository()
	tokens := token.NewIssuer(testSecret)
	publisher := &recordingPublisher{}
	emitter := events.NewEmitter(publisher, zap.NewNop())
	auth := NewAuthService(repo, tokens, 24*time.Hour, emitter, nil, zap.NewNop())

	return &authFixture{
		repo:      repo,
		tokens:    tokens,
		publisher: publisher,
		auth:      auth,
	}
}

type resetFixture struct {
	*authFixture
	sender *capturingSender
	reset  *ResetService
}

func newResetFixture() *resetFixture {
	base := newAuthFixture()
	sender := &capturingSender{}
	emitter := events.NewEmitter(base.publisher, zap.NewNop())
	reset := NewResetService(base.repo, base.tokens, sender, emitter, time.Hour,
		"no-reply@idvault.local", "http://localhost:8080/reset-password", zap.NewNop())

	return &resetFixture{
		authFixture: base,
		sender:      sender,
		reset:       reset,
	}
}
