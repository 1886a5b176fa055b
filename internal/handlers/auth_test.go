package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/idvault/authserver/internal/events"
	"github.com/idvault/authserver/internal/services"
	"github.com/idvault/authserver/internal/store"
	"github.com/idvault/authserver/internal/token"
	"github.com/idvault/authserver/types"
)

type fakeSender struct {
	mu     sync.Mutex
	bodies []string
}

func (s *fakeSender) Send(ctx context.Context, from, to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies = append(s.bodies, body)
	return nil
}

func (s *fakeSender) lastToken(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.bodies)

	body := s.bodies[len(s.bodies)-1]
	const marker = "Reset token: "
	idx := strings.Index(body, marker)
	require.GreaterOrEqual(t, idx, 0)
	rest := body[idx+len(marker):]
	if end := strings.IndexByte(rest, '\n'); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

func newTestRouter(t *testing.T) (*chi.Mux, *fakeSender) {
	t.Helper()

	logger := zap.NewNop()
	repo := store.NewMemoryUserRepository()
	tokens := token.NewIssuer("secret_key_test")
	emitter := events.NewEmitter(nil, logger)
	sender := &fakeSender{}

	authService := services.NewAuthService(repo, tokens, 24*time.Hour, emitter, nil, logger)
	resetService := services.NewResetService(repo, tokens, sender, emitter, time.Hour,
		"no-reply@idvault.local", "http://localhost:8080/reset-password", logger)
	userService := services.NewUserService(repo)

	handler := NewAuthHandler(authService, resetService, userService, tokens, nil)

	router := chi.NewRouter()
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, handler)
	})
	return router, sender
}

func doJSON(t *testing.T, router http.Handler, method, path string, payload any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(raw)
	} else {
		body = &bytes.Buffer{}
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func signUp(t *testing.T, router http.Handler, username, password string) types.Session {
	t.Helper()

	rec := doJSON(t, router, http.MethodPost, "/auth/sign-up", SignUpRequest{
		FirstName: "Ana",
		LastName:  "Lee",
		Username:  username,
		Password:  password,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var session types.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	return session
}

func TestSignUpAndSignIn(t *testing.T) {
	router, _ := newTestRouter(t)

	session := signUp(t, router, "ana@x.com", "secret1")
	assert.Equal(t, "ana@x.com", session.Username)
	assert.NotEmpty(t, session.AccessToken)

	rec := doJSON(t, router, http.MethodPost, "/auth/sign-in", SignInRequest{
		Username: "ana@x.com",
		Password: "secret1",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/auth/sign-in", SignInRequest{
		Username: "ana@x.com",
		Password: "wrong",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/auth/sign-in", SignInRequest{
		Username: "nobody@x.com",
		Password: "secret1",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignUpValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/auth/sign-up", SignUpRequest{
		FirstName: "Ana",
		LastName:  "Lee",
		Username:  "not-an-email",
		Password:  "secret1",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/auth/sign-up", SignUpRequest{
		FirstName: "Ana",
		LastName:  "Lee",
		Username:  "ana@x.com",
		Password:  "short",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignUpDuplicate(t *testing.T) {
	router, _ := newTestRouter(t)

	signUp(t, router, "ana@x.com", "secret1")

	rec := doJSON(t, router, http.MethodPost, "/auth/sign-up", SignUpRequest{
		FirstName: "Other",
		LastName:  "Person",
		Username:  "ana@x.com",
		Password:  "different",
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMe(t *testing.T) {
	router, _ := newTestRouter(t)

	session := signUp(t, router, "ana@x.com", "secret1")

	rec := doJSON(t, router, http.MethodGet, "/auth/me", nil, map[string]string{
		"Authorization": "Bearer " + session.AccessToken,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var profile UserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, "ana@x.com", profile.Username)
	assert.Equal(t, "Ana", profile.FirstName)

	rec = doJSON(t, router, http.MethodGet, "/auth/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/auth/me", nil, map[string]string{
		"Authorization": "Bearer not.a.token",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPasswordResetEndToEnd(t *testing.T) {
	router, sender := newTestRouter(t)

	signUp(t, router, "ana@x.com", "secret1")

	rec := doJSON(t, router, http.MethodPost, "/auth/request-password-reset", RequestPasswordResetRequest{
		Email: "nobody@x.com",
	}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/auth/request-password-reset", RequestPasswordResetRequest{
		Email: "ana@x.com",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resetToken := sender.lastToken(t)

	rec = doJSON(t, router, http.MethodPost, "/auth/reset-password", ResetPasswordRequest{
		Username:    "ana@x.com",
		NewPassword: "newpass1",
		ResetToken:  "forged",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/auth/reset-password", ResetPasswordRequest{
		Username:    "ana@x.com",
		NewPassword: "newpass1",
		ResetToken:  resetToken,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The consumed token cannot be replayed.
	rec = doJSON(t, router, http.MethodPost, "/auth/reset-password", ResetPasswordRequest{
		Username:    "ana@x.com",
		NewPassword: "another2",
		ResetToken:  resetToken,
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/auth/sign-in", SignInRequest{
		Username: "ana@x.com",
		Password: "newpass1",
	}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/auth/sign-in", SignInRequest{
		Username: "ana@x.com",
		Password: "secret1",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
