package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/idvault/authserver/internal/email"
	"github.com/idvault/authserver/internal/oauth"
	"github.com/idvault/authserver/internal/services"
	"github.com/idvault/authserver/internal/token"
)

const minPasswordLength = 6

const oauthStateCookie = "oauth_state"

// AuthHandler exposes the identity and credential lifecycle endpoints.
type AuthHandler struct {
	authService  *services.AuthService
	resetService *services.ResetService
	userService  *services.UserService
	tokens       *token.Issuer
	google       *oauth.GoogleClient
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
// The google client may be nil when OAuth federation is not configured.
func NewAuthHandler(authService *services.AuthService, resetService *services.ResetService, userService *services.UserService, tokens *token.Issuer, google *oauth.GoogleClient) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		resetService: resetService,
		userService:  userService,
		tokens:       tokens,
		google:       google,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler) {
	r.Post("/sign-up", handler.SignUp)
	r.Post("/sign-in", handler.SignIn)
	r.With(handler.RequireAuth).Get("/me", handler.Me)
	r.Post("/request-password-reset", handler.RequestPasswordReset)
	r.Post("/reset-password", handler.ResetPassword)

	if handler.google != nil {
		r.Get("/google", handler.GoogleAuth)
		r.Get("/google-redirect", handler.GoogleRedirect)
	}
}

// RequireAuth enforces JWT authentication and injects the subject into
// the request context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		claims, err := h.tokens.Verify(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), contextUserIDKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SignUp creates a new account and returns its session.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Username = strings.TrimSpace(req.Username)
	if req.FirstName == "" || req.LastName == "" {
		writeError(w, http.StatusBadRequest, "first name and last name are required")
		return
	}
	if !validEmail(req.Username) {
		writeError(w, http.StatusBadRequest, "username must be a valid email address")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "password must be at least 6 characters long")
		return
	}

	session, err := h.authService.Signup(r.Context(), req.FirstName, req.LastName, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrDuplicateUser) {
			writeError(w, http.StatusConflict, "user already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// SignIn verifies credentials and returns a session.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	user, err := h.authService.ValidateUser(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	session, err := h.authService.SignIn(r.Context(), *user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.userService.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	writeJSON(w, http.StatusOK, UserResponse{
		ID:        user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Username:  user.Username,
	})
}

// GoogleAuth starts the Google OAuth2 login flow.
func (h *AuthHandler) GoogleAuth(w http.ResponseWriter, r *http.Request) {
	state, err := randomState()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to start oauth flow")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.google.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// GoogleRedirect completes the Google OAuth2 flow and federates the
// returned identity into a local account.
func (h *AuthHandler) GoogleRedirect(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		writeError(w, http.StatusUnauthorized, "invalid oauth state")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	identity, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "oauth exchange failed")
		return
	}

	session, err := h.authService.Federate(r.Context(), identity)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to federate identity")
		return
	}
	if session == nil {
		writeError(w, http.StatusUnauthorized, "no profile returned by provider")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// RequestPasswordReset starts the password-reset flow for an account.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req RequestPasswordResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if !validEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "a valid email address is required")
		return
	}

	message, err := h.resetService.RequestReset(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, email.ErrDelivery):
			writeError(w, http.StatusBadGateway, "failed to send reset email")
		default:
			writeError(w, http.StatusInternalServerError, "failed to request password reset")
		}
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: message})
}

// ResetPassword consumes a reset token and sets a new password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.ResetToken == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "password must be at least 6 characters long")
		return
	}

	message, err := h.resetService.ResetPassword(r.Context(), req.Username, req.NewPassword, req.ResetToken)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrResetTokenExpired):
			writeError(w, http.StatusUnauthorized, "reset token expired")
		case errors.Is(err, services.ErrInvalidResetToken):
			writeError(w, http.StatusUnauthorized, "invalid reset token")
		default:
			writeError(w, http.StatusInternalServerError, "failed to reset password")
		}
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: message})
}

type SignUpRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

type SignInRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RequestPasswordResetRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Username    string `json:"username"`
	NewPassword string `json:"new_password"`
	ResetToken  string `json:"reset_token"`
}

// UserResponse is the profile shape returned by /me. The password hash
// and reset fields never leave the service.
type UserResponse struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

func validEmail(address string) bool {
	if address == "" {
		return false
	}
	_, err := mail.ParseAddress(address)
	return err == nil
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		return "", errors.New("invalid authorization")
	}
	return tokenString, nil
}
