package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/idvault/authserver/config"
	"github.com/idvault/authserver/internal/avatars"
	"github.com/idvault/authserver/internal/db"
	"github.com/idvault/authserver/internal/email"
	"github.com/idvault/authserver/internal/events"
	"github.com/idvault/authserver/internal/handlers"
	"github.com/idvault/authserver/internal/oauth"
	"github.com/idvault/authserver/internal/services"
	"github.com/idvault/authserver/internal/store"
	"github.com/idvault/authserver/internal/token"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	emitter    *events.Emitter
	logger     *zap.Logger
}

// New constructs a Server with all dependencies wired.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if strings.TrimSpace(cfg.JWT.Secret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	tokens := token.NewIssuer(cfg.JWT.Secret)

	sender, err := newEmailSender(cfg, logger)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	emitter, err := newEventEmitter(ctx, cfg, logger)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	mirror, err := newAvatarMirror(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		_ = emitter.Close()
		return nil, err
	}

	authService := services.NewAuthService(userRepo, tokens, cfg.JWT.SessionTTL, emitter, mirror, logger)
	resetService := services.NewResetService(userRepo, tokens, sender, emitter, cfg.JWT.ResetTokenTTL, cfg.Email.FromAddress, cfg.Email.ResetURL, logger)
	userService := services.NewUserService(userRepo)

	var google *oauth.GoogleClient
	if cfg.OAuth.GoogleClientID != "" {
		google, err = oauth.NewGoogleClient(cfg.OAuth)
		if err != nil {
			_ = dbConn.Close()
			_ = emitter.Close()
			return nil, err
		}
	}

	authHandler := handlers.NewAuthHandler(authService, resetService, userService, tokens, google)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		emitter:    emitter,
		logger:     logger,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("server listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.emitter != nil {
		_ = s.emitter.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}

func newEmailSender(cfg config.Config, logger *zap.Logger) (email.Sender, error) {
	if cfg.Email.SMTPUser == "" && cfg.Email.SMTPHost == "localhost" {
		return email.NewLogSender(logger), nil
	}
	return email.NewSMTPSender(cfg.Email, logger)
}

func newEventEmitter(ctx context.Context, cfg config.Config, logger *zap.Logger) (*events.Emitter, error) {
	switch cfg.Events.Backend {
	case "":
		return events.NewEmitter(nil, logger), nil
	case "rabbitmq":
		publisher, err := events.NewRabbitMQPublisher(cfg.Events.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return events.NewEmitter(publisher, logger), nil
	case "pubsub":
		publisher, err := events.NewPubSubPublisher(ctx, cfg.Events.PubSub)
		if err != nil {
			return nil, err
		}
		return events.NewEmitter(publisher, logger), nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Events.Backend)
	}
}

func newAvatarMirror(ctx context.Context, cfg config.Config) (*avatars.Mirror, error) {
	var backend avatars.Store
	var err error

	switch cfg.Avatars.Backend {
	case "":
		return nil, nil
	case "minio":
		backend, err = avatars.NewMinioStore(cfg.Avatars.Minio)
	case "gcs":
		backend, err = avatars.NewGCSStore(ctx, cfg.Avatars.GCS)
	default:
		return nil, fmt.Errorf("unknown avatars backend %q", cfg.Avatars.Backend)
	}
	if err != nil {
		return nil, err
	}

	if err := backend.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return avatars.NewMirror(backend), nil
}
