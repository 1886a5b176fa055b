package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/idvault/authserver/config"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	client   *mail.Client
	fromName string
	logger   *zap.Logger
}

// NewSMTPSender constructs an SMTPSender from config.
func NewSMTPSender(cfg config.EmailConfig, logger *zap.Logger) (*SMTPSender, error) {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		return nil, errors.New("smtp host is required")
	}

	opts := []mail.Option{mail.WithPort(cfg.SMTPPort)}
	if cfg.SMTPUser != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUser),
			mail.WithPassword(cfg.SMTPPass),
		)
	}

	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, err
	}

	return &SMTPSender{
		client:   client,
		fromName: cfg.FromName,
		logger:   logger,
	}, nil
}

// Send delivers a plain-text message. Any transport error is wrapped in
// ErrDelivery.
func (s *SMTPSender) Send(ctx context.Context, from, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.FromFormat(s.fromName, from); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		s.logger.Error("smtp send failed", zap.String("to", to), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}

// LogSender logs messages instead of delivering them. It backs local
// development when no SMTP relay is configured.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, from, to, subject, body string) error {
	s.logger.Info("email suppressed (no smtp relay configured)",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("subject", subject),
	)
	return nil
}
