package mail

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gomail "gopkg.in/gomail.v2"

	"PaperDigest/internal/config"
	"PaperDigest/internal/domain"
	"PaperDigest/internal/ports"
)

// Sender delivers digests over SMTP, one message per recipient so a bad
// address cannot sink the whole batch.
type Sender struct {
	from       string
	recipients []string
	maxRetries int
	sendDelay  time.Duration
	logger     *slog.Logger

	send func(m *gomail.Message) error
}

var _ ports.DigestSender = (*Sender)(nil)

// NewSender validates SMTP settings and builds a dialer. Port 465 switches
// to implicit TLS, which most Chinese mail providers require.
func NewSender(cfg config.EmailConfig, logger *slog.Logger) (*Sender, error) {
	if cfg.Host == "" || cfg.From == "" || cfg.Password == "" {
		return nil, fmt.Errorf("email config incomplete: host, from and password are required")
	}
	if len(cfg.Recipients) == 0 {
		return nil, fmt.Errorf("email config has no recipients")
	}

	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.From, cfg.Password)
	if cfg.UseSSL || cfg.Port == 465 {
		dialer.SSL = true
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &Sender{
		from:       cfg.From,
		recipients: cfg.Recipients,
		maxRetries: maxRetries,
		sendDelay:  time.Duration(cfg.SendDelaySec) * time.Second,
		logger:     logger,
		send: func(m *gomail.Message) error {
			return dialer.DialAndSend(m)
		},
	}, nil
}

// SendBatch delivers the digest to every recipient. Failures are collected
// per recipient and never abort the batch.
func (s *Sender) SendBatch(ctx context.Context, subject, html, text string) domain.DeliveryStats {
	stats := domain.DeliveryStats{
		Total:         len(s.recipients),
		FailedReasons: map[string]string{},
	}

	for i, recipient := range s.recipients {
		if err := ctx.Err(); err != nil {
			stats.Failed++
			stats.FailedReasons[recipient] = err.Error()
			continue
		}

		if err := s.sendOne(ctx, recipient, subject, html, text); err != nil {
			s.warn("digest delivery failed", "recipient", recipient, "error", err)
			stats.Failed++
			stats.FailedReasons[recipient] = err.Error()
		} else {
			s.info("digest delivered", "recipient", recipient)
			stats.Success++
		}

		if i < len(s.recipients)-1 && s.sendDelay > 0 {
			sleep(ctx, s.sendDelay)
		}
	}

	return stats
}

func (s *Sender) sendOne(ctx context.Context, recipient, subject, html, text string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", text)
	m.AddAlternative("text/html", html)

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.send(m); err != nil {
			lastErr = err
			if attempt < s.maxRetries {
				s.warn("send retry", "recipient", recipient, "attempt", attempt+1, "error", err)
				sleep(ctx, time.Duration(attempt+1)*time.Second)
			}
			continue
		}
		return nil
	}

	return lastErr
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (s *Sender) info(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Sender) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
