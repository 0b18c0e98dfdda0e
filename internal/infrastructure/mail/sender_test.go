package mail

import (
	"context"
	"errors"
	"testing"

	gomail "gopkg.in/gomail.v2"

	"PaperDigest/internal/config"
)

func testConfig() config.EmailConfig {
	return config.EmailConfig{
		Host:       "smtp.test",
		Port:       465,
		From:       "digest@test",
		Password:   "secret",
		Recipients: []string{"a@test", "b@test"},
		MaxRetries: 1,
	}
}

func TestNewSenderValidatesConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Password = ""
	if _, err := NewSender(cfg, nil); err == nil {
		t.Fatal("expected error for missing password")
	}

	cfg = testConfig()
	cfg.Recipients = nil
	if _, err := NewSender(cfg, nil); err == nil {
		t.Fatal("expected error for missing recipients")
	}

	if _, err := NewSender(testConfig(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSendBatchIsolatesRecipientFailures(t *testing.T) {
	t.Parallel()

	s, err := NewSender(testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}

	var sent []string
	s.send = func(m *gomail.Message) error {
		to := m.GetHeader("To")[0]
		sent = append(sent, to)
		if to == "a@test" {
			return errors.New("mailbox full")
		}
		return nil
	}

	stats := s.SendBatch(context.Background(), "Digest", "<p>hi</p>", "hi")

	if stats.Total != 2 || stats.Success != 1 || stats.Failed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.FailedReasons["a@test"] != "mailbox full" {
		t.Fatalf("reasons = %v", stats.FailedReasons)
	}
	// one retry for the failing recipient, one attempt for the healthy one
	if len(sent) != 3 {
		t.Fatalf("send attempts = %d", len(sent))
	}
}

func TestSendBatchRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Recipients = []string{"a@test"}
	s, err := NewSender(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	attempts := 0
	s.send = func(*gomail.Message) error {
		attempts++
		if attempts == 1 {
			return errors.New("transient")
		}
		return nil
	}

	stats := s.SendBatch(context.Background(), "Digest", "<p>hi</p>", "hi")
	if stats.Success != 1 || stats.Failed != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d", attempts)
	}
}
