package mail

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestNewSenderFallsBackToLog(t *testing.T) {
	if _, ok := NewSender(SMTPConfig{}).(LogSender); !ok {
		t.Error("expected LogSender without host")
	}
	if _, ok := NewSender(SMTPConfig{Host: "smtp.example.com", Port: 587}).(*SMTPSender); !ok {
		t.Error("expected SMTPSender with host")
	}
}

func TestBuildMessage(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "okr@example.com"})
	msg := s.build(Message{To: "ada@example.com", Subject: "Hello", Text: "plain body", HTML: "<p>html body</p>"})

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"From: okr@example.com", "To: ada@example.com", "Subject: Hello", "plain body", "<p>html body</p>", "multipart/alternative"} {
		if !strings.Contains(out, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestSendHonoursCancelledContext(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Send(ctx, Message{To: "a@b.co"}); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestLogSender(t *testing.T) {
	if err := (LogSender{}).Send(context.Background(), Message{To: "a@b.co", Subject: "x"}); err != nil {
		t.Errorf("LogSender.Send: %v", err)
	}
}
