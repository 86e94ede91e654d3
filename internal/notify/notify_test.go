package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mernacademy/student-auth/internal/config"
)

func TestNew_SelectsDriver(t *testing.T) {
	logger := zap.NewNop()

	n, err := New(config.NotificationConfig{Driver: config.NotifyDriverLog}, logger)
	require.NoError(t, err)
	assert.IsType(t, &LogNotifier{}, n)

	n, err = New(config.NotificationConfig{Driver: config.NotifyDriverSMTP, SMTPHost: "mail", SMTPPort: 25}, logger)
	require.NoError(t, err)
	assert.IsType(t, &SMTPNotifier{}, n)

	n, err = New(config.NotificationConfig{Driver: config.NotifyDriverWebhook, WebhookURL: "http://x"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &WebhookNotifier{}, n)

	_, err = New(config.NotificationConfig{Driver: "pigeon"}, logger)
	assert.Error(t, err)
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	require.NoError(t, n.Send(context.Background(), "ann@x.com", "Verify", "<a>link</a>"))

	entries := logs.FilterMessage("notification").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "ann@x.com", entries[0].ContextMap()["recipient"])
}

func TestSMTPNotifier_BuildsMessage(t *testing.T) {
	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  string
	)
	orig := sendMail
	sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		return nil
	}
	t.Cleanup(func() { sendMail = orig })

	n := NewSMTPNotifier(config.NotificationConfig{
		SMTPHost:     "smtp.example.com",
		SMTPPort:     587,
		SMTPUsername: "user",
		SMTPPassword: "pass",
		EmailFrom:    "noreply@example.com",
	})
	n.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	err := n.Send(context.Background(), "ann@x.com\r\nBcc: evil@x.com", "Verify\nyour email", "<p>hi</p>")
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "noreply@example.com", gotFrom)
	assert.Equal(t, []string{"ann@x.comBcc: evil@x.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Verifyyour email\r\n")
	assert.Contains(t, gotMsg, "Content-Type: text/html")
	assert.NotContains(t, gotMsg, "\r\nBcc:")
	assert.True(t, strings.HasSuffix(gotMsg, "\r\n\r\n<p>hi</p>"))
}

func TestSMTPNotifier_PropagatesFailure(t *testing.T) {
	orig := sendMail
	sendMail = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("relay refused") }
	t.Cleanup(func() { sendMail = orig })

	n := NewSMTPNotifier(config.NotificationConfig{SMTPHost: "h", SMTPPort: 25, EmailFrom: "a@b.c"})
	err := n.Send(context.Background(), "ann@x.com", "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay refused")
}

func TestWebhookNotifier(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, 2*time.Second)
	require.NoError(t, n.Send(context.Background(), "ann@x.com", "Reset", "link"))
	assert.Equal(t, webhookPayload{Recipient: "ann@x.com", Subject: "Reset", Body: "link"}, got)
}

func TestWebhookNotifier_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, 2*time.Second)
	err := n.Send(context.Background(), "ann@x.com", "Reset", "link")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
