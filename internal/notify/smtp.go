package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mernacademy/student-auth/internal/config"
)

// sendMail is replaced in tests.
var sendMail = smtp.SendMail

// SMTPNotifier sends HTML mail through an SMTP relay.
type SMTPNotifier struct {
	addr string
	auth smtp.Auth
	from string
	now  func() time.Time
}

func NewSMTPNotifier(cfg config.NotificationConfig) *SMTPNotifier {
	var auth smtp.Auth
	if cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return &SMTPNotifier{
		addr: net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort)),
		auth: auth,
		from: headerSafe(cfg.EmailFrom),
		now:  time.Now,
	}
}

func (n *SMTPNotifier) Send(ctx context.Context, recipient, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to := headerSafe(recipient)
	msg := n.message(to, subject, body)
	if err := sendMail(n.addr, n.auth, n.from, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (n *SMTPNotifier) message(to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + n.from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + headerSafe(subject) + "\r\n")
	b.WriteString("Date: " + n.now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("Message-ID: <" + uuid.NewString() + "@" + domainOf(n.from) + ">\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return strings.Trim(addr[i+1:], "> ")
	}
	return "localhost"
}
