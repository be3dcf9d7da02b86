package email

import (
	"fmt"
	"net/smtp"
	"strings"
)

type Sender interface {
	Send(to string, subject string, textBody string, htmlBody string) error
}

// SMTPSender sends mail via plain SMTP, optionally authenticated. Works with
// Mailpit locally and with authenticated relays in production.
type SMTPSender struct {
	addr string
	from string
	auth smtp.Auth
}

func NewSMTPSender(host, port, from, username, password string) *SMTPSender {
	host = strings.TrimSpace(host)
	port = strings.TrimSpace(port)
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@mycontacts.local"
	}
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%s", host, port),
		from: from,
		auth: auth,
	}
}

func (s *SMTPSender) Send(to string, subject string, textBody string, htmlBody string) error {
	msg := buildMessage(s.from, to, subject, textBody, htmlBody)
	return smtp.SendMail(s.addr, s.auth, s.from, []string{to}, []byte(msg))
}

// buildMessage produces an RFC 5322 message: plain text only, HTML only, or
// multipart/alternative when both bodies are present.
func buildMessage(from, to, subject, textBody, htmlBody string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\n", from, to, subject)

	switch {
	case htmlBody == "":
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(textBody)
		b.WriteString("\r\n")
	case textBody == "":
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		b.WriteString(htmlBody)
		b.WriteString("\r\n")
	default:
		const boundary = "mycontacts-alt"
		fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, textBody)
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", boundary, htmlBody)
		fmt.Fprintf(&b, "--%s--\r\n", boundary)
	}
	return b.String()
}
