package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"
)

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender envia correos via SMTP usando gomail.
type SMTPSender struct {
	dialer   dialer
	fromName string
}

func NewSMTPSender(host string, port int, username, password, fromName string, useTLS bool) (*SMTPSender, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if port == 0 {
		port = 587
	}
	d := gomail.NewDialer(host, port, username, password)
	if useTLS {
		d.SSL = port == 465
		d.TLSConfig = &tls.Config{ServerName: host}
	}
	return &SMTPSender{dialer: d, fromName: fromName}, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := validateMessage(msg); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.fromHeader(m, msg.From))
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	return s.dialer.DialAndSend(m)
}

// fromHeader respeta un From ya formateado ("Nombre <addr>") y solo agrega fromName a direcciones sueltas.
func (s *SMTPSender) fromHeader(m *gomail.Message, from string) string {
	if strings.Contains(from, "<") || strings.TrimSpace(s.fromName) == "" {
		return from
	}
	return m.FormatAddress(from, s.fromName)
}

func validateMessage(msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("to email is required")
	}
	if strings.TrimSpace(msg.From) == "" {
		return fmt.Errorf("from email is required")
	}
	return nil
}
