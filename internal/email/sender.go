package email

import (
	"context"
	"errors"
	"strings"
)

// Message es un correo transaccional ya renderizado.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Sender define la interfaz para envio de correos transaccionales.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) Send(_ context.Context, _ Message) error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}

type keyedSender struct {
	api      Sender
	apiKey   APIKeyFunc
	fallback Sender
}

// NewKeyedSender elige el transporte en cada envío: la API HTTP mientras apiKey
// devuelva una clave, y fallback (SMTP o deshabilitado) cuando esté vacía.
func NewKeyedSender(api Sender, apiKey APIKeyFunc, fallback Sender) Sender {
	if fallback == nil {
		fallback = NewDisabledSender("email sender not configured")
	}
	return &keyedSender{api: api, apiKey: apiKey, fallback: fallback}
}

func (s *keyedSender) Send(ctx context.Context, msg Message) error {
	if s.api != nil && s.apiKey != nil && strings.TrimSpace(s.apiKey()) != "" {
		return s.api.Send(ctx, msg)
	}
	return s.fallback.Send(ctx, msg)
}
