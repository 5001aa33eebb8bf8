package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrAPIKeyMissing se devuelve cuando el proveedor no tiene API key configurada.
var ErrAPIKeyMissing = errors.New("email provider api key not configured")

// APIKeyFunc entrega la API key vigente; se consulta en cada envío.
type APIKeyFunc func() string

// HTTPSender envía correos a través de una API HTTP compatible con Resend.
type HTTPSender struct {
	baseURL string
	apiKey  APIKeyFunc
	client  *http.Client
}

func NewHTTPSender(baseURL string, apiKey APIKeyFunc, httpClient *http.Client) *HTTPSender {
	if baseURL == "" {
		baseURL = "https://api.resend.com"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPSender{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  httpClient,
	}
}

func (s *HTTPSender) Send(ctx context.Context, msg Message) error {
	if err := validateMessage(msg); err != nil {
		return err
	}
	key := ""
	if s.apiKey != nil {
		key = strings.TrimSpace(s.apiKey())
	}
	if key == "" {
		return ErrAPIKeyMissing
	}

	bodyBytes, err := json.Marshal(sendRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/emails", bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr errorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("email api error: status=%d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("email api error: status=%d", resp.StatusCode)
	}
	return nil
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type errorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}
