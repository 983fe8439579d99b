// Package chat sends text messages through the external chat platform.
// The API key is tenant-owned and passed per call.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reserva_backend/platform/config"
	"reserva_backend/platform/logger"
	"reserva_backend/platform/phone"
)

type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

type sendTextRequest struct {
	Subscriber string `json:"subscriber"`
	Text       string `json:"text"`
}

// NewClient creates a chat client, or nil when the integration is not
// configured. A nil client silently drops messages.
func NewClient(cfg config.ChatConfig, log *logger.Logger) *Client {
	if !cfg.IsChatEnabled() {
		return nil
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.GetChatAPIBaseURL(), "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// SendText pushes one text message to a chat subscriber. Subscriber IDs
// that look like phone numbers are normalized to E.164 digits first.
func (c *Client) SendText(ctx context.Context, apiKey, subscriberID, text string) error {
	if c == nil {
		return nil
	}
	if apiKey == "" {
		return fmt.Errorf("chat api key is not configured")
	}

	payload := sendTextRequest{
		Subscriber: normalizeSubscriber(subscriberID),
		Text:       text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal chat payload: %w", err)
	}

	url := fmt.Sprintf("%s/subscriber/send_message", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-ACCESS-TOKEN", apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chat request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chat service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	c.log.Info("chat message sent", "subscriber", payload.Subscriber)
	return nil
}

func normalizeSubscriber(id string) string {
	trimmed := strings.TrimSpace(id)
	if strings.HasPrefix(trimmed, "+") || isDigits(trimmed) {
		return strings.TrimPrefix(phone.NormalizeE164(trimmed), "+")
	}
	return trimmed
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
