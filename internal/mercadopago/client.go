// Package mercadopago is a thin client for the Mercado Pago REST API. The
// access token is tenant-owned and passed per call rather than held by the
// client.
package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reserva_backend/platform/apperr"
	"reserva_backend/platform/config"
	"reserva_backend/platform/logger"
)

// Payment is the subset of the gateway's payment resource the
// reconciliation flow reads.
type Payment struct {
	ID                int64   `json:"id"`
	Status            string  `json:"status"`
	ExternalReference string  `json:"external_reference"`
	TransactionAmount float64 `json:"transaction_amount"`
	DateApproved      string  `json:"date_approved"`
}

// Approved reports whether the gateway settled the payment.
func (p Payment) Approved() bool {
	return p.Status == "approved"
}

// PreferenceItem is one line of a hosted checkout session.
type PreferenceItem struct {
	Title     string  `json:"title"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// PreferenceRequest builds a hosted checkout session.
type PreferenceRequest struct {
	Items             []PreferenceItem `json:"items"`
	ExternalReference string           `json:"external_reference"`
	NotificationURL   string           `json:"notification_url"`
	Payer             *Payer           `json:"payer,omitempty"`
}

// Payer identifies the paying user at the gateway.
type Payer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Preference is the created checkout session.
type Preference struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

// NewClient creates a gateway client against the configured base URL.
func NewClient(cfg config.PaymentsConfig, log *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.GetGatewayAPIBaseURL(), "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// GetPayment fetches the full payment resource for a webhook notification.
func (c *Client) GetPayment(ctx context.Context, accessToken, paymentID string) (Payment, error) {
	url := fmt.Sprintf("%s/v1/payments/%s", c.baseURL, paymentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Payment{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return Payment{}, apperr.External(fmt.Sprintf("payment gateway request failed: %v", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return Payment{}, apperr.External(fmt.Sprintf("payment gateway returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(data))))
	}

	var payment Payment
	if err := json.NewDecoder(resp.Body).Decode(&payment); err != nil {
		return Payment{}, fmt.Errorf("decode gateway payment: %w", err)
	}
	return payment, nil
}

// CreatePreference creates a hosted checkout session tagged with the
// external reference so the webhook can correlate it back.
func (c *Client) CreatePreference(ctx context.Context, accessToken string, pref PreferenceRequest) (Preference, error) {
	body, err := json.Marshal(pref)
	if err != nil {
		return Preference{}, fmt.Errorf("marshal preference: %w", err)
	}

	url := c.baseURL + "/checkout/preferences"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return Preference{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return Preference{}, apperr.External(fmt.Sprintf("payment gateway request failed: %v", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return Preference{}, apperr.External(fmt.Sprintf("payment gateway returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(data))))
	}

	var created Preference
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return Preference{}, fmt.Errorf("decode gateway preference: %w", err)
	}

	c.log.Info("checkout preference created", "preference_id", created.ID)
	return created, nil
}
