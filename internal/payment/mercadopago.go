// Package payment talks to the payment provider: creating PIX charges and
// watching them until a terminal status or timeout.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/gatekeep/internal/model"
)

const defaultBaseURL = "https://api.mercadopago.com"

// pixValidity is how long a generated charge stays payable.
const pixValidity = 30 * time.Minute

// Client is a Mercado Pago API client for PIX payments.
type Client struct {
	accessToken string
	baseURL     string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithBaseURL(u string) Option {
	return func(cl *Client) {
		cl.baseURL = u
	}
}

func NewClient(accessToken string, opts ...Option) *Client {
	c := &Client{
		accessToken: accessToken,
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the access token is set.
func (c *Client) Configured() bool {
	return c.accessToken != ""
}

type pixPaymentRequest struct {
	TransactionAmount float64  `json:"transaction_amount"`
	Description       string   `json:"description"`
	PaymentMethodID   string   `json:"payment_method_id"`
	Payer             pixPayer `json:"payer"`
}

type pixPayer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
}

type pixPaymentResponse struct {
	ID                 int64  `json:"id"`
	Status             string `json:"status"`
	PointOfInteraction *struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

// CreatePix creates a PIX charge for the given amount and returns the
// renderable charge artifact. The principal only identifies the payer to the
// provider; Telegram users have no email, so a synthetic one is sent.
func (c *Client) CreatePix(ctx context.Context, amount decimal.Decimal, description string, principal int64) (*model.PixCharge, error) {
	amt, _ := amount.Float64()
	payload := pixPaymentRequest{
		TransactionAmount: amt,
		Description:       description,
		PaymentMethodID:   "pix",
		Payer: pixPayer{
			Email:     fmt.Sprintf("%d@telegram.local", principal),
			FirstName: fmt.Sprintf("Cliente_%d", principal),
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("X-Idempotency-Key", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("mercado pago API error: status %d", resp.StatusCode)
	}

	var pr pixPaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode payment response: %w", err)
	}
	if pr.PointOfInteraction == nil {
		return nil, fmt.Errorf("payment response missing pix data")
	}

	return &model.PixCharge{
		TransactionID: strconv.FormatInt(pr.ID, 10),
		QRCodeBase64:  pr.PointOfInteraction.TransactionData.QRCodeBase64,
		QRCodeText:    pr.PointOfInteraction.TransactionData.QRCode,
		ExpiresAt:     time.Now().Add(pixValidity),
	}, nil
}

// Status fetches the provider status for a transaction. Transport and API
// failures come back as errors; an unrecognized provider status maps to
// StatusError rather than failing.
func (c *Client) Status(ctx context.Context, transactionID string) (model.PaymentStatus, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/v1/payments/"+transactionID, nil)
	if err != nil {
		return model.StatusError, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.StatusError, fmt.Errorf("get payment status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return model.StatusError, fmt.Errorf("mercado pago API error: status %d", resp.StatusCode)
	}

	var pr pixPaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return model.StatusError, fmt.Errorf("decode status response: %w", err)
	}

	switch model.PaymentStatus(pr.Status) {
	case model.StatusPending, model.StatusApproved, model.StatusRejected, model.StatusCancelled:
		return model.PaymentStatus(pr.Status), nil
	case "in_process", "authorized":
		// Provider-side intermediate states; still awaiting a terminal outcome.
		return model.StatusPending, nil
	default:
		return model.StatusError, nil
	}
}
