package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/AnuragDani/subscription-charger/internal/models"
)

// Client charges stored subscription tokens through the payment gateway
type Client struct {
	baseURL    string
	httpClient *http.Client
	name       string
}

type ChargeRequest struct {
	TransactionID     string `json:"transaction_id"`
	IdempotencyKey    string `json:"idempotency_key"`
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
	SubscriptionToken string `json:"subscription_token"`
}

type ChargeResponse struct {
	Status               string `json:"status"`
	BankTransactionID    string `json:"bank_transaction_id,omitempty"`
	GatewayTransactionID string `json:"gateway_transaction_id,omitempty"`
	ErrorMessage         string `json:"error_message,omitempty"`
	ErrorMessageReal     string `json:"error_message_real,omitempty"`
}

// Wire statuses returned by the gateway
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFail    = "fail"
)

// GatewayError represents a transport-level failure talking to the gateway
type GatewayError struct {
	Code       string
	Message    string
	StatusCode int
	Gateway    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Gateway, e.Code, e.Message)
}

// NewClient creates a new gateway client
func NewClient(name, baseURL string, timeout time.Duration) *Client {
	return &Client{
		name:    name,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Charge sends one charge request for the transaction.
// A non-nil error always comes with an Unknown response describing it, so callers
// that only look at the response still take the failure path.
func (c *Client) Charge(ctx context.Context, txn *models.PayTransaction, subscriptionToken string) (*models.ChargeResponse, error) {
	req := &ChargeRequest{
		TransactionID:     txn.ID,
		IdempotencyKey:    txn.IdempotencyKey,
		Amount:            txn.Amount,
		Currency:          txn.Currency,
		SubscriptionToken: subscriptionToken,
	}

	var wire ChargeResponse
	statusCode, err := c.makeRequest(ctx, http.MethodPost, "/charge", req, &wire)
	if err != nil {
		// only a decline survives an error status; anything else is ambiguous
		var gwErr *GatewayError
		if errors.As(err, &gwErr) && statusCode >= 400 && classify(wire.Status) == models.OutcomeFail {
			return toModel(models.OutcomeFail, &wire), nil
		}
		return &models.ChargeResponse{
			Outcome:         models.OutcomeUnknown,
			ErrorMessage:    "Gateway response is unknown",
			ErrorMessageRaw: err.Error(),
		}, err
	}

	outcome := classify(wire.Status)
	resp := toModel(outcome, &wire)
	if outcome == models.OutcomeUnknown && resp.ErrorMessageRaw == "" {
		resp.ErrorMessageRaw = fmt.Sprintf("unrecognised gateway status %q", wire.Status)
	}
	return resp, nil
}

// Name returns the gateway name recorded on transactions
func (c *Client) Name() string {
	return c.name
}

func classify(status string) models.Outcome {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case StatusPending:
		return models.OutcomePending
	case StatusSuccess:
		return models.OutcomeSuccess
	case StatusFail:
		return models.OutcomeFail
	default:
		return models.OutcomeUnknown
	}
}

func toModel(outcome models.Outcome, wire *ChargeResponse) *models.ChargeResponse {
	return &models.ChargeResponse{
		Outcome:              outcome,
		BankTransactionID:    wire.BankTransactionID,
		GatewayTransactionID: wire.GatewayTransactionID,
		ErrorMessage:         wire.ErrorMessage,
		ErrorMessageRaw:      wire.ErrorMessageReal,
	}
}

// makeRequest is a helper method for making HTTP requests
func (c *Client) makeRequest(ctx context.Context, method, path string, body interface{}, response interface{}) (int, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		code := "NETWORK_ERROR"
		if isTimeout(ctx, err) {
			code = "TIMEOUT"
		}
		return 0, &GatewayError{
			Code:    code,
			Message: fmt.Sprintf("Network error: %v", err),
			Gateway: c.name,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		if response != nil {
			_ = json.Unmarshal(respBody, response)
		}

		return resp.StatusCode, &GatewayError{
			Code:       getErrorCodeFromStatus(resp.StatusCode),
			Message:    string(respBody),
			StatusCode: resp.StatusCode,
			Gateway:    c.name,
		}
	}

	if response != nil {
		if err := json.Unmarshal(respBody, response); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return resp.StatusCode, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// getErrorCodeFromStatus maps HTTP status codes to error codes
func getErrorCodeFromStatus(statusCode int) string {
	switch statusCode {
	case 400:
		return "BAD_REQUEST"
	case 401:
		return "UNAUTHORIZED"
	case 402:
		return "PAYMENT_REQUIRED"
	case 404:
		return "NOT_FOUND"
	case 408:
		return "TIMEOUT"
	case 422:
		return "UNPROCESSABLE_ENTITY"
	case 429:
		return "RATE_LIMITED"
	case 500:
		return "INTERNAL_SERVER_ERROR"
	case 502:
		return "BAD_GATEWAY"
	case 503:
		return "SERVICE_UNAVAILABLE"
	case 504:
		return "GATEWAY_TIMEOUT"
	default:
		return "UNKNOWN_ERROR"
	}
}
