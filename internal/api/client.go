// Package api is the REST client for the shipment backend. The bearer
// token is read from the credential store at send time, so a token
// refresh is picked up by the next request without rebuilding the
// client.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lotirium/blockchain-supply-chain-fintech/internal/domain"
	"github.com/lotirium/blockchain-supply-chain-fintech/internal/retry"
	"go.uber.org/zap"
)

// TokenSource yields the current auth token, empty when logged out.
type TokenSource interface {
	Token() string
}

type Client struct {
	baseURL string
	httpc   *http.Client
	tokens  TokenSource
	exec    *retry.Executor
	logger  *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, tokens TokenSource, exec *retry.Executor, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		tokens:  tokens,
		exec:    exec,
		logger:  logger,
	}
}

type staticToken string

func (t staticToken) Token() string { return string(t) }

// WithToken returns a copy of the client bound to a fixed token. Used
// for the best-effort logout call, which must authenticate with the
// token that was just cleared from the store.
func (c *Client) WithToken(token string) *Client {
	cc := *c
	cc.tokens = staticToken(token)
	return &cc
}

func (c *Client) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResponse, error) {
	var out domain.AuthResponse
	if err := c.doRetry(ctx, http.MethodPost, "/api/auth/login", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResponse, error) {
	var out domain.AuthResponse
	if err := c.doRetry(ctx, http.MethodPost, "/api/auth/register", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.doRetry(ctx, http.MethodPost, "/api/auth/logout", struct{}{}, nil)
}

func (c *Client) GetProfile(ctx context.Context) (*domain.AuthResponse, error) {
	var out domain.AuthResponse
	if err := c.doRetry(ctx, http.MethodGet, "/api/profile", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProfile(ctx context.Context, req domain.UpdateProfileRequest) (*domain.AuthResponse, error) {
	var out domain.AuthResponse
	if err := c.doRetry(ctx, http.MethodPut, "/api/profile", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetUserOrders(ctx context.Context) ([]domain.Order, error) {
	var out []domain.Order
	if err := c.do(ctx, http.MethodGet, "/api/orders/user", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var out domain.Order
	if err := c.do(ctx, http.MethodGet, "/api/orders/"+orderID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VerifyQRCode(ctx context.Context, qrData string) (*domain.VerificationResponse, error) {
	var out domain.VerificationResponse
	if err := c.do(ctx, http.MethodPost, "/api/qrcode/verify", domain.VerifyQRRequest{QRData: qrData}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateOrderStatus is retried; the generated idempotency key makes the
// re-invocation safe on the server side.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (*domain.Order, error) {
	req := domain.UpdateOrderStatusRequest{
		Status:         status,
		IdempotencyKey: uuid.New().String(),
	}
	var out domain.Order
	if err := c.doRetry(ctx, http.MethodPut, "/api/orders/"+orderID+"/status", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doRetry(ctx context.Context, method, path string, body, out any) error {
	return c.send(ctx, method, path, body, out, true)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	return c.send(ctx, method, path, body, out, false)
}

func (c *Client) send(ctx context.Context, method, path string, body, out any, retryable bool) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	op := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		// Token is resolved per request, not per client.
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return c.httpc.Do(req)
	}

	var resp *http.Response
	var err error
	if retryable {
		resp, err = c.exec.Do(ctx, op)
	} else {
		resp, err = op()
	}
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Message: errorMessage(resp.StatusCode, data)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			c.logger.Warn("Malformed response body",
				zap.String("path", path),
				zap.Int("status", resp.StatusCode),
				zap.Error(err))
			return ErrMalformedResponse
		}
	}
	return nil
}

func errorMessage(code int, body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return http.StatusText(code)
}
