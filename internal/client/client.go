// Package client talks to the drawer API over HTTP and maps responses back
// onto the domain error taxonomy.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"posdrawer/backend/internal/domain"
)

const defaultTimeout = 15 * time.Second

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response. It unwraps to the matching domain sentinel
// so callers can use errors.Is regardless of transport.
type APIError struct {
	Status  int
	Code    string
	Field   string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case "validation", "bad_request":
		return domain.ErrValidation
	case "conflict":
		return domain.ErrConflict
	case "invalid_state":
		return domain.ErrInvalidState
	case "not_found":
		return domain.ErrNotFound
	case "unavailable":
		return domain.ErrTransient
	}
	switch {
	case e.Status == http.StatusUnprocessableEntity, e.Status == http.StatusBadRequest:
		return domain.ErrValidation
	case e.Status == http.StatusConflict:
		return domain.ErrConflict
	case e.Status == http.StatusNotFound:
		return domain.ErrNotFound
	case e.Status >= 500:
		return domain.ErrTransient
	}
	return nil
}

// Login stores the issued token on the client for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (domain.LoginResponse, error) {
	var resp domain.LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	c.token = resp.AccessToken
	return resp, nil
}

func (c *Client) StartSession(ctx context.Context, req domain.SessionStartRequest) (domain.Session, error) {
	var resp domain.SessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", req, &resp); err != nil {
		return domain.Session{}, err
	}
	return resp.Session, nil
}

func (c *Client) GetActiveSession(ctx context.Context, cashierID, outletID int64) (domain.Session, error) {
	query := url.Values{}
	if cashierID > 0 {
		query.Set("cashier_id", strconv.FormatInt(cashierID, 10))
	}
	query.Set("outlet_id", strconv.FormatInt(outletID, 10))

	var resp domain.SessionResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions/active?"+query.Encode(), nil, &resp); err != nil {
		return domain.Session{}, err
	}
	return resp.Session, nil
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	var resp domain.SessionResponse
	if err := c.do(ctx, http.MethodGet, sessionPath(sessionID, ""), nil, &resp); err != nil {
		return domain.Session{}, err
	}
	return resp.Session, nil
}

func (c *Client) CloseSession(ctx context.Context, sessionID string, req domain.SessionCloseRequest) (domain.SessionCloseResponse, error) {
	var resp domain.SessionCloseResponse
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "/close"), req, &resp); err != nil {
		return domain.SessionCloseResponse{}, err
	}
	return resp, nil
}

func (c *Client) RecordTransaction(ctx context.Context, sessionID string, req domain.TransactionCreateRequest) (domain.Transaction, error) {
	var resp domain.TransactionResponse
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "/transactions"), req, &resp); err != nil {
		return domain.Transaction{}, err
	}
	return resp.Transaction, nil
}

func (c *Client) ListTransactions(ctx context.Context, sessionID string) ([]domain.Transaction, error) {
	var resp domain.TransactionListResponse
	if err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "/transactions"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Transactions, nil
}

func (c *Client) CurrentBalance(ctx context.Context, sessionID string) (domain.BalanceResponse, error) {
	var resp domain.BalanceResponse
	if err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "/balance"), nil, &resp); err != nil {
		return domain.BalanceResponse{}, err
	}
	return resp, nil
}

func (c *Client) Aggregates(ctx context.Context, sessionID string) (domain.AggregatesResponse, error) {
	var resp domain.AggregatesResponse
	if err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "/aggregates"), nil, &resp); err != nil {
		return domain.AggregatesResponse{}, err
	}
	return resp, nil
}

func (c *Client) Reconcile(ctx context.Context, sessionID string, req domain.ReconcileRequest) (domain.Reconciliation, error) {
	var resp struct {
		Reconciliation domain.Reconciliation `json:"reconciliation"`
	}
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "/reconcile"), req, &resp); err != nil {
		return domain.Reconciliation{}, err
	}
	return resp.Reconciliation, nil
}

func sessionPath(sessionID, suffix string) string {
	return "/api/v1/sessions/" + url.PathEscape(strings.TrimSpace(sessionID)) + suffix
}

// do performs exactly one request. Nothing is retried; a failed call is
// reported and the caller decides whether to try again.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return domain.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.Transient(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
		Field string `json:"field"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Error != "" {
			apiErr.Message = body.Error
		}
		apiErr.Code = body.Code
		apiErr.Field = body.Field
	}
	return apiErr
}

// IsUnauthorized reports a missing, expired or rejected token.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}
