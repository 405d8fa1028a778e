// Package apiclient is the HTTP client the CLI uses to talk to a running
// mivvod daemon.
package apiclient

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
)

// ErrDaemonUnavailable marks transport-level failures reaching the daemon.
var ErrDaemonUnavailable = errors.New("daemon unavailable")

// Client calls the daemon's REST API on behalf of one owner account.
type Client struct {
	base    *url.URL
	token   string
	ownerID string
	http    *http.Client
}

// New builds a client for the given bind address or base URL.
func New(bind, token, ownerID string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, errors.New("api address required")
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api address: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""

	return &Client{
		base:    base,
		token:   strings.TrimSpace(token),
		ownerID: strings.TrimSpace(ownerID),
		http:    &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Health fetches the daemon health summary. It never requires a token.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var health Health
	err := c.call(ctx, http.MethodGet, "/healthz", "", nil, &health)
	return health, err
}

// CreateReport opens a new pending report for the configured owner.
func (c *Client) CreateReport(ctx context.Context, kinds []string) (Report, error) {
	body, err := json.Marshal(map[string][]string{"kinds": kinds})
	if err != nil {
		return Report{}, err
	}
	var rpt Report
	err = c.call(ctx, http.MethodPost, "/v1/reports", "application/json", body, &rpt)
	return rpt, err
}

// Report fetches one report.
func (c *Client) Report(ctx context.Context, id string) (Report, error) {
	var rpt Report
	err := c.call(ctx, http.MethodGet, "/v1/reports/"+url.PathEscape(id), "", nil, &rpt)
	return rpt, err
}

// Reports lists the owner's reports, newest first.
func (c *Client) Reports(ctx context.Context) ([]Report, error) {
	var reports []Report
	err := c.call(ctx, http.MethodGet, "/v1/reports", "", nil, &reports)
	return reports, err
}

// UploadAsset attaches a raw image or audio file to a pending report.
func (c *Client) UploadAsset(ctx context.Context, reportID, kind string, data []byte) (Asset, error) {
	path := fmt.Sprintf("/v1/reports/%s/assets?kind=%s", url.PathEscape(reportID), url.QueryEscape(kind))
	var asset Asset
	err := c.call(ctx, http.MethodPost, path, "application/octet-stream", data, &asset)
	return asset, err
}

// RequestAnalyze queues a pending report for the worker pool.
func (c *Client) RequestAnalyze(ctx context.Context, reportID string) (Report, error) {
	var rpt Report
	err := c.call(ctx, http.MethodPost, "/v1/reports/"+url.PathEscape(reportID)+"/analyze", "", nil, &rpt)
	return rpt, err
}

// Balance fetches the owner's credit balance.
func (c *Client) Balance(ctx context.Context) (Balance, error) {
	var balance Balance
	err := c.call(ctx, http.MethodGet, "/v1/credits/balance", "", nil, &balance)
	return balance, err
}

// Transactions fetches the owner's ledger history, newest first.
func (c *Client) Transactions(ctx context.Context, limit int) ([]Transaction, error) {
	path := "/v1/credits/transactions"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var transactions []Transaction
	err := c.call(ctx, http.MethodGet, path, "", nil, &transactions)
	return transactions, err
}

// Grant tops up the owner's account.
func (c *Client) Grant(ctx context.Context, amount, referenceID, note string) (Balance, error) {
	body, err := json.Marshal(map[string]string{
		"amount":       amount,
		"reference_id": referenceID,
		"note":         note,
	})
	if err != nil {
		return Balance{}, err
	}
	var balance Balance
	err = c.call(ctx, http.MethodPost, "/v1/credits/grants", "application/json", body, &balance)
	return balance, err
}

func (c *Client) call(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.ownerID != "" {
		req.Header.Set("X-Owner-ID", c.ownerID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err == nil && body.Error != "" {
		return &APIError{Status: resp.StatusCode, Message: body.Error}
	}
	return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(payload))}
}

// APIError carries the daemon's HTTP status and error message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.Status)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.Status, e.Message)
}
