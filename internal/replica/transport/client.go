// Package transport is the replica's HTTP client for the sync API. It
// distinguishes network failures, which leave local events queued for the
// next attempt, from server rejections, which are final.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/debitumapp/debitum/internal/events"
	"github.com/debitumapp/debitum/internal/eventstore"
	"github.com/debitumapp/debitum/pkg/config"
	"github.com/debitumapp/debitum/pkg/types"
)

const walletHeader = "X-Wallet-Id"

// NetworkError marks a failure to reach the server. Sync treats these as
// transient and retries with backoff.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: server unreachable: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// APIError is a non-2xx response from the server, decoded from the error
// envelope when possible.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server rejected request: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("server rejected request: %d", e.StatusCode)
}

// Client talks to one wallet's sync endpoints.
type Client struct {
	baseURL  string
	walletID string
	token    string
	http     *http.Client
}

// NewClient builds a sync client from the replica configuration.
func NewClient(cfg config.ReplicaConfig) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		walletID: cfg.WalletID,
		token:    cfg.AccessToken,
		http:     &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// GetHash fetches the server's digest over the wallet's event log.
func (c *Client) GetHash(ctx context.Context) (eventstore.HashResult, error) {
	var result eventstore.HashResult
	err := c.do(ctx, http.MethodGet, "/api/v1/sync/hash", nil, &result)
	return result, err
}

// EventsSince pulls one page of wallet events strictly after the
// (since, afterID) cursor. afterID carries pagination across a run of events
// that share a timestamp.
func (c *Client) EventsSince(ctx context.Context, since time.Time, afterID uuid.UUID, limit int) ([]events.Event, error) {
	q := url.Values{}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339Nano))
		if afterID != uuid.Nil {
			q.Set("after_id", afterID.String())
		}
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/sync/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var body struct {
		Events []events.Event `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &body); err != nil {
		return nil, err
	}
	return body.Events, nil
}

// PushEvents submits a batch of local events and returns the per-event
// accept/reject breakdown.
func (c *Client) PushEvents(ctx context.Context, batch []events.Event) (eventstore.AcceptResult, error) {
	payload := struct {
		Events []events.Event `json:"events"`
	}{Events: batch}

	var result eventstore.AcceptResult
	err := c.do(ctx, http.MethodPost, "/api/v1/sync/events", payload, &result)
	return result, err
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(walletHeader, c.walletID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return &NetworkError{Op: method + " " + path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope types.ErrorEnvelope
		if jsonErr := json.Unmarshal(raw, &envelope); jsonErr == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	var envelope types.SuccessEnvelope
	envelope.Data = out
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
