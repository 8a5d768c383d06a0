// Package provider talks to the PayWithAccount API for the synchronous side
// channels: OTP validation and manual status queries.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"kore-service/internal/config"
)

const defaultTimeoutMs = 10_000

const (
	validatePath = "/v2/transact/validate"
	queryPath    = "/v2/transact/query"
)

// Result carries the decoded provider response together with the request
// reference it was issued for.
type Result struct {
	RequestRef string
	Data       map[string]any
}

type Client struct {
	baseURL      string
	apiKey       string
	clientSecret string
	client       *http.Client
	logger       *slog.Logger
}

func NewClient(cfg config.Provider, logger *slog.Logger) *Client {
	timeoutMs := cfg.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = defaultTimeoutMs
	}

	return &Client{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		clientSecret: cfg.ClientSecret,
		client:       &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		logger:       logger,
	}
}

// Validate submits user-supplied validation input (typically an OTP) for a
// pending transaction.
func (c *Client) Validate(ctx context.Context, requestRef string, otp string) (*Result, error) {
	body := map[string]any{
		"request_ref": requestRef,
	}
	if otp != "" {
		body["otp"] = otp
	}
	return c.post(ctx, validatePath, requestRef, body)
}

// Query asks the provider for the current status of a transaction.
func (c *Client) Query(ctx context.Context, requestRef string) (*Result, error) {
	body := map[string]any{
		"request_ref": requestRef,
	}
	return c.post(ctx, queryPath, requestRef, body)
}

func (c *Client) post(ctx context.Context, path, requestRef string, body map[string]any) (*Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling provider request")
	}

	url := c.baseURL + path
	c.logger.InfoContext(ctx, "Calling provider", "url", url, "requestRef", requestRef)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return nil, errors.Wrap(err, "creating provider request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Signature", RequestSignature(requestRef, c.clientSecret))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "sending provider request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading provider response")
	}

	c.logger.DebugContext(ctx, "Provider response", "status", resp.Status, "requestRef", requestRef)

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("provider error response: %s", resp.Status)
	}

	var data map[string]any
	if err := json.Unmarshal(respBody, &data); err != nil {
		return nil, errors.Wrap(err, "decoding provider response")
	}

	return &Result{RequestRef: requestRef, Data: data}, nil
}
