// Package rest is the JSON-over-POST transport shared by the Hyperliquid
// /info and /exchange endpoints.
package rest

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

	"go.uber.org/zap"
)

// StatusError is a non-2xx reply. Body is truncated to 2 KiB.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, e.Body)
}

// PostJSON posts req as JSON to url and decodes the reply into out.
func PostJSON(ctx context.Context, hc *http.Client, url string, req, out any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := hc.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Client reads account and market state from /info.
type Client struct {
	url  string
	http *http.Client
	log  *zap.Logger
}

func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		url:  strings.TrimRight(baseURL, "/") + "/info",
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

type InfoRequest struct {
	Type string `json:"type"`
	User string `json:"user,omitempty"`
}

// Info decodes an object response.
func (c *Client) Info(ctx context.Context, req any) (map[string]any, error) {
	var data map[string]any
	if err := c.info(ctx, req, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// InfoAny decodes responses whose top level may be an array.
func (c *Client) InfoAny(ctx context.Context, req any) (any, error) {
	var data any
	if err := c.info(ctx, req, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) info(ctx context.Context, req, out any) error {
	err := PostJSON(ctx, c.http, c.url, req, out)
	if err == nil {
		return nil
	}
	var status *StatusError
	if !errors.As(err, &status) && ctx.Err() == nil {
		c.log.Debug("info request failed", zap.Error(err))
	}
	return fmt.Errorf("info: %w", err)
}
