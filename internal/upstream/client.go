// Package upstream forwards a canonical request to the one configured
// upstream provider and hands back a decompressed response reader, leaving
// dialect translation entirely to internal/wire.
package upstream

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
)

// AuthStyle selects how the upstream API key is attached to requests.
type AuthStyle string

const (
	AuthBearer  AuthStyle = "bearer"
	AuthXAPIKey AuthStyle = "x-api-key"
)

// Config describes the single configured upstream.
type Config struct {
	BaseURL   string
	APIKey    string
	AuthStyle AuthStyle
}

// Client forwards canonical request bodies to the configured upstream.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New builds a Client against the given upstream config.
func New(cfg Config) *Client {
	return &Client{cfg: cfg, httpClient: http.DefaultClient}
}

func (c *Client) setAuthHeader(req *http.Request) {
	if c.cfg.APIKey == "" {
		return
	}
	switch c.cfg.AuthStyle {
	case AuthXAPIKey:
		req.Header.Set("x-api-key", c.cfg.APIKey)
	default:
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}

// Forward sends body (a canonical CreateMessageParams, already JSON-encoded)
// to the upstream's /v1/messages endpoint and returns the raw *http.Response
// for the caller to read or stream from. The caller owns resp.Body.
func (c *Client) Forward(ctx context.Context, body []byte) (*http.Response, error) {
	url := c.cfg.BaseURL + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-version", "2023-06-01")
	c.setAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: request failed: %w", err)
	}
	return resp, nil
}

// DecompressReader wraps resp.Body in a gzip or brotli reader according to
// its Content-Encoding header, passing it through unchanged otherwise.
func DecompressReader(resp *http.Response) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}
