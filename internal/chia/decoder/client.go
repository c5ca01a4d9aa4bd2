// Package decoder is a client for the external puzzle decoder service, which runs
// block generators and classifies coin spends.
package decoder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/ratelimit"
)

var (
	// ErrUnavailable wraps failures to reach the decoder: transport errors,
	// 5xx and 429 responses, cancellation. The request may succeed later.
	ErrUnavailable = errors.New("decoder unavailable")
	// ErrRejected wraps answers the decoder gave but that cannot be used:
	// 4xx responses and undecodable payloads.
	ErrRejected = errors.New("decoder rejected request")
)

// Client is a rate limited decoder client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    ratelimit.Limiter
	rpcMetrics RPCMetrics
}

// NewClient builds a client for baseURL. rps <= 0 disables rate limiting.
func NewClient(baseURL string, timeout time.Duration, rps int, rpcMetrics RPCMetrics) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("decoder url is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse decoder url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("decoder url %q must be absolute", baseURL)
	}

	limiter := ratelimit.NewUnlimited()
	if rps > 0 {
		limiter = ratelimit.New(rps)
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		rpcMetrics: rpcMetrics,
	}, nil
}

// GetVersion returns the decoder's reported version.
func (c *Client) GetVersion(ctx context.Context) (version string, err error) {
	started := time.Now()
	defer func() {
		c.rpcMetrics.Observe("version", err, started)
	}()

	body, err := c.do(ctx, http.MethodGet, "version", nil)
	if err != nil {
		return "", err
	}

	var payload struct {
		Version string `json:"version"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Version != "" {
		return payload.Version, nil
	}
	version = strings.TrimSpace(string(body))
	if version == "" {
		err = fmt.Errorf("%w: empty version", ErrRejected)
		return "", err
	}
	return version, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", endpoint, err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.limiter.Take()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, endpoint, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: call %s: %w", ErrUnavailable, endpoint, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s response: %w", ErrUnavailable, endpoint, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: %s returned status %d", ErrUnavailable, endpoint, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: %s returned status %d: %s", ErrRejected, endpoint, resp.StatusCode, truncate(body))
	}
	return body, nil
}

func truncate(body []byte) string {
	const limit = 256
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
