// Package client provides a Go client library for the runner API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is the runner API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// NewClient creates a new runner API client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		// Invocations run synchronously; give the container time to finish.
		cfg.Timeout = 10 * time.Minute
	}

	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// InvocationResult is the server's response for one invocation.
type InvocationResult struct {
	InvocationID string            `json:"invocation_id"`
	Status       string            `json:"status"`
	ExitCode     int               `json:"exit_code"`
	Outputs      map[string]string `json:"outputs,omitempty"`
	Error        string            `json:"error,omitempty"`
	Stderr       string            `json:"stderr,omitempty"`
}

// Submit runs one descriptor on the server and waits for the result. The
// descriptor is the raw YAML or JSON document.
func (c *Client) Submit(ctx context.Context, descriptor []byte) (*InvocationResult, error) {
	resp, err := c.doRequest(ctx, "POST", "/api/v1/invocations", bytes.NewReader(descriptor))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Container failures come back with a result body too.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusUnprocessableEntity {
		return nil, c.parseError(resp)
	}

	var result InvocationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

// GetInvocation fetches a journaled invocation record.
func (c *Client) GetInvocation(ctx context.Context, id string) (*InvocationResult, error) {
	resp, err := c.doRequest(ctx, "GET", "/api/v1/invocations/"+id, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result InvocationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

// Health checks server health.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.doRequest(ctx, "GET", "/health", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: %s", resp.Status)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

func (c *Client) parseError(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)

	var errBody struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &errBody) == nil && errBody.Error != "" {
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, errBody.Error)
	}
	return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(data))
}
