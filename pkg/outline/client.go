// Package outline talks to the management API of Outline VPN servers.
// Every server has its own secret management URL, so calls take it as an
// argument.
package outline

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrKeyNotFound = errors.New("access key not found on server")

type Client struct {
	HTTPClient *http.Client
}

// NewClient builds a client. Outline servers ship self-signed certificates,
// so insecureTLS turns off verification.
func NewClient(timeout time.Duration, insecureTLS bool) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &Client{
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("outline api error: %s (status: %d)", e.Body, e.Status)
}

func (c *Client) doRequest(ctx context.Context, method, apiURL, endpoint string, body interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	url := strings.TrimRight(apiURL, "/") + endpoint
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &apiError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(respBody))}
	}
	return respBody, nil
}

// CreateAccessKey creates a key and gives it name.
func (c *Client) CreateAccessKey(ctx context.Context, apiURL, name string) (*AccessKey, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, apiURL, "/access-keys", nil)
	if err != nil {
		return nil, err
	}

	var key AccessKey
	if err := json.Unmarshal(resp, &key); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if name != "" {
		if _, err := c.doRequest(ctx, http.MethodPut, apiURL, "/access-keys/"+key.ID+"/name", renameRequest{Name: name}); err != nil {
			return &key, fmt.Errorf("rename access key %s: %w", key.ID, err)
		}
		key.Name = name
	}
	return &key, nil
}

func (c *Client) DeleteAccessKey(ctx context.Context, apiURL, id string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, apiURL, "/access-keys/"+id, nil)
	var ae *apiError
	if errors.As(err, &ae) && ae.Status == http.StatusNotFound {
		return fmt.Errorf("%s: %w", id, ErrKeyNotFound)
	}
	return err
}

func (c *Client) ServerInfo(ctx context.Context, apiURL string) (*ServerInfo, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, apiURL, "/server", nil)
	if err != nil {
		return nil, err
	}
	var info ServerInfo
	if err := json.Unmarshal(resp, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &info, nil
}
