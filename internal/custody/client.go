package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// Client talks to an external custody service over HTTP.
//
//	POST {base}/transfer  body: Transfer
//	POST {base}/pay       body: {"to": ..., "amount": ...}
//
// Both answer {"status": "success"} or {"status": "error", "resp": "..."}.
type Client struct {
	baseUrl *url.URL
	token   string
	http    *http.Client
}

type apiResponse struct {
	Status string `json:"status"`
	Resp   string `json:"resp"`
}

type payRequest struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

func NewClient(baseUrl, token string) (*Client, error) {
	parsed, err := url.Parse(baseUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %v", err)
	}
	return &Client{
		baseUrl: parsed,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (c *Client) Transfer(ctx context.Context, t Transfer) error {
	return c.post(ctx, "transfer", t)
}

func (c *Client) Pay(ctx context.Context, to string, amount uint64) error {
	return c.post(ctx, "pay", payRequest{To: to, Amount: amount})
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) error {
	u := *c.baseUrl
	u.Path = path.Join(u.Path, endpoint)

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize %s request: %v", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %v", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("x-access-token", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response body: %v", endpoint, err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return fmt.Errorf("failed to parse %s response (HTTP %d): %v", endpoint, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || apiResp.Status != "success" {
		return fmt.Errorf("custody api error on %s (HTTP %d): %s", endpoint, resp.StatusCode, apiResp.Resp)
	}
	return nil
}
