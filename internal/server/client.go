package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/v0xg/ohmycomment/internal/background"
)

// Client sends generate requests to a running server. It satisfies the
// dispatcher's transport, so a browser session can use a remote
// background.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

// Send posts req to /v1/generate.
func (c *Client) Send(ctx context.Context, req background.Request) (background.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return background.Response{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return background.Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(httpReq)
	if err != nil {
		return background.Response{}, fmt.Errorf("generate request: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return background.Response{}, fmt.Errorf("read generate response: %w", err)
	}
	var resp background.Response
	if err := json.Unmarshal(raw, &resp); err != nil || (resp.Reply == "" && resp.Error == "" && res.StatusCode != http.StatusOK) {
		return background.Response{}, fmt.Errorf("server returned %d - %s", res.StatusCode, strings.TrimSpace(string(raw)))
	}
	return resp, nil
}
