package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jcdickinson/kbpress/internal/rpc"
)

type Client struct {
	addr       string
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the server listening on addr, either
// host:port or a full http URL.
func NewClient(addr string) *Client {
	base := strings.TrimSuffix(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		addr:    addr,
		baseURL: base,
		httpClient: &http.Client{
			Timeout: 30 * time.Minute, // regenerate waits for a full site build
		},
	}
}

// ConnectOrSpawn connects to the server at addr, spawning one with
// configFile if nothing answers.
func ConnectOrSpawn(addr, configFile string) (*Client, error) {
	client := NewClient(addr)

	if client.IsAvailable() {
		return client, nil
	}

	if err := Spawn(configFile); err != nil {
		return nil, fmt.Errorf("spawning server: %w", err)
	}

	// The spawned server generates every namespace before it listens.
	deadline := time.Now().Add(5 * time.Minute)
	for time.Now().Before(deadline) {
		time.Sleep(500 * time.Millisecond)
		if client.IsAvailable() {
			return client, nil
		}
	}

	return nil, fmt.Errorf("server did not start within 5 minutes")
}

func (c *Client) IsAvailable() bool {
	host := strings.TrimPrefix(strings.TrimPrefix(c.baseURL, "http://"), "https://")
	if i := strings.Index(host, "/"); i >= 0 {
		host = host[:i]
	}
	conn, err := net.DialTimeout("tcp", host, 100*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (c *Client) Status(ctx context.Context, limit int) (*rpc.StatusResponse, error) {
	url := c.baseURL + "/status"
	if limit > 0 {
		url = fmt.Sprintf("%s?limit=%d", url, limit)
	}
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("server returned %d: %s", httpResp.StatusCode, string(body))
	}

	var resp rpc.StatusResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding status: %w", err)
	}
	return &resp, nil
}

// Regenerate regenerates one book and waits for the site build.
func (c *Client) Regenerate(ctx context.Context, bookID int) (*rpc.RegenerateResponse, error) {
	var resp rpc.RegenerateResponse
	err := c.post(ctx, "/regenerate", rpc.RegenerateRequest{BookID: bookID}, http.StatusOK, &resp)
	return &resp, err
}

// Webhook queues a regeneration the way the knowledge-base service does.
func (c *Client) Webhook(ctx context.Context, bookID int) (*rpc.WebhookResponse, error) {
	var resp rpc.WebhookResponse
	req := rpc.WebhookRequest{Data: rpc.WebhookData{BookID: bookID}}
	err := c.post(ctx, "/webhook", req, http.StatusAccepted, &resp)
	return &resp, err
}

func (c *Client) post(ctx context.Context, path string, body interface{}, want int, result interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != want {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}
