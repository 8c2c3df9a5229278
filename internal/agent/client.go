package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const DefaultPort = 8080

// Agent endpoints. Every call is a GET with its parameters in the query.
const (
	PathInstall    = "/api/device_install"
	PathShell      = "/api/adb_shell"
	PathScript     = "/api/script"
	PathTaskStatus = "/api/device/task_status"
)

// Response is the envelope every agent replies with.
type Response struct {
	Data json.RawMessage `json:"data"`
}

// Client talks to the per-host agents that drive the attached phones.
type Client struct {
	port int
	http *http.Client
}

type Options struct {
	Port    int
	Timeout time.Duration
	// Transport overrides the HTTP transport, mostly for tests.
	Transport http.RoundTripper
}

func NewClient(opts Options) *Client {
	port := opts.Port
	if port <= 0 {
		port = DefaultPort
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		port: port,
		http: &http.Client{Timeout: timeout, Transport: opts.Transport},
	}
}

// URL builds the address of path on the agent at agentIP. An agentIP that
// already carries a port is used as is.
func (c *Client) URL(agentIP, path string, query url.Values) string {
	host := agentIP
	if _, _, err := net.SplitHostPort(agentIP); err != nil {
		host = net.JoinHostPort(agentIP, strconv.Itoa(c.port))
	}
	u := url.URL{Scheme: "http", Host: host, Path: path, RawQuery: query.Encode()}
	return u.String()
}

// GetJSON issues GET path on the agent and decodes the JSON body into out.
// Transport failures, non-2xx replies and undecodable bodies are errors.
func (c *Client) GetJSON(ctx context.Context, agentIP, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(agentIP, path, query), nil)
	if err != nil {
		return fmt.Errorf("agent %s: %w", agentIP, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("agent %s: %w", agentIP, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("agent %s: read body: %w", agentIP, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("agent %s: %s returned %d", agentIP, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("agent %s: decode %s: %w", agentIP, path, err)
	}
	return nil
}

// Get is GetJSON into the standard envelope, returning its data field.
func (c *Client) Get(ctx context.Context, agentIP, path string, query url.Values) (json.RawMessage, error) {
	var resp Response
	if err := c.GetJSON(ctx, agentIP, path, query, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}
