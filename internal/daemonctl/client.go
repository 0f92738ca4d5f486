package daemonctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"chunkq/internal/api"
)

// ErrUnavailable reports that no daemon answered at the configured address.
var ErrUnavailable = errors.New("daemon unavailable")

// Client calls the daemon HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient returns a client for the daemon bound at bind (host:port or a
// full http URL). token is sent as a bearer token when non-empty.
func NewClient(bind, token string) *Client {
	base := strings.TrimRight(strings.TrimSpace(bind), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// BaseURL returns the API root the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var out api.DaemonStatus
	_, err := c.do(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

// Enqueue appends keys to index through the daemon.
func (c *Client) Enqueue(ctx context.Context, index string, keys []string) ([]api.QueueRow, error) {
	var out api.EnqueueResponse
	_, err := c.do(ctx, http.MethodPost, "/api/queue", api.EnqueueRequest{Index: index, Keys: keys}, &out)
	return out.Rows, err
}

// Queue lists pending rows. An empty index lists every index.
func (c *Client) Queue(ctx context.Context, index string, limit int) ([]api.QueueRow, error) {
	query := url.Values{}
	if index != "" {
		query.Set("index", index)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/queue"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out api.QueueListResponse
	_, err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Rows, err
}

// Chunk fetches the latest version of a compiled chunk. The bool is false
// when the chunk has never been compiled.
func (c *Client) Chunk(ctx context.Context, index, key string) (api.Chunk, bool, error) {
	var out api.ChunkResponse
	path := "/api/chunks/" + url.PathEscape(index) + "/" + escapeKey(key)
	code, err := c.do(ctx, http.MethodGet, path, nil, &out)
	if code == http.StatusNotFound {
		return api.Chunk{}, false, nil
	}
	if err != nil {
		return api.Chunk{}, false, err
	}
	return out.Chunk, true, nil
}

// escapeKey escapes each segment so keys containing "/" keep their shape.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isUnavailable(err) {
			return 0, fmt.Errorf("%w at %s: %v", ErrUnavailable, c.baseURL, err)
		}
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr api.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		msg := strings.TrimSpace(apiErr.Error)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return resp.StatusCode, fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, msg)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func isUnavailable(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
