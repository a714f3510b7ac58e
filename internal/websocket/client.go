package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PentesterFlow/ScrapeIt/pkg/crawler"
)

// Client follows the event stream of a remote crawl task.
type Client struct {
	mu      sync.RWMutex
	dialer  *websocket.Dialer
	headers http.Header
}

// NewClient creates a client.
func NewClient() *Client {
	return &Client{
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		headers: make(http.Header),
	}
}

// SetHeaders sets headers sent with the handshake, e.g. X-API-Key.
func (c *Client) SetHeaders(headers map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range headers {
		c.headers.Set(k, v)
	}
}

// StreamURL returns the event stream URL of taskID on the server at base
// (an http or https URL).
func StreamURL(base, taskID, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	u.Path = "/api/crawl/ws"
	q := url.Values{"task_id": {taskID}}
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return wsScheme(u).String(), nil
}

func wsScheme(u *url.URL) *url.URL {
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	default:
		u.Scheme = "wss"
	}
	return u
}

// Follow connects to streamURL and calls fn for every event until the
// server closes the stream, which returns nil, or ctx is done.
func (c *Client) Follow(ctx context.Context, streamURL string, fn func(crawler.Event)) error {
	u, err := url.Parse(streamURL)
	if err != nil {
		return fmt.Errorf("invalid stream URL: %w", err)
	}

	c.mu.RLock()
	headers := c.headers.Clone()
	c.mu.RUnlock()

	conn, resp, err := c.dialer.DialContext(ctx, wsScheme(u).String(), headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("event stream refused with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("failed to connect to event stream: %w", err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		var ev crawler.Event
		err := conn.ReadJSON(&ev)
		if err == nil {
			fn(ev)
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
			return nil
		}
		return fmt.Errorf("event stream: %w", err)
	}
}
