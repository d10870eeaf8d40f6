package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// relayClient talks to one relay over HTTP and websocket.
type relayClient struct {
	base   *url.URL
	http   *http.Client
	wsPath string
}

func newRelayClient(server, wsPath string, timeout time.Duration) (*relayClient, error) {
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url must be http or https, got %q", server)
	}
	return &relayClient{base: u, http: &http.Client{Timeout: timeout}, wsPath: wsPath}, nil
}

// apiResponse is a decoded JSON body plus its status.
type apiResponse struct {
	Status int
	Body   map[string]any
}

func (c *relayClient) do(ctx context.Context, method, path string, headers map[string]string, body any) (*apiResponse, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	out := &apiResponse{Status: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(&out.Body); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return out, nil
}

func (c *relayClient) get(ctx context.Context, path string) (*apiResponse, error) {
	return c.do(ctx, http.MethodGet, path, nil, nil)
}

// wsURL maps the server URL onto its websocket endpoint.
func (c *relayClient) wsURL() string {
	u := *c.base
	u.Scheme = "ws"
	if c.base.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + c.wsPath
	return u.String()
}

// dial opens a websocket and consumes the greeting.
func (c *relayClient) dial(ctx context.Context) (*websocket.Conn, map[string]any, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", c.wsURL(), err)
	}
	var greeting map[string]any
	if err := ws.ReadJSON(&greeting); err != nil {
		_ = ws.Close()
		return nil, nil, fmt.Errorf("read greeting: %w", err)
	}
	return ws, greeting, nil
}

// publish sends a sync-match-data frame and waits for the relay to
// acknowledge it with a pong, which it only sends after the sync.
func (c *relayClient) publish(ctx context.Context, matchID string, matchData json.RawMessage) error {
	ws, _, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer ws.Close()

	if err := ws.WriteJSON(map[string]any{
		"type":      "sync-match-data",
		"matchId":   matchID,
		"matchData": matchData,
	}); err != nil {
		return fmt.Errorf("send sync: %w", err)
	}
	if err := ws.WriteJSON(map[string]any{"type": "ping"}); err != nil {
		return fmt.Errorf("send ping: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = ws.SetReadDeadline(deadline)
	}
	for {
		var msg map[string]any
		if err := ws.ReadJSON(&msg); err != nil {
			return fmt.Errorf("await ack: %w", err)
		}
		switch msg["type"] {
		case "pong":
			return nil
		case "error":
			return fmt.Errorf("relay rejected sync: %v", msg["message"])
		}
	}
}

// watch subscribes to matchID and hands every frame to fn until ctx ends
// or the connection drops.
func (c *relayClient) watch(ctx context.Context, matchID string, fn func(map[string]any)) error {
	ws, _, err := c.dial(ctx)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = ws.Close()
	}()
	defer ws.Close()

	if err := ws.WriteJSON(map[string]any{"type": "subscribe-match", "matchId": matchID}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	for {
		var msg map[string]any
		if err := ws.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		fn(msg)
	}
}
