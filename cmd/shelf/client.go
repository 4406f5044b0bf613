package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shelf/internal/events"
	"shelf/internal/operations"
	"shelf/internal/server"
)

// apiClient is a thin HTTP wrapper around the daemon API.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(addr string) *apiClient {
	base := strings.TrimSpace(addr)
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// daemonStatus mirrors the GET /status response body.
type daemonStatus struct {
	Daemon     server.StatusSnapshot `json:"daemon"`
	Operations map[string]int        `json:"operations"`
	Pending    int                   `json:"pending"`
}

func (c *apiClient) Status(ctx context.Context) (*daemonStatus, error) {
	var status daemonStatus
	if err := c.do(ctx, http.MethodGet, "/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *apiClient) Submit(ctx context.Context, opType string, force bool) (*operations.Operation, error) {
	path := "/operations/" + url.PathEscape(opType)
	if force {
		path += "?force_update=true"
	}
	var op operations.Operation
	if err := c.do(ctx, http.MethodPost, path, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

func (c *apiClient) Get(ctx context.Context, id string) (*operations.Operation, error) {
	var op operations.Operation
	if err := c.do(ctx, http.MethodGet, "/operations/"+url.PathEscape(id), &op); err != nil {
		return nil, err
	}
	return &op, nil
}

func (c *apiClient) List(ctx context.Context, status string) ([]*operations.Operation, error) {
	path := "/operations"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var body struct {
		Operations []*operations.Operation `json:"operations"`
	}
	if err := c.do(ctx, http.MethodGet, path, &body); err != nil {
		return nil, err
	}
	return body.Operations, nil
}

func (c *apiClient) Cancel(ctx context.Context, id string) (*operations.Operation, error) {
	var op operations.Operation
	if err := c.do(ctx, http.MethodPost, "/operations/"+url.PathEscape(id)+"/cancel", &op); err != nil {
		return nil, err
	}
	return &op, nil
}

// Follow streams progress events for one operation, invoking fn for each
// event until the daemon closes the stream or ctx is canceled. Heartbeat
// comments are consumed silently.
func (c *apiClient) Follow(ctx context.Context, id string, fn func(events.Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.base+"/events?operation_id="+url.QueryEscape(id), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream stays open until the operation goes terminal, so the
	// request must not carry the regular client timeout.
	stream := &http.Client{}
	resp, err := stream.Do(req)
	if err != nil {
		return fmt.Errorf("connect to event stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var data bytes.Buffer
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				var event events.Event
				if err := json.Unmarshal(data.Bytes(), &event); err == nil {
					fn(event)
				}
				data.Reset()
			}
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, ":"):
			// Heartbeat comment.
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return nil
}

func (c *apiClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect to daemon at %s: %w (is shelfd running?)", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("daemon: %s", body.Error)
	}
	return fmt.Errorf("daemon returned %s", resp.Status)
}
