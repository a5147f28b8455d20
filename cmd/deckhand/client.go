package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/framelight/deckhand/pkg/config"
	"github.com/framelight/deckhand/pkg/progress"
)

// apiClient talks to a running deckhand server. streamClient carries no
// timeout because progress streams stay open for the life of a run.
type apiClient struct {
	baseURL      string
	token        string
	httpClient   *http.Client
	streamClient *http.Client
}

var newAPIClient = func() (*apiClient, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return &apiClient{
		baseURL:      fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		token:        cfg.Server.AuthToken,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		streamClient: &http.Client{},
	}, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable (is 'deckhand serve' running?): %w", err)
	}
	return resp, nil
}

func (c *apiClient) get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, "GET", path, nil)
}

func (c *apiClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, "POST", path, body)
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// streamEvents opens the progress stream for a run and decodes its events
// into a channel. The channel closes when the run reaches a terminal event
// or the stream ends; the returned stop function aborts the stream early.
func (c *apiClient) streamEvents(ctx context.Context, runID string) (<-chan progress.Event, func(), error) {
	streamCtx, stop := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(streamCtx, "GET", c.baseURL+"/workflow/progress/"+runID, nil)
	if err != nil {
		stop()
		return nil, nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		stop()
		return nil, nil, fmt.Errorf("server not reachable (is 'deckhand serve' running?): %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := decodeJSON(resp, &struct{}{})
		stop()
		if err == nil {
			err = fmt.Errorf("server returned %d", resp.StatusCode)
		}
		return nil, nil, err
	}

	events := make(chan progress.Event, 16)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var evt progress.Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt); err != nil {
				continue
			}
			select {
			case events <- evt:
			case <-streamCtx.Done():
				return
			}
		}
	}()

	return events, stop, nil
}
