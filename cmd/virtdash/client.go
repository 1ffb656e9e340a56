package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const requestTimeout = 30 * time.Second

// daemonClient is a thin JSON client for the virtdashd HTTP API.
type daemonClient struct {
	base string
	http *http.Client
}

func newDaemonClient() *daemonClient {
	return &daemonClient{
		base: strings.TrimRight(flagAddr, "/"),
		http: &http.Client{Timeout: requestTimeout},
	}
}

func (c *daemonClient) get(path string, out any) error {
	return c.do(http.MethodGet, path, out)
}

func (c *daemonClient) post(path string, out any) error {
	return c.do(http.MethodPost, path, out)
}

func (c *daemonClient) do(method, path string, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	logger.Debug("daemon request", zap.String("method", method), zap.String("path", path))
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("is virtdashd running at %s? %w", c.base, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	logger.Debug("daemon response", zap.Int("status", resp.StatusCode))

	// Error payloads and the 409 power rejection both carry JSON worth
	// decoding before failing.
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			if apiErr.Details != "" {
				return fmt.Errorf("%s: %s", apiErr.Error, apiErr.Details)
			}
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse daemon response: %w", err)
	}
	return nil
}

// doRaw is like do but also returns the status code, for endpoints
// where non-2xx responses still carry a decodable payload.
func (c *daemonClient) doRaw(method, path string, out any) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("is virtdashd running at %s? %w", c.base, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("parse daemon response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
