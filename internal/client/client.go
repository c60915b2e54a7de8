// Package client provides HTTP clients for the modelbay services. The CLI
// and the training orchestrator talk to the platform through these instead
// of reaching into the repositories directly.
package client

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
)

const maxResponseBytes = 64 << 20

type rest struct {
	baseURL string
	token   string
	http    *http.Client
}

func newREST(baseURL, token string) rest {
	return rest{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// APIError is a non-2xx response from a service.
type APIError struct {
	Status int
	Code   string
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (status %d): %s", e.Code, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s (status %d)", e.Code, e.Status)
}

func (c rest) do(ctx context.Context, method, path string, in io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, in)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Code: "unknown_error"}
		var parsed struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		if json.Unmarshal(body, &parsed) == nil && parsed.Error != "" {
			apiErr.Code = parsed.Error
			apiErr.Detail = parsed.Detail
		}
		return body, fmt.Errorf("%s %s: %w", method, path, apiErr)
	}
	return body, nil
}

func (c rest) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (c rest) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	body, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(payload), "application/json")
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func pathEscape(segment string) string {
	return url.PathEscape(segment)
}

func queryEscape(value string) string {
	return url.QueryEscape(value)
}

func decodeJSON(body []byte, out any) error {
	return json.Unmarshal(body, out)
}
