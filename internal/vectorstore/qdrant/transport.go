package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"unihelp/internal/domain"
)

const (
	readTimeout  = 30 * time.Second
	writeTimeout = 60 * time.Second
)

// apiResponse is the envelope Qdrant wraps every REST answer in.
type apiResponse struct {
	Result json.RawMessage `json:"result"`
	Status any             `json:"status"`
	Time   float64         `json:"time"`
}

// errorMessage extracts status.error from a failed response body.
func errorMessage(body []byte) string {
	var env struct {
		Status struct {
			Error string `json:"error"`
		} `json:"status"`
	}
	if json.Unmarshal(body, &env) == nil && env.Status.Error != "" {
		return env.Status.Error
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(bytes.TrimSpace(body))
}

// do sends one request with the fixed per-method timeout. A 2xx body's
// result field is decoded into out when out is non-nil. Statuses listed in
// accept are returned without error and without decoding.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any, accept ...int) (status int, err error) {
	started := time.Now()
	defer func() { c.metrics.ObserveStore(op, started, err) }()

	timeout := readTimeout
	if method == http.MethodPut || method == http.MethodPost {
		timeout = writeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("%w: encode %s request: %v", domain.ErrStore, op, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url+path, reader)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %s: %v", domain.ErrStore, method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %s: %w", domain.ErrStore, method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: read %s %s: %w", domain.ErrStore, method, path, err)
	}
	if slices.Contains(accept, resp.StatusCode) {
		return resp.StatusCode, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &statusError{
			method: method,
			path:   path,
			code:   resp.StatusCode,
			msg:    errorMessage(payload),
		}
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	var env apiResponse
	if err := json.Unmarshal(payload, &env); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: decode %s %s: %v", domain.ErrStore, method, path, err)
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: decode %s %s result: %v", domain.ErrStore, method, path, err)
	}
	return resp.StatusCode, nil
}

// statusError is a non-2xx answer from Qdrant. It matches domain.ErrStore.
type statusError struct {
	method string
	path   string
	code   int
	msg    string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%v: qdrant %s %s failed: %d %s", domain.ErrStore, e.method, e.path, e.code, e.msg)
}

func (e *statusError) Unwrap() error { return domain.ErrStore }
