// Package httpclient provides the HTTP transport shared by the LLM providers:
// bounded retry on 5xx, typed status errors and W3C trace propagation.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/kart-io/docqa/pkg/utils/json"
)

// maxErrorBody 限制错误响应体的读取长度
const maxErrorBody = 4 << 10

// StatusError is returned by DoJSON for responses with status >= 400.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status code %d: %s", e.StatusCode, e.Body)
}

// Client is a wrapper around http.Client with additional functionality.
type Client struct {
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
}

// NewClient creates a new HTTP client wrapper.
func NewClient(timeout time.Duration, maxRetries int) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries: maxRetries,
		backoff:    500 * time.Millisecond,
	}
}

// DoRequest executes an HTTP request, retrying transport errors and 5xx
// responses up to maxRetries times. Any 4xx response is returned as is.
func (c *Client) DoRequest(req *http.Request) (*http.Response, error) {
	c.injectTraceContext(req)

	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		_ = req.Body.Close()
	}

	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		resp, err := c.httpClient.Do(req)
		if err == nil {
			if resp.StatusCode < 500 {
				return resp, nil
			}
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			_ = resp.Body.Close()
			lastErr = &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		} else {
			lastErr = err
		}

		if i < c.maxRetries {
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(time.Duration(i+1) * c.backoff):
			}
		}
	}
	return nil, lastErr
}

// DoJSON executes a request, decodes a JSON response into v and closes the body.
// Responses with status >= 400 yield a *StatusError.
func (c *Client) DoJSON(req *http.Request, v interface{}) error {
	resp, err := c.DoRequest(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// PostJSON marshals in, POSTs it to url and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, url string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.DoJSON(req, out)
}

// injectTraceContext 将当前 Span 的 W3C Trace Context 注入请求头。
// Context 中无活跃 Span 时不写入任何头。
func (c *Client) injectTraceContext(req *http.Request) {
	if req == nil {
		return
	}
	otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))
}
