package threads

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ifuryst/threads-insights/internal/metrics"
)

// get issues an authenticated GET against the versioned API and decodes the body into out.
func (c *Client) get(ctx context.Context, endpoint, path string, params map[string]string, out any) error {
	if c.config.AccessToken == "" {
		metrics.IncAPICall(endpoint, "auth_error")
		return &AuthError{Message: "access token is not configured"}
	}

	req := c.http.R().SetQueryParams(params)
	return c.do(ctx, endpoint, req, path, out)
}

func (c *Client) do(ctx context.Context, endpoint string, req *resty.Request, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &UpstreamError{Endpoint: endpoint, Err: err}
	}

	resp, err := req.SetContext(ctx).Get(path)
	if err != nil {
		metrics.IncAPICall(endpoint, "upstream_error")
		return &UpstreamError{Endpoint: endpoint, Err: fmt.Errorf("failed to make request: %w", err)}
	}

	if err := checkResponse(endpoint, resp.StatusCode(), resp.Body()); err != nil {
		c.logger.Debug("Threads API call failed",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode()),
			zap.Error(err))
		return err
	}
	metrics.IncAPICall(endpoint, "ok")

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &UpstreamError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("failed to decode response: %w", err),
		}
	}
	return nil
}

// checkResponse classifies a non-2xx response as an AuthError or UpstreamError.
func checkResponse(endpoint string, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	var envelope graphError
	message := string(body)
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}
	code := envelope.Error.Code

	if isAuthFailure(status, code) {
		metrics.IncAPICall(endpoint, "auth_error")
		return &AuthError{StatusCode: status, Code: code, Message: message}
	}

	metrics.IncAPICall(endpoint, "upstream_error")
	return &UpstreamError{Endpoint: endpoint, StatusCode: status, Code: code, Message: message}
}
