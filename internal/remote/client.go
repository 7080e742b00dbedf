// Package remote defines the abstract request contract against the
// backend and its HTTP implementation. Nothing beyond an endpoint path,
// a method, headers and a body is assumed about the remote side.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// Request is the transport-agnostic request envelope.
type Request struct {
	Endpoint string            `json:"endpoint"`
	Method   string            `json:"method"`
	Headers  map[string]string `json:"headers,omitempty"`
	Body     json.RawMessage   `json:"body,omitempty"`
}

// Response is the transport-agnostic response envelope.
type Response struct {
	StatusCode int             `json:"status_code"`
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
	Details    []string        `json:"details,omitempty"`
}

// Client issues requests against the remote backend. Implementations must
// honor ctx cancellation by aborting the in-flight call, not ignoring it.
type Client interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// HTTPClient is the production Client over net/http.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	log     *logrus.Logger
}

// NewHTTPClient creates an HTTPClient rooted at baseURL. Timeouts are
// driven by the caller's context, not a client-wide deadline.
func NewHTTPClient(baseURL string, log *logrus.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
		log:     log,
	}
}

// Do sends the request and decodes the response envelope. A response body
// that is not an envelope is passed through as Data with success derived
// from the status code.
func (c *HTTPClient) Do(ctx context.Context, req Request) (Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	url := c.baseURL + "/" + strings.TrimPrefix(req.Endpoint, "/")
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to read response: %w", err)
	}

	return decodeEnvelope(resp.StatusCode, raw), nil
}

// decodeEnvelope maps an HTTP response onto the abstract envelope.
func decodeEnvelope(status int, raw []byte) Response {
	ok := status >= 200 && status < 300

	var envelope struct {
		Success *bool           `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
		Details []string        `json:"details"`
	}
	if len(raw) > 0 && json.Unmarshal(raw, &envelope) == nil && envelope.Success != nil {
		return Response{
			StatusCode: status,
			Success:    *envelope.Success && ok,
			Data:       envelope.Data,
			Error:      envelope.Error,
			Details:    envelope.Details,
		}
	}

	r := Response{StatusCode: status, Success: ok}
	if ok {
		r.Data = raw
	} else {
		r.Error = http.StatusText(status)
	}
	return r
}
