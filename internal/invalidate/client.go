package invalidate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Client purges one server-side cache entry and returns the refreshed
// fragment.
type Client interface {
	Invalidate(ctx context.Context, cacheID string) (string, error)
}

// ServerError is a non-2xx answer from the invalidation endpoint.
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("invalidation endpoint returned %d: %s", e.Status, e.Body)
}

// TransportError means the request never produced a response.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "invalidation request failed: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// ErrorPayload returns the text shown to the user for err. Server errors
// carry their response body verbatim; anything else shows its message.
func ErrorPayload(err error) string {
	if err == nil {
		return ""
	}
	var se *ServerError
	if errors.As(err, &se) {
		if se.Body != "" {
			return se.Body
		}
		return http.StatusText(se.Status)
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Err.Error()
	}
	return err.Error()
}

// HTTPClient posts the cache id to the invalidation endpoint the way the
// page's AJAX call does: a form-encoded cid field.
type HTTPClient struct {
	url  string
	http *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient targets endpoint. A nil hc uses a client without a timeout.
func NewHTTPClient(endpoint string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = &http.Client{}
	}
	return &HTTPClient{url: endpoint, http: hc}
}

// URL returns the endpoint the client posts to.
func (c *HTTPClient) URL() string { return c.url }

func (c *HTTPClient) Invalidate(ctx context.Context, cacheID string) (string, error) {
	form := url.Values{"cid": {cacheID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build invalidation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &ServerError{Status: resp.StatusCode, Body: string(body)}
	}
	return string(body), nil
}
