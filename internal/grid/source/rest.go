package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnexpectedStatus is wrapped when the backend answers with a 4xx/5xx.
var ErrUnexpectedStatus = errors.New("source: unexpected status")

// Client fetches pages of one resource from the REST backend.
type Client[R any] struct {
	baseURL    string
	resource   string
	httpClient *http.Client
}

// NewClient constructs a client for resource. A nil httpClient gets a
// 30 second timeout.
func NewClient[R any](baseURL, resource string, httpClient *http.Client) *Client[R] {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client[R]{
		baseURL:    strings.TrimRight(baseURL, "/"),
		resource:   strings.Trim(resource, "/"),
		httpClient: httpClient,
	}
}

// FetchPage implements Source with GET {base}/{resource}?{descriptor}.
func (c *Client[R]) FetchPage(ctx context.Context, d Descriptor) (Page[R], error) {
	endpoint := fmt.Sprintf("%s/%s", c.baseURL, c.resource)
	if q := d.Values().Encode(); q != "" {
		endpoint += "?" + q
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Page[R]{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Page[R]{}, fmt.Errorf("source: fetch %s: %w", c.resource, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Page[R]{}, fmt.Errorf("%w %d from %s: %s", ErrUnexpectedStatus, resp.StatusCode, c.resource, strings.TrimSpace(string(body)))
	}

	var page Page[R]
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return Page[R]{}, fmt.Errorf("source: decode %s: %w", c.resource, err)
	}
	return page, nil
}
