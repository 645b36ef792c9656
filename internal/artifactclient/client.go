// Package artifactclient is a thin boundary client for the external
// content-addressed artifact service. It owns only URI recognition and
// byte retrieval; upload/download route glue is out of scope.
package artifactclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client fetches artifact content by URI from the configured artifact
// service gateway.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New constructs a Client. A nil httpClient gets a conservative default
// timeout; the artifact service is expected to respond quickly or not at
// all.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: httpClient}
}

// CheckURI reports whether uri names an artifact this client can fetch,
// as opposed to an inline metadata string.
func (c *Client) CheckURI(uri string) bool {
	return strings.HasPrefix(uri, "ipfs://") || strings.HasPrefix(uri, "Qm") || strings.HasPrefix(uri, "zb")
}

// Get retrieves the raw bytes of the artifact uri resolves to.
func (c *Client) Get(ctx context.Context, uri string) ([]byte, error) {
	hash := strings.TrimPrefix(uri, "ipfs://")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/artifacts/%s", c.BaseURL, hash), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("artifactclient: %s: status %d", uri, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
