// Package wiki fetches encyclopedia page summaries for enrichment.
package wiki

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://en.wikipedia.org/api/rest_v1"

// Client fetches page summaries.
type Client interface {
	// Summary returns the page summary for the given title, or nil when no
	// page exists.
	Summary(ctx context.Context, title string) (*PageSummary, error)
}

// PageSummary is the summary endpoint response.
type PageSummary struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Extract     string `json:"extract"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a summary API client. No credentials are required.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Summary(ctx context.Context, title string) (*PageSummary, error) {
	// The REST API expects underscores instead of spaces in titles.
	slug := url.PathEscape(strings.ReplaceAll(title, " ", "_"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/page/summary/"+slug, nil)
	if err != nil {
		return nil, eris.Wrap(err, "wiki: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "wiki: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "wiki: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("wiki: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result PageSummary
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "wiki: unmarshal response")
	}

	return &result, nil
}
