// Package census looks up place populations from the ACS 5-year estimates.
package census

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL = "https://api.census.gov/data"
	// B01003_001E is total population in the ACS 5-year dataset.
	populationVariable = "B01003_001E"
	dataset            = "2023/acs/acs5"
)

// Client looks up population figures.
type Client interface {
	// Population returns the total population for the named place, or
	// (0, false, nil) when the place is not in the dataset. State narrows
	// the search when set (two-letter FIPS code, e.g. "06").
	Population(ctx context.Context, name, state string) (int, bool, error)
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
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a census API client. The key is optional for low request
// volumes.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Population(ctx context.Context, name, state string) (int, bool, error) {
	q := url.Values{}
	q.Set("get", "NAME,"+populationVariable)
	q.Set("for", "place:*")
	if state != "" {
		q.Set("in", "state:"+state)
	}
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}

	reqURL := c.baseURL + "/" + dataset + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, false, eris.Wrap(err, "census: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, false, eris.Wrap(err, "census: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, false, eris.Wrap(err, "census: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return 0, false, eris.Errorf("census: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	// The API returns a JSON array of string arrays with a header row:
	// [["NAME","B01003_001E","state","place"],["San Francisco city, California","873965","06","67000"],...]
	var rows [][]string
	if err := json.Unmarshal(respBody, &rows); err != nil {
		return 0, false, eris.Wrap(err, "census: unmarshal response")
	}
	if len(rows) < 2 {
		return 0, false, nil
	}

	needle := strings.ToLower(name)
	for _, row := range rows[1:] {
		if len(row) < 2 {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(row[0]), needle) {
			continue
		}
		pop, err := strconv.Atoi(row[1])
		if err != nil {
			return 0, false, eris.Wrapf(err, "census: parse population for %s", row[0])
		}
		return pop, true, nil
	}
	return 0, false, nil
}
