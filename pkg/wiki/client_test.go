package wiki

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/page/summary/San_Francisco", r.URL.Path)

		io.WriteString(w, `{
			"title": "San Francisco",
			"description": "City in California",
			"extract": "San Francisco is a commercial and cultural center."
		}`)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	sum, err := c.Summary(context.Background(), "San Francisco")
	require.NoError(t, err)
	require.NotNil(t, sum)
	assert.Equal(t, "San Francisco", sum.Title)
	assert.Contains(t, sum.Extract, "cultural center")
}

func TestSummary_NotFoundReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"type": "not_found"}`)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	sum, err := c.Summary(context.Background(), "No Such Page Anywhere")
	require.NoError(t, err)
	assert.Nil(t, sum)
}

func TestSummary_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `boom`)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.Summary(context.Background(), "Anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 500")
}
