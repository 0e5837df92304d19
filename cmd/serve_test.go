package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/placefeed/curator/internal/config"
	"github.com/placefeed/curator/internal/locks"
	"github.com/placefeed/curator/internal/maintenance"
	"github.com/placefeed/curator/internal/model"
	"github.com/placefeed/curator/internal/pipeline"
	"github.com/placefeed/curator/internal/store"
	"github.com/placefeed/curator/pkg/textgen"
)

type stubProvider struct{}

func (stubProvider) Name() string { return "stub" }

func (stubProvider) Generate(context.Context, textgen.Request) (string, error) {
	return "", nil
}

func (stubProvider) TestConnection(context.Context) error { return nil }

func newTestEnv(t *testing.T) *pipelineEnv {
	t.Helper()

	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	envCfg := &config.Config{
		Pipeline: config.PipelineConfig{BatchSize: 10, Workers: 1, PublishThreshold: 70, MaxAttempts: 3},
		Retry:    config.RetryConfig{MaxAttempts: 1, InitialBackoffMs: 1, MaxBackoffMs: 2, Multiplier: 2, FailureThreshold: 10, ResetTimeoutSecs: 1},
	}

	keyed := locks.New()
	provider := stubProvider{}
	return &pipelineEnv{
		Store:       st,
		Provider:    provider,
		Pipeline:    pipeline.New(envCfg, st, provider, nil, nil, nil, keyed),
		Maintenance: maintenance.New(st, keyed),
	}
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServe_Health(t *testing.T) {
	r := newRouter(newTestEnv(t))

	rec := doRequest(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestServe_Status(t *testing.T) {
	r := newRouter(newTestEnv(t))

	rec := doRequest(t, r, http.MethodGet, "/pipeline/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"provider_name":"stub"`)
}

func TestServe_RunEmptyBatch(t *testing.T) {
	r := newRouter(newTestEnv(t))

	rec := doRequest(t, r, http.MethodPost, "/pipeline/run", `{"max_items": 5}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"processed":0`)
}

func TestServe_RunRejectsBadBody(t *testing.T) {
	r := newRouter(newTestEnv(t))

	rec := doRequest(t, r, http.MethodPost, "/pipeline/run", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServe_SoftReset(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Store.CreateRecord(context.Background(), model.IngestRecord{
		Stage:      model.StageScored,
		SourceType: model.SourcePlacesLookup,
		TargetType: model.TargetPlace,
		RawData:    model.RawData{Name: "One"},
	})
	require.NoError(t, err)

	rec := doRequest(t, newRouter(env), http.MethodPost, "/maintenance/reset", `{}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"affected":1`)
}

func TestServe_ScrubUnknownAction(t *testing.T) {
	r := newRouter(newTestEnv(t))

	rec := doRequest(t, r, http.MethodPost, "/maintenance/scrub", `{"action": "purge"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServe_ReimportRejectsBadTarget(t *testing.T) {
	r := newRouter(newTestEnv(t))

	rec := doRequest(t, r, http.MethodPost, "/maintenance/reimport", `{"target_type": "widget"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServe_EntitiesRequireType(t *testing.T) {
	r := newRouter(newTestEnv(t))

	rec := doRequest(t, r, http.MethodGet, "/entities", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServe_EntityNotFound(t *testing.T) {
	r := newRouter(newTestEnv(t))

	rec := doRequest(t, r, http.MethodGet, "/entities/no-such-id", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
