package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/placefeed/curator/internal/locks"
	"github.com/placefeed/curator/internal/maintenance"
	"github.com/placefeed/curator/internal/pipeline"
	"github.com/placefeed/curator/internal/store"
	"github.com/placefeed/curator/pkg/census"
	"github.com/placefeed/curator/pkg/places"
	"github.com/placefeed/curator/pkg/textgen"
	"github.com/placefeed/curator/pkg/wiki"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "curator.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initProvider() (textgen.Provider, error) {
	var provider textgen.Provider
	switch cfg.Textgen.Provider {
	case "anthropic":
		provider = textgen.NewAnthropic(cfg.Textgen.Anthropic.Key,
			textgen.WithAnthropicModel(cfg.Textgen.Anthropic.Model))
	case "openai":
		provider = textgen.NewOpenAI(cfg.Textgen.OpenAI.Key,
			textgen.WithOpenAIBaseURL(cfg.Textgen.OpenAI.BaseURL),
			textgen.WithOpenAIModel(cfg.Textgen.OpenAI.Model))
	default:
		return nil, eris.Errorf("unsupported textgen provider: %s", cfg.Textgen.Provider)
	}

	timeout := time.Duration(cfg.Textgen.TimeoutSecs) * time.Second
	return textgen.NewLimited(provider, cfg.Textgen.RequestsPerMinute, timeout), nil
}

func initPlaces() places.Client {
	return places.NewClient(cfg.Places.Key,
		places.WithBaseURL(cfg.Places.BaseURL),
		places.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Places.TimeoutSecs) * time.Second}),
	)
}

// pipelineEnv bundles the fully wired pipeline, its maintenance counterpart
// and the store they share.
type pipelineEnv struct {
	Store       store.Store
	Provider    textgen.Provider
	Pipeline    *pipeline.Pipeline
	Maintenance *maintenance.Service
}

func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	provider, err := initProvider()
	if err != nil {
		st.Close()
		return nil, err
	}

	wikiClient := wiki.NewClient(
		wiki.WithBaseURL(cfg.Wiki.BaseURL),
		wiki.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Wiki.TimeoutSecs) * time.Second}),
	)
	censusClient := census.NewClient(cfg.Census.Key,
		census.WithBaseURL(cfg.Census.BaseURL),
		census.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Census.TimeoutSecs) * time.Second}),
	)

	keyed := locks.New()
	return &pipelineEnv{
		Store:       st,
		Provider:    provider,
		Pipeline:    pipeline.New(cfg, st, provider, initPlaces(), wikiClient, censusClient, keyed),
		Maintenance: maintenance.New(st, keyed),
	}, nil
}

// initMaintenance wires only the store-backed maintenance service, for
// commands that never call external services.
func initMaintenance(ctx context.Context) (*maintenance.Service, store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, nil, eris.Wrap(err, "migrate store")
	}
	return maintenance.New(st, locks.New()), st, nil
}

func (e *pipelineEnv) Close() {
	_ = e.Store.Close()
}
