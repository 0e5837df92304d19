package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/placefeed/curator/internal/model"
	"github.com/placefeed/curator/internal/store"
	"github.com/placefeed/curator/pkg/census"
	"github.com/placefeed/curator/pkg/places"
	"github.com/placefeed/curator/pkg/textgen"
	"github.com/placefeed/curator/pkg/wiki"
)

// --- Provider Mock ---

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string {
	return "mock"
}

func (m *mockProvider) Generate(ctx context.Context, req textgen.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) TestConnection(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- Places Mock ---

type mockPlacesClient struct {
	mock.Mock
}

func (m *mockPlacesClient) TextSearch(ctx context.Context, query string) (*places.TextSearchResponse, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*places.TextSearchResponse), args.Error(1)
}

// --- Wiki Mock ---

type mockWikiClient struct {
	mock.Mock
}

func (m *mockWikiClient) Summary(ctx context.Context, title string) (*wiki.PageSummary, error) {
	args := m.Called(ctx, title)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wiki.PageSummary), args.Error(1)
}

// --- Census Mock ---

type mockCensusClient struct {
	mock.Mock
}

func (m *mockCensusClient) Population(ctx context.Context, name, state string) (int, bool, error) {
	args := m.Called(ctx, name, state)
	return args.Int(0), args.Bool(1), args.Error(2)
}

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateRecord(ctx context.Context, rec model.IngestRecord) (*model.IngestRecord, error) {
	args := m.Called(ctx, rec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.IngestRecord), args.Error(1)
}

func (m *mockStore) GetRecord(ctx context.Context, id string) (*model.IngestRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.IngestRecord), args.Error(1)
}

func (m *mockStore) ListRecords(ctx context.Context, filter store.RecordFilter) ([]model.IngestRecord, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.IngestRecord), args.Error(1)
}

func (m *mockStore) ListEligible(ctx context.Context, stages []model.Stage, limit int) ([]model.IngestRecord, error) {
	args := m.Called(ctx, stages, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.IngestRecord), args.Error(1)
}

func (m *mockStore) FindByDedupKey(ctx context.Context, key string) (*model.IngestRecord, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.IngestRecord), args.Error(1)
}

func (m *mockStore) ListDedupKeys(ctx context.Context) (map[string]bool, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]bool), args.Error(1)
}

func (m *mockStore) Advance(ctx context.Context, id string, newStage model.Stage, patch model.DerivedPatch) error {
	args := m.Called(ctx, id, newStage, patch)
	return args.Error(0)
}

func (m *mockStore) RecordFailure(ctx context.Context, id string, stage model.Stage, message string) error {
	args := m.Called(ctx, id, stage, message)
	return args.Error(0)
}

func (m *mockStore) DeleteRecord(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockStore) RetagRecord(ctx context.Context, id string, target model.TargetType) error {
	args := m.Called(ctx, id, target)
	return args.Error(0)
}

func (m *mockStore) ResetSoft(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockStore) HardDeleteAll(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) CountByStage(ctx context.Context) (model.StageCounts, int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).(model.StageCounts), args.Int(1), args.Error(2)
}

func (m *mockStore) CreateEntity(ctx context.Context, e model.ContentEntity) (*model.ContentEntity, error) {
	args := m.Called(ctx, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ContentEntity), args.Error(1)
}

func (m *mockStore) UpdateEntity(ctx context.Context, e model.ContentEntity) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *mockStore) GetEntity(ctx context.Context, id string) (*model.ContentEntity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ContentEntity), args.Error(1)
}

func (m *mockStore) ListPublishedEntities(ctx context.Context, entityType model.TargetType, limit int) ([]model.ContentEntity, error) {
	args := m.Called(ctx, entityType, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ContentEntity), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Interface compliance checks.
var (
	_ textgen.Provider = (*mockProvider)(nil)
	_ places.Client    = (*mockPlacesClient)(nil)
	_ wiki.Client      = (*mockWikiClient)(nil)
	_ census.Client    = (*mockCensusClient)(nil)
	_ store.Store      = (*mockStore)(nil)
)
