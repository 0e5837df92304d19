package maintenance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/placefeed/curator/internal/locks"
	"github.com/placefeed/curator/internal/model"
	"github.com/placefeed/curator/internal/store"
)

func newTestService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return New(st, locks.New()), st
}

func createRecord(t *testing.T, st store.Store, rec model.IngestRecord) *model.IngestRecord {
	t.Helper()
	created, err := st.CreateRecord(context.Background(), rec)
	require.NoError(t, err)
	return created
}

func TestSoftResetAll(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	score := 80
	reviewed := createRecord(t, st, model.IngestRecord{
		Stage:      model.StageReadyForReview,
		SourceType: model.SourcePlacesLookup,
		TargetType: model.TargetPlace,
		RawData:    model.RawData{Name: "One"},
		Derived:    model.Derived{Category: "dining", Score: &score, ReviewReason: "low score"},
	})
	createRecord(t, st, model.IngestRecord{
		Stage:      model.StageEnriched,
		SourceType: model.SourcePlacesLookup,
		TargetType: model.TargetPlace,
		RawData:    model.RawData{Name: "Two"},
	})

	n, err := svc.SoftResetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := st.GetRecord(ctx, reviewed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageNew, got.Stage)
	assert.Nil(t, got.Derived.Score)
	assert.Empty(t, got.Derived.ReviewReason)
	// Raw data and earlier derived fields survive a soft reset.
	assert.Equal(t, "One", got.RawData.Name)
	assert.Equal(t, "dining", got.Derived.Category)
}

func TestHardReset(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	createRecord(t, st, model.IngestRecord{
		SourceType: model.SourcePlacesLookup, TargetType: model.TargetPlace,
		RawData: model.RawData{Name: "One"},
	})
	createRecord(t, st, model.IngestRecord{
		SourceType: model.SourcePlacesLookup, TargetType: model.TargetPlace,
		RawData: model.RawData{Name: "Two"},
	})

	n, err := svc.HardReset(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	counts, _, err := st.CountByStage(ctx)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestScrub_Retag(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	misfiled := createRecord(t, st, model.IngestRecord{
		SourceType: model.SourcePlacesLookup, TargetType: model.TargetPlace,
		RawData: model.RawData{Name: "Fredericksburg", Types: []string{"locality", "political"}},
	})
	// A real venue that happens to carry a locality tag stays a place.
	venue := createRecord(t, st, model.IngestRecord{
		SourceType: model.SourcePlacesLookup, TargetType: model.TargetPlace,
		RawData: model.RawData{Name: "Main St Deli", Types: []string{"locality", "establishment"}},
	})
	createRecord(t, st, model.IngestRecord{
		SourceType: model.SourcePlacesLookup, TargetType: model.TargetPlace,
		RawData: model.RawData{Name: "Franklin Barbecue", Types: []string{"restaurant"}},
	})
	// Locality records are out of scope entirely.
	createRecord(t, st, model.IngestRecord{
		SourceType: model.SourceGenerated, TargetType: model.TargetLocality,
		RawData: model.RawData{Name: "Hill Country", Types: []string{"locality"}},
	})

	result, err := svc.Scrub(ctx, model.ScrubRetag)
	require.NoError(t, err)
	assert.Equal(t, model.ScrubResult{Retagged: 1, Deleted: 0, Skipped: 2}, result)

	got, err := st.GetRecord(ctx, misfiled.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TargetLocality, got.TargetType)

	got, err = st.GetRecord(ctx, venue.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TargetPlace, got.TargetType)
}

func TestScrub_Delete(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	misfiled := createRecord(t, st, model.IngestRecord{
		SourceType: model.SourcePlacesLookup, TargetType: model.TargetPlace,
		RawData: model.RawData{Name: "Gillespie County", Types: []string{"administrative_area_level_2", "political"}},
	})

	result, err := svc.Scrub(ctx, model.ScrubDelete)
	require.NoError(t, err)
	assert.Equal(t, model.ScrubResult{Deleted: 1}, result)

	_, err = st.GetRecord(ctx, misfiled.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestScrub_UnknownAction(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Scrub(context.Background(), model.ScrubAction("purge"))
	assert.Error(t, err)
}

func TestIsMisfiledLocality(t *testing.T) {
	tests := []struct {
		name string
		tags []string
		want bool
	}{
		{"locality only", []string{"locality", "political"}, true},
		{"admin area", []string{"administrative_area_level_1"}, true},
		{"locality plus establishment", []string{"locality", "establishment"}, false},
		{"venue", []string{"restaurant", "food"}, false},
		{"case insensitive", []string{"Locality"}, true},
		{"no tags", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isMisfiledLocality(tt.tags))
		})
	}
}

func TestReimport(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	var entities []model.ContentEntity
	for _, title := range []string{"Alpha", "Bravo", "Charlie", "Delta", "Echo"} {
		e, err := st.CreateEntity(ctx, model.ContentEntity{
			Type: model.TargetLocality, Title: title, Slug: title, Body: "old copy",
		})
		require.NoError(t, err)
		entities = append(entities, *e)
	}

	// Three entities are already queued.
	for _, e := range entities[:3] {
		createRecord(t, st, model.IngestRecord{
			SourceType: model.SourceReimport, TargetType: model.TargetLocality,
			RawData:        model.RawData{Name: e.Title},
			SourceDedupKey: e.ID,
		})
	}

	result, err := svc.Reimport(ctx, model.TargetLocality, 50, false)
	require.NoError(t, err)
	assert.Equal(t, model.ReimportResult{Imported: 2, Skipped: 3}, result)

	queued, err := st.FindByDedupKey(ctx, entities[4].ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageNew, queued.Stage)
	assert.Equal(t, model.SourceReimport, queued.SourceType)
	assert.Equal(t, "old copy", queued.RawData.Body)
	// The link back to the entity is set by publish, never at queue time.
	assert.Empty(t, queued.LinkedEntityID)
}

func TestReimport_DryRun(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	var entities []model.ContentEntity
	for _, title := range []string{"Alpha", "Bravo", "Charlie", "Delta", "Echo"} {
		e, err := st.CreateEntity(ctx, model.ContentEntity{
			Type: model.TargetPlace, Title: title, Slug: title,
		})
		require.NoError(t, err)
		entities = append(entities, *e)
	}
	for _, e := range entities[:3] {
		createRecord(t, st, model.IngestRecord{
			SourceType: model.SourceReimport, TargetType: model.TargetPlace,
			RawData:        model.RawData{Name: e.Title},
			SourceDedupKey: e.ID,
		})
	}

	result, err := svc.Reimport(ctx, model.TargetPlace, 50, true)
	require.NoError(t, err)
	assert.Equal(t, model.ReimportResult{Imported: 2, Skipped: 3}, result)

	// Nothing was actually queued.
	_, err = st.FindByDedupKey(ctx, entities[4].ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReimport_Idempotent(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	_, err := st.CreateEntity(ctx, model.ContentEntity{
		Type: model.TargetPlace, Title: "Alpha", Slug: "alpha",
	})
	require.NoError(t, err)

	first, err := svc.Reimport(ctx, model.TargetPlace, 50, false)
	require.NoError(t, err)
	assert.Equal(t, model.ReimportResult{Imported: 1}, first)

	second, err := svc.Reimport(ctx, model.TargetPlace, 50, false)
	require.NoError(t, err)
	assert.Equal(t, model.ReimportResult{Imported: 0, Skipped: 1}, second)
}
