package pipeline

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/placefeed/curator/internal/model"
	"github.com/placefeed/curator/pkg/places"
	"github.com/placefeed/curator/pkg/wiki"
)

func enrichRecord(target model.TargetType) model.IngestRecord {
	return model.IngestRecord{
		ID:         "rec-1",
		Stage:      model.StageClassified,
		TargetType: target,
		RawData:    model.RawData{Name: "Fredericksburg", Region: "TX"},
	}
}

func newEnrichTask() (*enrichTask, *mockWikiClient, *mockCensusClient, *mockPlacesClient) {
	w := new(mockWikiClient)
	c := new(mockCensusClient)
	p := new(mockPlacesClient)
	return &enrichTask{wiki: w, census: c, places: p}, w, c, p
}

func TestEnrich_LocalityGetsSummaryAndPopulation(t *testing.T) {
	task, w, c, p := newEnrichTask()
	w.On("Summary", mock.Anything, "Fredericksburg").
		Return(&wiki.PageSummary{Title: "Fredericksburg", Extract: "A town in the Texas Hill Country."}, nil)
	c.On("Population", mock.Anything, "Fredericksburg", "TX").Return(11245, true, nil)

	outcome, err := task.Run(context.Background(), enrichRecord(model.TargetLocality))
	require.NoError(t, err)

	assert.Equal(t, model.StageEnriched, outcome.NextStage)
	require.NotNil(t, outcome.Patch.Summary)
	assert.Equal(t, "A town in the Texas Hill Country.", *outcome.Patch.Summary)
	require.NotNil(t, outcome.Patch.Population)
	assert.Equal(t, 11245, *outcome.Patch.Population)
	assert.Nil(t, outcome.Patch.Rating)
	p.AssertNotCalled(t, "TextSearch", mock.Anything, mock.Anything)
}

func TestEnrich_PlaceGetsRatings(t *testing.T) {
	task, w, c, p := newEnrichTask()
	w.On("Summary", mock.Anything, mock.Anything).Return(nil, nil)
	p.On("TextSearch", mock.Anything, "Fredericksburg TX").
		Return(&places.TextSearchResponse{Places: []places.Place{
			{DisplayName: places.DisplayName{Text: "Fredericksburg"}, Rating: 4.6, UserRatingCount: 812},
		}}, nil)

	outcome, err := task.Run(context.Background(), enrichRecord(model.TargetPlace))
	require.NoError(t, err)

	require.NotNil(t, outcome.Patch.Rating)
	assert.Equal(t, 4.6, *outcome.Patch.Rating)
	require.NotNil(t, outcome.Patch.RatingCount)
	assert.Equal(t, 812, *outcome.Patch.RatingCount)
	c.AssertNotCalled(t, "Population", mock.Anything, mock.Anything, mock.Anything)
}

func TestEnrich_PartialFailureStillAdvances(t *testing.T) {
	task, w, c, _ := newEnrichTask()
	w.On("Summary", mock.Anything, mock.Anything).Return(nil, eris.New("gateway timeout"))
	c.On("Population", mock.Anything, mock.Anything, mock.Anything).Return(9800, true, nil)

	outcome, err := task.Run(context.Background(), enrichRecord(model.TargetLocality))
	require.NoError(t, err)

	assert.Equal(t, model.StageEnriched, outcome.NextStage)
	assert.Nil(t, outcome.Patch.Summary)
	require.NotNil(t, outcome.Patch.Population)
	assert.Equal(t, 9800, *outcome.Patch.Population)
}

func TestEnrich_AllConnectorsFailing(t *testing.T) {
	task, w, c, _ := newEnrichTask()
	w.On("Summary", mock.Anything, mock.Anything).Return(nil, eris.New("unreachable"))
	c.On("Population", mock.Anything, mock.Anything, mock.Anything).Return(0, false, eris.New("unreachable"))

	_, err := task.Run(context.Background(), enrichRecord(model.TargetLocality))
	require.Error(t, err)

	var cerr *ConnectorError
	require.ErrorAs(t, err, &cerr)
	assert.True(t, cerr.Transient())
}

func TestEnrich_NotFoundIsNotFailure(t *testing.T) {
	task, w, c, _ := newEnrichTask()
	// A missing page or census row is a successful lookup with no data.
	w.On("Summary", mock.Anything, mock.Anything).Return(nil, nil)
	c.On("Population", mock.Anything, mock.Anything, mock.Anything).Return(0, false, nil)

	outcome, err := task.Run(context.Background(), enrichRecord(model.TargetLocality))
	require.NoError(t, err)

	assert.Equal(t, model.StageEnriched, outcome.NextStage)
	assert.Nil(t, outcome.Patch.Summary)
	assert.Nil(t, outcome.Patch.Population)
}

func TestEnrich_EventOnlyQueriesSummary(t *testing.T) {
	task, w, c, p := newEnrichTask()
	w.On("Summary", mock.Anything, mock.Anything).
		Return(&wiki.PageSummary{Extract: "An annual festival."}, nil)

	outcome, err := task.Run(context.Background(), enrichRecord(model.TargetEvent))
	require.NoError(t, err)

	require.NotNil(t, outcome.Patch.Summary)
	c.AssertNotCalled(t, "Population", mock.Anything, mock.Anything, mock.Anything)
	p.AssertNotCalled(t, "TextSearch", mock.Anything, mock.Anything)
}
