package controllers

import (
	"context"
	"errors"
	"testing"

	"github.com/amaumene/requestarr/internal/models"
	"github.com/amaumene/requestarr/internal/notifications"
	"github.com/amaumene/requestarr/internal/services/sonarr"
	"github.com/amaumene/requestarr/internal/services/tmdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timshannon/bolthold"
)

func seriesMetadata(tvdbID int, animeKeyword bool) *tmdb.Series {
	series := &tmdb.Series{ID: 1399, Name: "Some Show"}
	series.ExternalIDs.TvdbID = tvdbID
	if animeKeyword {
		series.Keywords.Results = []tmdb.Keyword{{ID: tmdb.AnimeKeywordID, Name: "anime"}}
	}
	return series
}

func TestSeriesDispatchSendsWithRequestedSeasons(t *testing.T) {
	e := newEnv(t)
	e.metadata.series[1399] = seriesMetadata(121361, false)
	media := e.addSeriesMedia(t, 1399, 121361, 1, 2, 3)
	request := e.addRequest(t, media, models.RequestStatusApproved, false)
	for _, number := range []int{1, 3} {
		require.NoError(t, e.db.CreateSeasonRequest(&models.SeasonRequest{
			RequestID:    request.ID,
			SeasonNumber: number,
			Status:       models.RequestStatusApproved,
		}))
	}

	require.NoError(t, e.seriesCtrl.Dispatch(context.Background(), request))
	e.wait()

	calls := e.series.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 121361, calls[0].TvdbID)
	assert.Equal(t, sonarr.SeriesTypeStandard, calls[0].SeriesType)
	assert.Equal(t, 6, calls[0].QualityProfileID)
	assert.Equal(t, "/tv", calls[0].RootFolderPath)
	assert.True(t, calls[0].SeasonFolder)
	assert.True(t, calls[0].AddOptions.SearchForMissingEpisodes)
	require.Len(t, calls[0].Seasons, 2)
	assert.Equal(t, 1, calls[0].Seasons[0].SeasonNumber)
	assert.Equal(t, 3, calls[0].Seasons[1].SeasonNumber)
}

func TestSeriesDispatchAnimeUsesAnimeDefaults(t *testing.T) {
	e := newEnv(t)
	e.metadata.series[1399] = seriesMetadata(121361, true)
	media := e.addSeriesMedia(t, 1399, 121361, 1)
	request := e.addRequest(t, media, models.RequestStatusApproved, false)

	require.NoError(t, e.seriesCtrl.Dispatch(context.Background(), request))
	e.wait()

	calls := e.series.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, sonarr.SeriesTypeAnime, calls[0].SeriesType)
	assert.Equal(t, 7, calls[0].QualityProfileID)
	assert.Equal(t, "/anime", calls[0].RootFolderPath)
}

func TestSeriesDispatchMetadataFailureSurfaces(t *testing.T) {
	e := newEnv(t)
	media := e.addSeriesMedia(t, 1399, 121361, 1)
	request := e.addRequest(t, media, models.RequestStatusApproved, false)

	err := e.seriesCtrl.Dispatch(context.Background(), request)
	require.Error(t, err)
	e.wait()
	assert.Empty(t, e.series.calls())
}

func TestSeriesDispatchNoTvdbIDRemovesMediaAndRequest(t *testing.T) {
	e := newEnv(t)
	e.metadata.series[1399] = seriesMetadata(0, false)
	media := e.addSeriesMedia(t, 1399, 0, 1)
	request := e.addRequest(t, media, models.RequestStatusApproved, false)

	err := e.seriesCtrl.Dispatch(context.Background(), request)
	require.ErrorIs(t, err, ErrNoExternalID)
	e.wait()

	_, err = e.db.GetRequestByID(request.ID)
	assert.ErrorIs(t, err, bolthold.ErrNotFound)
	_, err = e.db.GetMediaByID(media.ID)
	assert.ErrorIs(t, err, bolthold.ErrNotFound)
	assert.Empty(t, e.series.calls())
}

func TestSeriesDispatchBackfillsTvdbIDFromMetadata(t *testing.T) {
	e := newEnv(t)
	e.metadata.series[1399] = seriesMetadata(121361, false)
	media := e.addSeriesMedia(t, 1399, 0, 1)
	request := e.addRequest(t, media, models.RequestStatusApproved, false)

	require.NoError(t, e.seriesCtrl.Dispatch(context.Background(), request))
	e.wait()

	calls := e.series.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 121361, calls[0].TvdbID)

	saved, err := e.db.GetMediaByID(media.ID)
	require.NoError(t, err)
	assert.Equal(t, 121361, saved.TvdbID)
}

func TestSeriesDispatchSkipsWhenTierAvailable(t *testing.T) {
	e := newEnv(t)
	e.metadata.series[1399] = seriesMetadata(121361, false)
	media := e.addSeriesMedia(t, 1399, 121361, 1)
	media.Status = models.MediaStatusAvailable
	require.NoError(t, e.db.UpdateMedia(media))
	request := e.addRequest(t, media, models.RequestStatusApproved, false)

	require.NoError(t, e.seriesCtrl.Dispatch(context.Background(), request))
	e.wait()

	assert.Empty(t, e.series.calls())
}

func TestSeriesDispatchFailureMarksRequestFailed(t *testing.T) {
	e := newEnv(t)
	e.metadata.series[1399] = seriesMetadata(121361, false)
	e.series.addErr = errors.New("sonarr unavailable")
	media := e.addSeriesMedia(t, 1399, 121361, 1)
	request := e.addRequest(t, media, models.RequestStatusApproved, false)

	require.NoError(t, e.seriesCtrl.Dispatch(context.Background(), request))
	e.wait()

	saved, err := e.db.GetRequestByID(request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusFailed, saved.Status)
	assert.Equal(t, 1, e.notifier.count(notifications.TypeMediaFailed))
}
