package controllers

import (
	"context"
	"errors"
	"testing"

	"github.com/amaumene/requestarr/internal/models"
	"github.com/amaumene/requestarr/internal/notifications"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMovieDispatchSendsToDefaultServer(t *testing.T) {
	e := newEnv(t)
	media := e.addMovieMedia(t, 550)
	request := e.addRequest(t, media, models.RequestStatusApproved, false)

	require.NoError(t, e.movieCtrl.Dispatch(context.Background(), request))
	e.wait()

	calls := e.movie.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 550, calls[0].TmdbID)
	assert.Equal(t, 4, calls[0].QualityProfileID)
	assert.Equal(t, "/movies", calls[0].RootFolderPath)
	assert.True(t, calls[0].AddOptions.SearchForMovie)

	// Confirmed dispatch is persisted on the request and the media linkage
	saved, err := e.db.GetRequestByID(request.ID)
	require.NoError(t, err)
	assert.NotNil(t, saved.DispatchedAt)

	savedMedia, err := e.db.GetMediaByID(media.ID)
	require.NoError(t, err)
	require.NotNil(t, savedMedia.ExternalServiceID)
	assert.Equal(t, "slug", savedMedia.ExternalServiceSlug)
}

func TestMovieDispatchIgnoresWrongTypeOrStatus(t *testing.T) {
	e := newEnv(t)
	media := e.addMovieMedia(t, 550)

	pending := e.addRequest(t, media, models.RequestStatusPending, false)
	require.NoError(t, e.movieCtrl.Dispatch(context.Background(), pending))

	show := e.addSeriesMedia(t, 1399, 121361, 1)
	tvRequest := e.addRequest(t, show, models.RequestStatusApproved, false)
	require.NoError(t, e.movieCtrl.Dispatch(context.Background(), tvRequest))

	e.wait()
	assert.Empty(t, e.movie.calls())
}

func TestMovieDispatchOverridesTakePrecedence(t *testing.T) {
	e := newEnv(t)
	media := e.addMovieMedia(t, 550)
	profile := 99
	request := e.addRequest(t, media, models.RequestStatusApproved, false)
	request.ProfileID = &profile
	request.RootFolder = "/custom"
	request.Tags = []int{42}
	require.NoError(t, e.db.UpdateRequest(request))

	require.NoError(t, e.movieCtrl.Dispatch(context.Background(), request))
	e.wait()

	calls := e.movie.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 99, calls[0].QualityProfileID)
	assert.Equal(t, "/custom", calls[0].RootFolderPath)
	assert.Equal(t, []int{42}, calls[0].Tags)
}

func TestMovieDispatch4KUsesTierDefault(t *testing.T) {
	e := newEnv(t)
	media := e.addMovieMedia(t, 550)
	request := e.addRequest(t, media, models.RequestStatusApproved, true)

	require.NoError(t, e.movieCtrl.Dispatch(context.Background(), request))
	e.wait()

	calls := e.movie.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 5, calls[0].QualityProfileID)
	assert.Equal(t, "/movies4k", calls[0].RootFolderPath)

	savedMedia, err := e.db.GetMediaByID(media.ID)
	require.NoError(t, err)
	require.NotNil(t, savedMedia.ServiceID4K)
	assert.Equal(t, 2, *savedMedia.ServiceID4K)
	assert.Nil(t, savedMedia.ServiceID)
}

func TestMovieDispatchNoServerIsNoOp(t *testing.T) {
	e := newEnv(t)
	e.cfg.Radarr = nil
	media := e.addMovieMedia(t, 550)
	request := e.addRequest(t, media, models.RequestStatusApproved, false)

	require.NoError(t, e.movieCtrl.Dispatch(context.Background(), request))
	e.wait()

	assert.Empty(t, e.movie.calls())
	saved, err := e.db.GetRequestByID(request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, saved.Status)
}

func TestMovieDispatchSkipsWhenTierAvailable(t *testing.T) {
	e := newEnv(t)
	media := e.addMovieMedia(t, 550)
	media.Status = models.MediaStatusAvailable
	require.NoError(t, e.db.UpdateMedia(media))
	request := e.addRequest(t, media, models.RequestStatusApproved, false)

	require.NoError(t, e.movieCtrl.Dispatch(context.Background(), request))
	e.wait()

	assert.Empty(t, e.movie.calls())
	saved, err := e.db.GetRequestByID(request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, saved.Status)
}

func TestMovieDispatchAvailable4KTierStillSends(t *testing.T) {
	e := newEnv(t)
	media := e.addMovieMedia(t, 550)
	media.Status = models.MediaStatusAvailable
	require.NoError(t, e.db.UpdateMedia(media))
	request := e.addRequest(t, media, models.RequestStatusApproved, true)

	require.NoError(t, e.movieCtrl.Dispatch(context.Background(), request))
	e.wait()

	assert.Len(t, e.movie.calls(), 1)
}

func TestMovieDispatchRequesterTag(t *testing.T) {
	e := newEnv(t)
	e.cfg.Radarr[0].TagRequests = true
	e.cfg.Radarr[0].Tags = []int{7}
	media := e.addMovieMedia(t, 550)
	request := e.addRequest(t, media, models.RequestStatusApproved, false)
	request.RequestedBy = "Alice"
	require.NoError(t, e.db.UpdateRequest(request))

	require.NoError(t, e.movieCtrl.Dispatch(context.Background(), request))
	e.wait()

	calls := e.movie.calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Tags, 2)
	assert.Equal(t, 7, calls[0].Tags[0])

	// The tag was created with the lowered requester identity
	tags, err := e.movie.GetTags(context.Background())
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "alice", tags[0].Label)
}

func TestMovieDispatchTagLookupFailureStillSends(t *testing.T) {
	e := newEnv(t)
	e.cfg.Radarr[0].TagRequests = true
	e.movie.tagsErr = true
	media := e.addMovieMedia(t, 550)
	request := e.addRequest(t, media, models.RequestStatusApproved, false)

	require.NoError(t, e.movieCtrl.Dispatch(context.Background(), request))
	e.wait()

	calls := e.movie.calls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].Tags)
}

func TestMovieDispatchFailureMarksRequestFailed(t *testing.T) {
	e := newEnv(t)
	e.movie.addErr = errors.New("radarr unavailable")
	media := e.addMovieMedia(t, 550)
	request := e.addRequest(t, media, models.RequestStatusApproved, false)

	require.NoError(t, e.movieCtrl.Dispatch(context.Background(), request))
	e.wait()

	saved, err := e.db.GetRequestByID(request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusFailed, saved.Status)
	assert.Nil(t, saved.DispatchedAt)
	assert.Equal(t, 1, e.notifier.count(notifications.TypeMediaFailed))
}

func TestMovieDispatchClearsServiceCache(t *testing.T) {
	e := newEnv(t)
	media := e.addMovieMedia(t, 550)
	request := e.addRequest(t, media, models.RequestStatusApproved, false)

	require.NoError(t, e.movieCtrl.Dispatch(context.Background(), request))
	e.wait()

	assert.Equal(t, []int{550}, e.movie.cleared)
}
