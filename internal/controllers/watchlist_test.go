package controllers

import (
	"context"
	"errors"
	"testing"

	"github.com/amaumene/requestarr/internal/config"
	"github.com/amaumene/requestarr/internal/models"
	"github.com/amaumene/requestarr/internal/services/plex"
	"github.com/amaumene/requestarr/internal/services/tmdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWatchlist struct {
	items map[string][]plex.WatchlistItem
	errs  map[string]error
}

func (w *fakeWatchlist) GetWatchlist(ctx context.Context, token string) ([]plex.WatchlistItem, error) {
	if err, ok := w.errs[token]; ok {
		return nil, err
	}
	return w.items[token], nil
}

func TestSyncAllCreatesRequestsForWatchlistedTitles(t *testing.T) {
	e := newEnv(t)
	e.metadata.movies[550] = &tmdb.Movie{ID: 550, Title: "Fight Club"}
	e.metadata.series[1399] = seriesMetadata(121361, false)

	watchlist := &fakeWatchlist{items: map[string][]plex.WatchlistItem{
		"token-alice": {
			{RatingKey: "1", Title: "Fight Club", Type: "movie", TmdbID: 550},
			{RatingKey: "2", Title: "Some Show", Type: "show", TmdbID: 1399},
		},
	}}
	users := []config.PlexUser{{Name: "alice", Token: "token-alice", AutoApprove: true}}
	ctrl := NewWatchlistController(watchlist, e.requestCtrl, users, newTestLogger())

	require.NoError(t, ctrl.SyncAll(context.Background()))
	e.wait()

	movie, err := e.db.GetMediaByTmdbID(550, models.MediaTypeMovie)
	require.NoError(t, err)
	requests, err := e.db.GetRequestsByMediaID(movie.ID)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, models.RequestStatusApproved, requests[0].Status)
	assert.Equal(t, "alice", requests[0].RequestedBy)

	show, err := e.db.GetMediaByTmdbID(1399, models.MediaTypeTV)
	require.NoError(t, err)
	requests, err = e.db.GetRequestsByMediaID(show.ID)
	require.NoError(t, err)
	assert.Len(t, requests, 1)
}

func TestSyncAllIsIdempotent(t *testing.T) {
	e := newEnv(t)
	e.metadata.movies[550] = &tmdb.Movie{ID: 550, Title: "Fight Club"}
	watchlist := &fakeWatchlist{items: map[string][]plex.WatchlistItem{
		"token-alice": {{RatingKey: "1", Title: "Fight Club", Type: "movie", TmdbID: 550}},
	}}
	users := []config.PlexUser{{Name: "alice", Token: "token-alice"}}
	ctrl := NewWatchlistController(watchlist, e.requestCtrl, users, newTestLogger())

	require.NoError(t, ctrl.SyncAll(context.Background()))
	require.NoError(t, ctrl.SyncAll(context.Background()))
	e.wait()

	movie, err := e.db.GetMediaByTmdbID(550, models.MediaTypeMovie)
	require.NoError(t, err)
	requests, err := e.db.GetRequestsByMediaID(movie.ID)
	require.NoError(t, err)
	assert.Len(t, requests, 1)
}

func TestSyncAll4KUsersGetBothTiers(t *testing.T) {
	e := newEnv(t)
	e.metadata.movies[550] = &tmdb.Movie{ID: 550, Title: "Fight Club"}
	watchlist := &fakeWatchlist{items: map[string][]plex.WatchlistItem{
		"token-alice": {{RatingKey: "1", Title: "Fight Club", Type: "movie", TmdbID: 550}},
	}}
	users := []config.PlexUser{{Name: "alice", Token: "token-alice", Sync4K: true}}
	ctrl := NewWatchlistController(watchlist, e.requestCtrl, users, newTestLogger())

	require.NoError(t, ctrl.SyncAll(context.Background()))
	e.wait()

	movie, err := e.db.GetMediaByTmdbID(550, models.MediaTypeMovie)
	require.NoError(t, err)
	requests, err := e.db.GetRequestsByMediaID(movie.ID)
	require.NoError(t, err)
	require.Len(t, requests, 2)
	assert.NotEqual(t, requests[0].Is4K, requests[1].Is4K)
}

func TestSyncAllOneUserFailureDoesNotBlockOthers(t *testing.T) {
	e := newEnv(t)
	e.metadata.movies[550] = &tmdb.Movie{ID: 550, Title: "Fight Club"}
	watchlist := &fakeWatchlist{
		items: map[string][]plex.WatchlistItem{
			"token-bob": {{RatingKey: "1", Title: "Fight Club", Type: "movie", TmdbID: 550}},
		},
		errs: map[string]error{"token-alice": errors.New("plex unavailable")},
	}
	users := []config.PlexUser{
		{Name: "alice", Token: "token-alice"},
		{Name: "bob", Token: "token-bob"},
	}
	ctrl := NewWatchlistController(watchlist, e.requestCtrl, users, newTestLogger())

	require.NoError(t, ctrl.SyncAll(context.Background()))
	e.wait()

	movie, err := e.db.GetMediaByTmdbID(550, models.MediaTypeMovie)
	require.NoError(t, err)
	requests, err := e.db.GetRequestsByMediaID(movie.ID)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, "bob", requests[0].RequestedBy)
}
