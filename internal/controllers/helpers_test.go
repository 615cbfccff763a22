package controllers

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/amaumene/requestarr/internal/config"
	"github.com/amaumene/requestarr/internal/models"
	"github.com/amaumene/requestarr/internal/notifications"
	"github.com/amaumene/requestarr/internal/services/radarr"
	"github.com/amaumene/requestarr/internal/services/sonarr"
	"github.com/amaumene/requestarr/internal/services/tmdb"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *models.Database {
	t.Helper()
	db, err := models.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type fakeMovieService struct {
	mu       sync.Mutex
	addCalls []radarr.AddMovieOptions
	addErr   error
	tags     []radarr.Tag
	tagsErr  bool
	nextID   int
	cleared  []int
}

func (s *fakeMovieService) AddMovie(ctx context.Context, opts radarr.AddMovieOptions) (*radarr.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addCalls = append(s.addCalls, opts)
	if s.addErr != nil {
		return nil, s.addErr
	}
	s.nextID++
	return &radarr.Movie{ID: s.nextID + 100, Title: opts.Title, TitleSlug: "slug", TmdbID: opts.TmdbID}, nil
}

func (s *fakeMovieService) GetTags(ctx context.Context) ([]radarr.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tagsErr {
		return nil, errors.New("tags unavailable")
	}
	return append([]radarr.Tag(nil), s.tags...), nil
}

func (s *fakeMovieService) CreateTag(ctx context.Context, label string) (*radarr.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tag := radarr.Tag{ID: len(s.tags) + 1000, Label: label}
	s.tags = append(s.tags, tag)
	return &tag, nil
}

func (s *fakeMovieService) ClearCache(tmdbID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared = append(s.cleared, tmdbID)
}

func (s *fakeMovieService) calls() []radarr.AddMovieOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]radarr.AddMovieOptions(nil), s.addCalls...)
}

type fakeSeriesService struct {
	mu       sync.Mutex
	addCalls []sonarr.AddSeriesOptions
	addErr   error
	tags     []sonarr.Tag
	nextID   int
	cleared  []int
}

func (s *fakeSeriesService) AddSeries(ctx context.Context, opts sonarr.AddSeriesOptions) (*sonarr.Series, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addCalls = append(s.addCalls, opts)
	if s.addErr != nil {
		return nil, s.addErr
	}
	s.nextID++
	return &sonarr.Series{ID: s.nextID + 200, Title: opts.Title, TitleSlug: "slug", TvdbID: opts.TvdbID}, nil
}

func (s *fakeSeriesService) GetTags(ctx context.Context) ([]sonarr.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sonarr.Tag(nil), s.tags...), nil
}

func (s *fakeSeriesService) CreateTag(ctx context.Context, label string) (*sonarr.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tag := sonarr.Tag{ID: len(s.tags) + 2000, Label: label}
	s.tags = append(s.tags, tag)
	return &tag, nil
}

func (s *fakeSeriesService) ClearCache(tvdbID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared = append(s.cleared, tvdbID)
}

func (s *fakeSeriesService) calls() []sonarr.AddSeriesOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sonarr.AddSeriesOptions(nil), s.addCalls...)
}

type fakeMetadata struct {
	movies      map[int]*tmdb.Movie
	series      map[int]*tmdb.Series
	rollingGets int
}

func (m *fakeMetadata) GetMovie(ctx context.Context, id int) (*tmdb.Movie, error) {
	if movie, ok := m.movies[id]; ok {
		return movie, nil
	}
	return nil, errors.New("movie not found")
}

func (m *fakeMetadata) GetSeries(ctx context.Context, id int) (*tmdb.Series, error) {
	if series, ok := m.series[id]; ok {
		return series, nil
	}
	return nil, errors.New("series not found")
}

func (m *fakeMetadata) GetMovieRolling(ctx context.Context, id int) (*tmdb.Movie, error) {
	m.rollingGets++
	return m.GetMovie(ctx, id)
}

func (m *fakeMetadata) GetSeriesRolling(ctx context.Context, id int) (*tmdb.Series, error) {
	m.rollingGets++
	return m.GetSeries(ctx, id)
}

type notifiedEvent struct {
	kind    notifications.Type
	payload notifications.Payload
}

type recordNotifier struct {
	mu     sync.Mutex
	events []notifiedEvent
}

func (n *recordNotifier) Send(kind notifications.Type, payload notifications.Payload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notifiedEvent{kind: kind, payload: payload})
}

func (n *recordNotifier) count(kind notifications.Type) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, event := range n.events {
		if event.kind == kind {
			total++
		}
	}
	return total
}

// env wires the full controller stack against fakes
type env struct {
	db       *models.Database
	cfg      *config.Config
	movie    *fakeMovieService
	series   *fakeSeriesService
	metadata *fakeMetadata
	notifier *recordNotifier

	movieCtrl   *MovieController
	seriesCtrl  *SeriesController
	statusCtrl  *StatusController
	requestCtrl *RequestController
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		db:     newTestDB(t),
		movie:  &fakeMovieService{},
		series: &fakeSeriesService{},
		metadata: &fakeMetadata{
			movies: make(map[int]*tmdb.Movie),
			series: make(map[int]*tmdb.Series),
		},
		notifier: &recordNotifier{},
	}
	e.cfg = &config.Config{
		Radarr: []config.RadarrServer{
			{ID: 1, Name: "main", URL: "http://radarr", APIKey: "key", IsDefault: true, ActiveProfileID: 4, ActiveDirectory: "/movies"},
			{ID: 2, Name: "uhd", URL: "http://radarr4k", APIKey: "key", Is4K: true, IsDefault: true, ActiveProfileID: 5, ActiveDirectory: "/movies4k"},
		},
		Sonarr: []config.SonarrServer{
			{ID: 1, Name: "main", URL: "http://sonarr", APIKey: "key", IsDefault: true, ActiveProfileID: 6, ActiveDirectory: "/tv", ActiveLanguageProfileID: 1, ActiveAnimeProfileID: 7, ActiveAnimeDirectory: "/anime", EnableSeasonFolders: true},
		},
	}

	logger := newTestLogger()
	e.movieCtrl = NewMovieController(e.db, e.cfg, e.notifier, logger)
	e.movieCtrl.SetServiceFactory(func(server config.RadarrServer) (MovieService, error) {
		return e.movie, nil
	})
	e.seriesCtrl = NewSeriesController(e.db, e.cfg, e.metadata, e.notifier, logger)
	e.seriesCtrl.SetServiceFactory(func(server config.SonarrServer) (SeriesService, error) {
		return e.series, nil
	})
	e.statusCtrl = NewStatusController(e.db, e.movieCtrl, e.seriesCtrl, e.metadata, e.notifier, logger)
	e.requestCtrl = NewRequestController(e.db, e.metadata, e.statusCtrl, logger)
	return e
}

// wait joins all detached sends
func (e *env) wait() {
	e.movieCtrl.Wait()
	e.seriesCtrl.Wait()
}

func (e *env) addMovieMedia(t *testing.T, tmdbID int) *models.Media {
	t.Helper()
	media := &models.Media{
		TmdbID:    tmdbID,
		MediaType: models.MediaTypeMovie,
		Title:     "Some Movie",
		Status:    models.MediaStatusUnknown,
		Status4K:  models.MediaStatusUnknown,
	}
	require.NoError(t, e.db.CreateMedia(media))
	return media
}

func (e *env) addSeriesMedia(t *testing.T, tmdbID, tvdbID int, seasons ...int) *models.Media {
	t.Helper()
	media := &models.Media{
		TmdbID:    tmdbID,
		TvdbID:    tvdbID,
		MediaType: models.MediaTypeTV,
		Title:     "Some Show",
		Status:    models.MediaStatusUnknown,
		Status4K:  models.MediaStatusUnknown,
	}
	for _, number := range seasons {
		media.Seasons = append(media.Seasons, models.Season{
			SeasonNumber: number,
			Status:       models.MediaStatusUnknown,
			Status4K:     models.MediaStatusUnknown,
		})
	}
	require.NoError(t, e.db.CreateMedia(media))
	return media
}

func (e *env) addRequest(t *testing.T, media *models.Media, status models.RequestStatus, is4k bool) *models.Request {
	t.Helper()
	request := &models.Request{
		MediaID:     media.ID,
		MediaType:   media.MediaType,
		Is4K:        is4k,
		Status:      status,
		RequestedBy: "alice",
	}
	require.NoError(t, e.db.CreateRequest(request))
	return request
}
