package controllers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/amaumene/requestarr/internal/config"
	"github.com/amaumene/requestarr/internal/models"
	"github.com/amaumene/requestarr/internal/notifications"
	"github.com/amaumene/requestarr/internal/services/sonarr"
	"github.com/amaumene/requestarr/internal/services/tmdb"
	"github.com/sirupsen/logrus"
)

// ErrNoExternalID is returned when a series cannot be mapped to a stable
// external identifier; there is nothing a retry can fix.
var ErrNoExternalID = errors.New("no external identifier resolvable")

// SeriesService is the subset of the Sonarr API the series coordinator needs
type SeriesService interface {
	AddSeries(ctx context.Context, opts sonarr.AddSeriesOptions) (*sonarr.Series, error)
	GetTags(ctx context.Context) ([]sonarr.Tag, error)
	CreateTag(ctx context.Context, label string) (*sonarr.Tag, error)
	ClearCache(tvdbID int)
}

// SeriesServiceFactory builds (or returns) the client for one server
type SeriesServiceFactory func(server config.SonarrServer) (SeriesService, error)

// SeriesMetadata is the metadata lookup the series coordinator needs
type SeriesMetadata interface {
	GetSeries(ctx context.Context, id int) (*tmdb.Series, error)
}

// SeriesController dispatches approved series requests to Sonarr
type SeriesController struct {
	db       *models.Database
	cfg      *config.Config
	metadata SeriesMetadata
	notifier notifications.Notifier
	factory  SeriesServiceFactory
	logger   *logrus.Logger

	mu       sync.Mutex
	services map[int]SeriesService
	inflight sync.WaitGroup
}

// NewSeriesController creates a new series coordinator
func NewSeriesController(db *models.Database, cfg *config.Config, metadata SeriesMetadata, notifier notifications.Notifier, logger *logrus.Logger) *SeriesController {
	return &SeriesController{
		db:       db,
		cfg:      cfg,
		metadata: metadata,
		notifier: notifier,
		factory: func(server config.SonarrServer) (SeriesService, error) {
			return sonarr.NewClient(server, logger)
		},
		logger:   logger,
		services: make(map[int]SeriesService),
	}
}

// SetServiceFactory replaces the client factory
func (c *SeriesController) SetServiceFactory(factory SeriesServiceFactory) {
	c.factory = factory
}

// Wait blocks until all detached sends have finished
func (c *SeriesController) Wait() {
	c.inflight.Wait()
}

func (c *SeriesController) serviceFor(server config.SonarrServer) (SeriesService, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if service, ok := c.services[server.ID]; ok {
		return service, nil
	}

	service, err := c.factory(server)
	if err != nil {
		return nil, err
	}
	c.services[server.ID] = service
	return service, nil
}

// Dispatch sends an approved series request to the resolved Sonarr server.
// The external add call runs detached; resolution errors surface here, and
// an unresolvable external identifier removes both the media and the request.
func (c *SeriesController) Dispatch(ctx context.Context, request *models.Request) error {
	if request.MediaType != models.MediaTypeTV || request.Status != models.RequestStatusApproved {
		return nil
	}

	log := c.logger.WithFields(logrus.Fields{
		"request_id": request.ID,
		"media_id":   request.MediaID,
		"is_4k":      request.Is4K,
	})

	// 1. Resolve the destination server
	var server *config.SonarrServer
	if request.ServerID != nil {
		server = c.cfg.SonarrByID(*request.ServerID)
	} else {
		server = c.cfg.DefaultSonarr(request.Is4K)
	}
	if server == nil {
		log.Warn("No Sonarr server available for request, skipping send")
		return nil
	}

	service, err := c.serviceFor(*server)
	if err != nil {
		log.WithError(err).Warn("Failed to build Sonarr client, skipping send")
		return nil
	}

	media, err := c.db.GetMediaByID(request.MediaID)
	if err != nil {
		return err
	}

	// Series type detection via the metadata provider's keywords
	series, err := c.metadata.GetSeries(ctx, media.TmdbID)
	if err != nil {
		return fmt.Errorf("failed to look up series metadata: %w", err)
	}
	isAnime := series.IsAnime()

	seriesType := sonarr.SeriesTypeStandard
	if isAnime {
		seriesType = sonarr.SeriesTypeAnime
	}

	// 2. Resolve profile, root folder and language profile:
	// request override > anime-specific default > server default
	profileID := server.ActiveProfileID
	rootFolder := server.ActiveDirectory
	languageProfileID := server.ActiveLanguageProfileID
	if isAnime {
		if server.ActiveAnimeProfileID != 0 {
			profileID = server.ActiveAnimeProfileID
		}
		if server.ActiveAnimeDirectory != "" {
			rootFolder = server.ActiveAnimeDirectory
		}
		if server.ActiveAnimeLanguageProfileID != 0 {
			languageProfileID = server.ActiveAnimeLanguageProfileID
		}
	}
	if request.ProfileID != nil {
		profileID = *request.ProfileID
	}
	if request.RootFolder != "" {
		rootFolder = request.RootFolder
	}
	if request.LanguageProfileID != nil {
		languageProfileID = *request.LanguageProfileID
	}

	// 3. Tags: a request tag set fully replaces the server defaults
	defaultTags := server.Tags
	if isAnime && len(server.AnimeTags) > 0 {
		defaultTags = server.AnimeTags
	}
	tags := append([]int(nil), defaultTags...)
	if len(request.Tags) > 0 {
		tags = append([]int(nil), request.Tags...)
	}

	// 4. Optionally tag the requester; failure here never blocks the send
	if server.TagRequests {
		tags = c.appendRequesterTag(ctx, service, tags, request.RequestedBy, log)
	}

	// 5. Duplicate guard: skip the add entirely when the tier is available
	if media.StatusForTier(request.Is4K) == models.MediaStatusAvailable {
		log.Info("Media already available, skipping Sonarr send")
		request.Status = models.RequestStatusApproved
		return c.db.UpdateRequest(request)
	}

	// 6. Without a TVDB id there is nothing a retry can fix
	tvdbID := media.TvdbID
	if tvdbID == 0 {
		tvdbID = series.ExternalIDs.TvdbID
	}
	if tvdbID == 0 {
		log.Error("Series has no TVDB id, removing media and request")
		if err := c.db.DeleteRequest(request.ID); err != nil {
			log.WithError(err).Error("Failed to delete request")
		}
		if err := c.db.DeleteMedia(media.ID); err != nil {
			log.WithError(err).Error("Failed to delete media")
		}
		return fmt.Errorf("series %q: %w", media.Title, ErrNoExternalID)
	}
	if media.TvdbID == 0 {
		media.TvdbID = tvdbID
		if err := c.db.UpdateMedia(media); err != nil {
			return err
		}
	}

	seasonRequests, err := c.db.GetSeasonRequestsByRequestID(request.ID)
	if err != nil {
		return err
	}
	seasons := make([]sonarr.AddSeriesSeason, 0, len(seasonRequests))
	for _, season := range seasonRequests {
		seasons = append(seasons, sonarr.AddSeriesSeason{
			SeasonNumber: season.SeasonNumber,
			Monitored:    true,
		})
	}

	opts := sonarr.AddSeriesOptions{
		Title:             media.Title,
		TvdbID:            tvdbID,
		QualityProfileID:  profileID,
		LanguageProfileID: languageProfileID,
		RootFolderPath:    rootFolder,
		SeriesType:        seriesType,
		SeasonFolder:      server.EnableSeasonFolders,
		Monitored:         true,
		Tags:              tags,
		Seasons:           seasons,
	}
	opts.AddOptions.SearchForMissingEpisodes = true

	// 7. The network call is detached from the triggering event
	c.inflight.Add(1)
	go c.send(service, server.ID, request.ID, opts)

	return nil
}

// appendRequesterTag finds or creates a tag labeled with the requester
// identity and appends it to the working set
func (c *SeriesController) appendRequesterTag(ctx context.Context, service SeriesService, tags []int, requestedBy string, log *logrus.Entry) []int {
	label := strings.ToLower(requestedBy)

	existing, err := service.GetTags(ctx)
	if err != nil {
		log.WithError(err).Warn("Failed to fetch Sonarr tags, sending without requester tag")
		return tags
	}

	var tagID int
	for _, tag := range existing {
		if tag.Label == label {
			tagID = tag.ID
			break
		}
	}

	if tagID == 0 {
		created, err := service.CreateTag(ctx, label)
		if err != nil {
			log.WithError(err).Warn("Failed to create requester tag, sending without it")
			return tags
		}
		tagID = created.ID
	}

	for _, id := range tags {
		if id == tagID {
			return tags
		}
	}
	return append(tags, tagID)
}

// send performs the add call and converts its outcome into persisted state.
// Errors here are terminal to this dispatch only.
func (c *SeriesController) send(service SeriesService, serverID int, requestID uint64, opts sonarr.AddSeriesOptions) {
	defer c.inflight.Done()
	defer service.ClearCache(opts.TvdbID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	log := c.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"tvdb_id":    opts.TvdbID,
	})

	series, err := service.AddSeries(ctx, opts)

	request, readErr := c.db.GetRequestByID(requestID)
	if readErr != nil {
		log.WithError(readErr).Error("Request vanished during Sonarr send")
		return
	}

	if err != nil {
		log.WithError(err).Error("Failed to send series to Sonarr")
		request.Status = models.RequestStatusFailed
		if updateErr := c.db.UpdateRequest(request); updateErr != nil {
			log.WithError(updateErr).Error("Failed to mark request as failed")
		}
		c.notifier.Send(notifications.TypeMediaFailed, notifications.Payload{
			Subject:     opts.Title,
			Message:     err.Error(),
			MediaID:     request.MediaID,
			RequestID:   request.ID,
			RequestedBy: request.RequestedBy,
			Is4K:        request.Is4K,
		})
		return
	}

	media, readErr := c.db.GetMediaByID(request.MediaID)
	if readErr != nil {
		log.WithError(readErr).Error("Media vanished during Sonarr send")
		return
	}

	media.SetServiceLinkage(request.Is4K, serverID, series.ID, series.TitleSlug)
	if err := c.db.UpdateMedia(media); err != nil {
		log.WithError(err).Error("Failed to persist Sonarr linkage")
		return
	}

	now := time.Now()
	request.DispatchedAt = &now
	if err := c.db.UpdateRequest(request); err != nil {
		log.WithError(err).Error("Failed to persist dispatch marker")
		return
	}

	log.WithField("external_id", series.ID).Info("Series dispatched to Sonarr")
}
