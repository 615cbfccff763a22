package controllers

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/amaumene/requestarr/internal/config"
	"github.com/amaumene/requestarr/internal/models"
	"github.com/amaumene/requestarr/internal/notifications"
	"github.com/amaumene/requestarr/internal/services/radarr"
	"github.com/sirupsen/logrus"
)

// MovieService is the subset of the Radarr API the movie coordinator needs
type MovieService interface {
	AddMovie(ctx context.Context, opts radarr.AddMovieOptions) (*radarr.Movie, error)
	GetTags(ctx context.Context) ([]radarr.Tag, error)
	CreateTag(ctx context.Context, label string) (*radarr.Tag, error)
	ClearCache(tmdbID int)
}

// MovieServiceFactory builds (or returns) the client for one server
type MovieServiceFactory func(server config.RadarrServer) (MovieService, error)

// MovieController dispatches approved movie requests to Radarr
type MovieController struct {
	db       *models.Database
	cfg      *config.Config
	notifier notifications.Notifier
	factory  MovieServiceFactory
	logger   *logrus.Logger

	mu       sync.Mutex
	services map[int]MovieService
	inflight sync.WaitGroup
}

// NewMovieController creates a new movie coordinator
func NewMovieController(db *models.Database, cfg *config.Config, notifier notifications.Notifier, logger *logrus.Logger) *MovieController {
	return &MovieController{
		db:       db,
		cfg:      cfg,
		notifier: notifier,
		factory: func(server config.RadarrServer) (MovieService, error) {
			return radarr.NewClient(server, logger)
		},
		logger:   logger,
		services: make(map[int]MovieService),
	}
}

// SetServiceFactory replaces the client factory
func (c *MovieController) SetServiceFactory(factory MovieServiceFactory) {
	c.factory = factory
}

// Wait blocks until all detached sends have finished
func (c *MovieController) Wait() {
	c.inflight.Wait()
}

func (c *MovieController) serviceFor(server config.RadarrServer) (MovieService, error) {
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

// Dispatch sends an approved movie request to the resolved Radarr server.
// The external add call runs detached; only resolution errors surface here.
func (c *MovieController) Dispatch(ctx context.Context, request *models.Request) error {
	if request.MediaType != models.MediaTypeMovie || request.Status != models.RequestStatusApproved {
		return nil
	}

	log := c.logger.WithFields(logrus.Fields{
		"request_id": request.ID,
		"media_id":   request.MediaID,
		"is_4k":      request.Is4K,
	})

	// 1. Resolve the destination server
	var server *config.RadarrServer
	if request.ServerID != nil {
		server = c.cfg.RadarrByID(*request.ServerID)
	} else {
		server = c.cfg.DefaultRadarr(request.Is4K)
	}
	if server == nil {
		log.Warn("No Radarr server available for request, skipping send")
		return nil
	}

	service, err := c.serviceFor(*server)
	if err != nil {
		log.WithError(err).Warn("Failed to build Radarr client, skipping send")
		return nil
	}

	// 2. Resolve profile and root folder: request override > server default
	profileID := server.ActiveProfileID
	if request.ProfileID != nil {
		profileID = *request.ProfileID
	}
	rootFolder := server.ActiveDirectory
	if request.RootFolder != "" {
		rootFolder = request.RootFolder
	}

	// 3. Tags: a request tag set fully replaces the server defaults
	tags := append([]int(nil), server.Tags...)
	if len(request.Tags) > 0 {
		tags = append([]int(nil), request.Tags...)
	}

	// 4. Optionally tag the requester; failure here never blocks the send
	if server.TagRequests {
		tags = c.appendRequesterTag(ctx, service, tags, request.RequestedBy, log)
	}

	// 5. Duplicate guard: skip the add entirely when the tier is available
	media, err := c.db.GetMediaByID(request.MediaID)
	if err != nil {
		return err
	}
	if media.StatusForTier(request.Is4K) == models.MediaStatusAvailable {
		log.Info("Media already available, skipping Radarr send")
		request.Status = models.RequestStatusApproved
		return c.db.UpdateRequest(request)
	}

	opts := radarr.AddMovieOptions{
		Title:               media.Title,
		TmdbID:              media.TmdbID,
		QualityProfileID:    profileID,
		RootFolderPath:      rootFolder,
		MinimumAvailability: server.MinimumAvailability,
		Monitored:           true,
		Tags:                tags,
	}
	opts.AddOptions.SearchForMovie = true

	// 7. The network call is detached from the triggering event
	c.inflight.Add(1)
	go c.send(service, server.ID, request.ID, opts)

	return nil
}

// appendRequesterTag finds or creates a tag labeled with the requester
// identity and appends it to the working set
func (c *MovieController) appendRequesterTag(ctx context.Context, service MovieService, tags []int, requestedBy string, log *logrus.Entry) []int {
	label := strings.ToLower(requestedBy)

	existing, err := service.GetTags(ctx)
	if err != nil {
		log.WithError(err).Warn("Failed to fetch Radarr tags, sending without requester tag")
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
func (c *MovieController) send(service MovieService, serverID int, requestID uint64, opts radarr.AddMovieOptions) {
	defer c.inflight.Done()
	defer service.ClearCache(opts.TmdbID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	log := c.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"tmdb_id":    opts.TmdbID,
	})

	movie, err := service.AddMovie(ctx, opts)

	request, readErr := c.db.GetRequestByID(requestID)
	if readErr != nil {
		log.WithError(readErr).Error("Request vanished during Radarr send")
		return
	}

	if err != nil {
		log.WithError(err).Error("Failed to send movie to Radarr")
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
		log.WithError(readErr).Error("Media vanished during Radarr send")
		return
	}

	media.SetServiceLinkage(request.Is4K, serverID, movie.ID, movie.TitleSlug)
	if err := c.db.UpdateMedia(media); err != nil {
		log.WithError(err).Error("Failed to persist Radarr linkage")
		return
	}

	now := time.Now()
	request.DispatchedAt = &now
	if err := c.db.UpdateRequest(request); err != nil {
		log.WithError(err).Error("Failed to persist dispatch marker")
		return
	}

	log.WithField("external_id", movie.ID).Info("Movie dispatched to Radarr")
}
