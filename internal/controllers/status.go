package controllers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amaumene/requestarr/internal/models"
	"github.com/amaumene/requestarr/internal/notifications"
	"github.com/amaumene/requestarr/internal/services/tmdb"
	"github.com/sirupsen/logrus"
	"github.com/timshannon/bolthold"
)

// Metadata is the metadata provider surface the reconciler needs. The
// rolling variants serve stale-tolerant callers like notification
// enrichment, which runs from webhooks and sweep jobs.
type Metadata interface {
	GetMovie(ctx context.Context, id int) (*tmdb.Movie, error)
	GetSeries(ctx context.Context, id int) (*tmdb.Series, error)
	GetMovieRolling(ctx context.Context, id int) (*tmdb.Movie, error)
	GetSeriesRolling(ctx context.Context, id int) (*tmdb.Series, error)
}

// StatusController reconciles request lifecycle transitions into media
// state and notifications. It is invoked explicitly by the service layer
// after every successful request save or remove.
type StatusController struct {
	db       *models.Database
	movie    *MovieController
	series   *SeriesController
	metadata Metadata
	notifier notifications.Notifier
	logger   *logrus.Logger
}

// NewStatusController creates a new reconciler
func NewStatusController(db *models.Database, movie *MovieController, series *SeriesController, metadata Metadata, notifier notifications.Notifier, logger *logrus.Logger) *StatusController {
	return &StatusController{
		db:       db,
		movie:    movie,
		series:   series,
		metadata: metadata,
		notifier: notifier,
		logger:   logger,
	}
}

// HandleRequestSaved reconciles one insert or update of a request.
// old is nil on insert.
func (c *StatusController) HandleRequestSaved(ctx context.Context, old, updated *models.Request) error {
	newlyApproved := updated.Status == models.RequestStatusApproved &&
		(old == nil || old.Status != models.RequestStatusApproved)

	if newlyApproved {
		// Approval cascades to the child season requests
		if updated.MediaType == models.MediaTypeTV {
			if err := c.approveSeasons(updated.ID); err != nil {
				return err
			}
		}

		// Both coordinators run; each self-guards on request type
		if err := c.movie.Dispatch(ctx, updated); err != nil {
			return err
		}
		if err := c.series.Dispatch(ctx, updated); err != nil {
			return err
		}
	}

	media, err := c.db.GetMediaByID(updated.MediaID)
	if err != nil {
		return fmt.Errorf("failed to load media %d: %w", updated.MediaID, err)
	}

	switch updated.Status {
	case models.RequestStatusApproved:
		if newlyApproved {
			kind := notifications.TypeMediaApproved
			if old == nil {
				kind = notifications.TypeMediaAutoApproved
			}
			c.notifier.Send(kind, notifications.Payload{
				Subject:     media.Title,
				MediaID:     media.ID,
				RequestID:   updated.ID,
				RequestedBy: updated.RequestedBy,
				Is4K:        updated.Is4K,
			})
		}

		// Forward-only: never downgrade a tier that has progressed
		status := media.StatusForTier(updated.Is4K)
		if status != models.MediaStatusAvailable &&
			status != models.MediaStatusPartiallyAvailable &&
			status != models.MediaStatusProcessing {
			media.SetStatusForTier(updated.Is4K, models.MediaStatusProcessing)
			if err := c.db.UpdateMedia(media); err != nil {
				return err
			}
		}

	case models.RequestStatusDeclined:
		c.notifier.Send(notifications.TypeMediaDeclined, notifications.Payload{
			Subject:     media.Title,
			MediaID:     media.ID,
			RequestID:   updated.ID,
			RequestedBy: updated.RequestedBy,
			Is4K:        updated.Is4K,
		})
		return c.handleDeclined(updated, media)

	case models.RequestStatusCompleted:
		return c.handleCompleted(ctx, updated)
	}

	return nil
}

// HandleRequestRemoved cleans up tiers no request targets anymore
func (c *StatusController) HandleRequestRemoved(ctx context.Context, removed *models.Request) error {
	media, err := c.db.GetMediaByID(removed.MediaID)
	if err != nil {
		if errors.Is(err, bolthold.ErrNotFound) {
			return nil
		}
		return err
	}

	requests, err := c.db.GetRequestsByMediaID(media.ID)
	if err != nil {
		return err
	}

	changed := false
	for _, is4k := range []bool{false, true} {
		remaining := false
		for _, request := range requests {
			if request.Is4K == is4k {
				remaining = true
				break
			}
		}
		if !remaining && media.StatusForTier(is4k) != models.MediaStatusAvailable {
			media.SetStatusForTier(is4k, models.MediaStatusUnknown)
			changed = true
		}
	}

	if changed {
		c.logger.WithField("media_id", media.ID).Info("Reset orphaned media tiers")
		return c.db.UpdateMedia(media)
	}
	return nil
}

// RedispatchStale re-runs the coordinators for approved requests whose
// external add call was never confirmed before the cutoff
func (c *StatusController) RedispatchStale(ctx context.Context, cutoff time.Time) error {
	requests, err := c.db.GetUndispatchedApproved(cutoff)
	if err != nil {
		return fmt.Errorf("failed to find undispatched requests: %w", err)
	}

	for _, request := range requests {
		c.logger.WithFields(logrus.Fields{
			"request_id": request.ID,
			"media_id":   request.MediaID,
		}).Warn("Re-dispatching unconfirmed approval")

		if err := c.movie.Dispatch(ctx, request); err != nil {
			c.logger.WithError(err).Error("Movie re-dispatch failed")
		}
		if err := c.series.Dispatch(ctx, request); err != nil {
			c.logger.WithError(err).Error("Series re-dispatch failed")
		}
	}

	return nil
}

func (c *StatusController) approveSeasons(requestID uint64) error {
	seasons, err := c.db.GetSeasonRequestsByRequestID(requestID)
	if err != nil {
		return err
	}

	for _, season := range seasons {
		if season.Status == models.RequestStatusApproved {
			continue
		}
		season.Status = models.RequestStatusApproved
		if err := c.db.UpdateSeasonRequest(season); err != nil {
			return err
		}
	}
	return nil
}

func (c *StatusController) handleDeclined(request *models.Request, media *models.Media) error {
	switch request.MediaType {
	case models.MediaTypeMovie:
		if media.StatusForTier(request.Is4K) != models.MediaStatusDeleted {
			media.SetStatusForTier(request.Is4K, models.MediaStatusUnknown)
			return c.db.UpdateMedia(media)
		}

	case models.MediaTypeTV:
		// Only reset when this was the last pending request for the tier
		// and the tier never progressed past PENDING
		if media.StatusForTier(request.Is4K) != models.MediaStatusPending {
			return nil
		}
		requests, err := c.db.GetRequestsByMediaID(media.ID)
		if err != nil {
			return err
		}
		for _, other := range requests {
			if other.ID != request.ID && other.Is4K == request.Is4K &&
				other.Status == models.RequestStatusPending {
				return nil
			}
		}
		media.SetStatusForTier(request.Is4K, models.MediaStatusUnknown)
		return c.db.UpdateMedia(media)
	}

	return nil
}

// handleCompleted fires the availability notification once the media has
// actually converged for the request's tier
func (c *StatusController) handleCompleted(ctx context.Context, request *models.Request) error {
	// Re-read fresh rather than trusting the in-flight event payload
	media, err := c.db.GetMediaByID(request.MediaID)
	if err != nil {
		return err
	}

	available := false
	switch request.MediaType {
	case models.MediaTypeMovie:
		available = media.StatusForTier(request.Is4K) == models.MediaStatusAvailable

	case models.MediaTypeTV:
		seasons, err := c.db.GetSeasonRequestsByRequestID(request.ID)
		if err != nil {
			return err
		}
		available = len(seasons) > 0
		for _, season := range seasons {
			if media.SeasonStatusForTier(season.SeasonNumber, request.Is4K) != models.MediaStatusAvailable {
				available = false
				break
			}
		}
	}

	if !available || request.NotifiedAt != nil {
		return nil
	}

	payload := c.buildAvailablePayload(ctx, request, media)
	c.notifier.Send(notifications.TypeMediaAvailable, payload)

	now := time.Now()
	request.NotifiedAt = &now
	return c.db.UpdateRequest(request)
}

// buildAvailablePayload enriches the notification from the metadata
// provider on a best-effort basis
func (c *StatusController) buildAvailablePayload(ctx context.Context, request *models.Request, media *models.Media) notifications.Payload {
	payload := notifications.Payload{
		Subject:     media.Title,
		Message:     "Your request is now available",
		MediaID:     media.ID,
		RequestID:   request.ID,
		RequestedBy: request.RequestedBy,
		Is4K:        request.Is4K,
	}

	switch request.MediaType {
	case models.MediaTypeMovie:
		movie, err := c.metadata.GetMovieRolling(ctx, media.TmdbID)
		if err != nil {
			c.logger.WithError(err).Warn("Failed to enrich availability notification")
			return payload
		}
		payload.Subject = movie.Title
		payload.Message = movie.Overview
		payload.Image = movie.PosterPath

	case models.MediaTypeTV:
		series, err := c.metadata.GetSeriesRolling(ctx, media.TmdbID)
		if err != nil {
			c.logger.WithError(err).Warn("Failed to enrich availability notification")
			return payload
		}
		payload.Subject = series.Name
		payload.Message = series.Overview
		payload.Image = series.PosterPath
	}

	return payload
}
