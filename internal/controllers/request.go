package controllers

import (
	"context"
	"errors"
	"fmt"

	"github.com/amaumene/requestarr/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/timshannon/bolthold"
)

// ErrDuplicateRequest is returned when an active request already targets the
// same title and tier
var ErrDuplicateRequest = errors.New("an active request for this title and tier already exists")

// ErrInvalidTransition is returned for request status changes the lifecycle
// does not allow
var ErrInvalidTransition = errors.New("invalid request status transition")

// CreateRequestInput carries everything needed to submit a request
type CreateRequestInput struct {
	MediaType   models.MediaType
	TmdbID      int
	Is4K        bool
	RequestedBy string
	AutoApprove bool

	// Series only; empty means all known seasons
	Seasons []int

	// Optional per-request overrides
	ServerID          *int
	ProfileID         *int
	RootFolder        string
	LanguageProfileID *int
	Tags              []int
}

// RequestController owns the request lifecycle. Every successful state
// transition is followed by an explicit reconciliation call.
type RequestController struct {
	db       *models.Database
	metadata Metadata
	status   *StatusController
	logger   *logrus.Logger
}

// NewRequestController creates a new request controller
func NewRequestController(db *models.Database, metadata Metadata, status *StatusController, logger *logrus.Logger) *RequestController {
	return &RequestController{
		db:       db,
		metadata: metadata,
		status:   status,
		logger:   logger,
	}
}

// Create submits a new request, creating the media record on first contact
func (c *RequestController) Create(ctx context.Context, input CreateRequestInput) (*models.Request, error) {
	media, err := c.findOrCreateMedia(ctx, input)
	if err != nil {
		return nil, err
	}

	existing, err := c.db.GetRequestsByMediaID(media.ID)
	if err != nil {
		return nil, err
	}
	for _, other := range existing {
		if other.Is4K == input.Is4K &&
			(other.Status == models.RequestStatusPending ||
				other.Status == models.RequestStatusApproved ||
				other.Status == models.RequestStatusCompleted) {
			return nil, ErrDuplicateRequest
		}
	}

	// First request for an unknown tier marks it pending
	if media.StatusForTier(input.Is4K) == models.MediaStatusUnknown {
		media.SetStatusForTier(input.Is4K, models.MediaStatusPending)
		if err := c.db.UpdateMedia(media); err != nil {
			return nil, err
		}
	}

	status := models.RequestStatusPending
	if input.AutoApprove {
		status = models.RequestStatusApproved
	}

	request := &models.Request{
		MediaID:           media.ID,
		MediaType:         input.MediaType,
		Is4K:              input.Is4K,
		Status:            status,
		RequestedBy:       input.RequestedBy,
		ServerID:          input.ServerID,
		ProfileID:         input.ProfileID,
		RootFolder:        input.RootFolder,
		LanguageProfileID: input.LanguageProfileID,
		Tags:              input.Tags,
	}
	if err := c.db.CreateRequest(request); err != nil {
		return nil, err
	}

	if input.MediaType == models.MediaTypeTV {
		seasons := input.Seasons
		if len(seasons) == 0 {
			for _, season := range media.Seasons {
				if season.SeasonNumber > 0 {
					seasons = append(seasons, season.SeasonNumber)
				}
			}
		}
		for _, number := range seasons {
			seasonRequest := &models.SeasonRequest{
				RequestID:    request.ID,
				SeasonNumber: number,
				Status:       status,
			}
			if err := c.db.CreateSeasonRequest(seasonRequest); err != nil {
				return nil, err
			}
		}
	}

	c.logger.WithFields(logrus.Fields{
		"request_id":   request.ID,
		"media_id":     media.ID,
		"title":        media.Title,
		"status":       string(status),
		"requested_by": input.RequestedBy,
	}).Info("Request created")

	if err := c.status.HandleRequestSaved(ctx, nil, request); err != nil {
		return nil, err
	}
	return request, nil
}

// Approve moves a pending request to approved
func (c *RequestController) Approve(ctx context.Context, id uint64) (*models.Request, error) {
	return c.transition(ctx, id, models.RequestStatusApproved, models.RequestStatusPending)
}

// Decline moves a pending or approved request to declined
func (c *RequestController) Decline(ctx context.Context, id uint64) (*models.Request, error) {
	return c.transition(ctx, id, models.RequestStatusDeclined,
		models.RequestStatusPending, models.RequestStatusApproved)
}

// Retry re-approves a failed request; retries are operator actions, never
// automatic
func (c *RequestController) Retry(ctx context.Context, id uint64) (*models.Request, error) {
	return c.transition(ctx, id, models.RequestStatusApproved, models.RequestStatusFailed)
}

// Remove deletes a request and reconciles the orphaned media tiers
func (c *RequestController) Remove(ctx context.Context, id uint64) error {
	request, err := c.db.GetRequestByID(id)
	if err != nil {
		return err
	}

	if err := c.db.DeleteRequest(id); err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"request_id": id,
		"media_id":   request.MediaID,
	}).Info("Request removed")

	return c.status.HandleRequestRemoved(ctx, request)
}

// MarkAvailable records availability reported by an acquisition service and
// completes the matching requests
func (c *RequestController) MarkAvailable(ctx context.Context, mediaID uint64, is4k bool, seasons []int) error {
	media, err := c.db.GetMediaByID(mediaID)
	if err != nil {
		return err
	}

	if media.MediaType == models.MediaTypeMovie || len(seasons) == 0 {
		media.SetStatusForTier(is4k, models.MediaStatusAvailable)
	} else {
		for _, number := range seasons {
			media.SetSeasonStatusForTier(number, is4k, models.MediaStatusAvailable)
		}
		allAvailable := true
		for _, season := range media.Seasons {
			if season.SeasonNumber == 0 {
				continue
			}
			if is4k && season.Status4K != models.MediaStatusAvailable {
				allAvailable = false
			}
			if !is4k && season.Status != models.MediaStatusAvailable {
				allAvailable = false
			}
		}
		if allAvailable {
			media.SetStatusForTier(is4k, models.MediaStatusAvailable)
		} else {
			media.SetStatusForTier(is4k, models.MediaStatusPartiallyAvailable)
		}
	}

	if err := c.db.UpdateMedia(media); err != nil {
		return err
	}

	requests, err := c.db.GetRequestsByMediaID(media.ID)
	if err != nil {
		return err
	}

	for _, request := range requests {
		if request.Is4K != is4k {
			continue
		}
		switch {
		case request.Status == models.RequestStatusApproved:
			old := *request
			request.Status = models.RequestStatusCompleted
			if err := c.db.UpdateRequest(request); err != nil {
				return err
			}
			if err := c.status.HandleRequestSaved(ctx, &old, request); err != nil {
				return err
			}
		case request.Status == models.RequestStatusCompleted && request.NotifiedAt == nil:
			// A previously partial completion may have converged now
			old := *request
			if err := c.status.HandleRequestSaved(ctx, &old, request); err != nil {
				return err
			}
		}
	}

	return nil
}

func (c *RequestController) transition(ctx context.Context, id uint64, target models.RequestStatus, allowed ...models.RequestStatus) (*models.Request, error) {
	request, err := c.db.GetRequestByID(id)
	if err != nil {
		return nil, err
	}

	permitted := false
	for _, status := range allowed {
		if request.Status == status {
			permitted = true
			break
		}
	}
	if !permitted {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, request.Status, target)
	}

	old := *request
	request.Status = target
	if err := c.db.UpdateRequest(request); err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"request_id": request.ID,
		"from":       string(old.Status),
		"to":         string(target),
	}).Info("Request status changed")

	if err := c.status.HandleRequestSaved(ctx, &old, request); err != nil {
		return request, err
	}
	return request, nil
}

func (c *RequestController) findOrCreateMedia(ctx context.Context, input CreateRequestInput) (*models.Media, error) {
	media, err := c.db.GetMediaByTmdbID(input.TmdbID, input.MediaType)
	if err == nil {
		return media, nil
	}
	if !errors.Is(err, bolthold.ErrNotFound) {
		return nil, err
	}

	media = &models.Media{
		TmdbID:    input.TmdbID,
		MediaType: input.MediaType,
		Status:    models.MediaStatusUnknown,
		Status4K:  models.MediaStatusUnknown,
	}

	switch input.MediaType {
	case models.MediaTypeMovie:
		movie, err := c.metadata.GetMovie(ctx, input.TmdbID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up movie metadata: %w", err)
		}
		media.Title = movie.Title
		media.ImdbID = movie.ImdbID

	case models.MediaTypeTV:
		series, err := c.metadata.GetSeries(ctx, input.TmdbID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up series metadata: %w", err)
		}
		media.Title = series.Name
		media.TvdbID = series.ExternalIDs.TvdbID
		media.ImdbID = series.ExternalIDs.ImdbID
		for _, season := range series.Seasons {
			if season.SeasonNumber > 0 {
				media.Seasons = append(media.Seasons, models.Season{
					SeasonNumber: season.SeasonNumber,
					Status:       models.MediaStatusUnknown,
					Status4K:     models.MediaStatusUnknown,
				})
			}
		}

	default:
		return nil, fmt.Errorf("unsupported media type %q", input.MediaType)
	}

	if err := c.db.CreateMedia(media); err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"media_id": media.ID,
		"tmdb_id":  media.TmdbID,
		"title":    media.Title,
	}).Info("Media created")

	return media, nil
}
