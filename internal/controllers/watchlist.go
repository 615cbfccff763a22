package controllers

import (
	"context"
	"errors"

	"github.com/amaumene/requestarr/internal/config"
	"github.com/amaumene/requestarr/internal/models"
	"github.com/amaumene/requestarr/internal/services/plex"
	"github.com/sirupsen/logrus"
)

// WatchlistService is the watchlist surface the sync needs
type WatchlistService interface {
	GetWatchlist(ctx context.Context, token string) ([]plex.WatchlistItem, error)
}

// WatchlistController turns watch-listed titles into requests
type WatchlistController struct {
	plex        WatchlistService
	requestCtrl *RequestController
	users       []config.PlexUser
	logger      *logrus.Logger
}

// NewWatchlistController creates a new watchlist sync controller
func NewWatchlistController(plexClient WatchlistService, requestCtrl *RequestController, users []config.PlexUser, logger *logrus.Logger) *WatchlistController {
	return &WatchlistController{
		plex:        plexClient,
		requestCtrl: requestCtrl,
		users:       users,
		logger:      logger,
	}
}

// SyncAll polls every configured user's watchlist and requests unseen titles.
// One user's failure does not block the others.
func (c *WatchlistController) SyncAll(ctx context.Context) error {
	for _, user := range c.users {
		if err := c.syncUser(ctx, user); err != nil {
			c.logger.WithError(err).WithField("user", user.Name).Error("Watchlist sync failed")
		}
	}
	return nil
}

func (c *WatchlistController) syncUser(ctx context.Context, user config.PlexUser) error {
	items, err := c.plex.GetWatchlist(ctx, user.Token)
	if err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"user":  user.Name,
		"count": len(items),
	}).Debug("Retrieved watchlist")

	for _, item := range items {
		mediaType := models.MediaTypeMovie
		if item.Type == "show" {
			mediaType = models.MediaTypeTV
		}

		c.createIfMissing(ctx, user, item, mediaType, false)
		if user.Sync4K {
			c.createIfMissing(ctx, user, item, mediaType, true)
		}
	}

	return nil
}

func (c *WatchlistController) createIfMissing(ctx context.Context, user config.PlexUser, item plex.WatchlistItem, mediaType models.MediaType, is4k bool) {
	_, err := c.requestCtrl.Create(ctx, CreateRequestInput{
		MediaType:   mediaType,
		TmdbID:      item.TmdbID,
		Is4K:        is4k,
		RequestedBy: user.Name,
		AutoApprove: user.AutoApprove,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateRequest) {
			return
		}
		c.logger.WithError(err).WithFields(logrus.Fields{
			"user":  user.Name,
			"title": item.Title,
		}).Warn("Failed to request watchlist item")
	}
}
