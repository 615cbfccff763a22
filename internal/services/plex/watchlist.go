// Package plex polls per-user Plex watchlists with conditional revalidation.
package plex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/amaumene/requestarr/internal/rest"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	watchlistBaseURL = "https://metadata.provider.plex.tv"
	discoverBaseURL  = "https://discover.provider.plex.tv"

	detailTTL = 5 * time.Minute
)

// WatchlistItem is a watch-listed title resolved to an actionable identifier
type WatchlistItem struct {
	RatingKey string
	Title     string
	Type      string // "movie" or "show"
	TmdbID    int
}

// Client polls watchlists and resolves item details
type Client struct {
	watchlist *rest.Client
	discover  *rest.Client
	// per-user {etag, last known response}
	etags  *gocache.Cache
	logger *logrus.Logger
}

type watchlistEntry struct {
	etag     string
	response []byte
}

// NewClient creates a new watchlist client against the Plex metadata hosts
func NewClient(logger *logrus.Logger) *Client {
	return NewClientForURLs(watchlistBaseURL, discoverBaseURL, logger)
}

// NewClientForURLs creates a watchlist client against specific hosts
func NewClientForURLs(watchlistURL, discoverURL string, logger *logrus.Logger) *Client {
	return &Client{
		watchlist: rest.NewClient("plex-watchlist", watchlistURL, logger,
			rest.WithRateLimit(rest.RateLimit{MaxRequests: 100, WindowSeconds: 10})),
		discover: rest.NewClient("plex-discover", discoverURL, logger,
			rest.WithRateLimit(rest.RateLimit{MaxRequests: 100, WindowSeconds: 10})),
		etags:  gocache.New(gocache.NoExpiration, 0),
		logger: logger,
	}
}

type mediaContainer struct {
	MediaContainer struct {
		Metadata []struct {
			RatingKey string `json:"ratingKey"`
			Title     string `json:"title"`
			Type      string `json:"type"`
			Guid      []struct {
				ID string `json:"id"`
			} `json:"Guid"`
		} `json:"Metadata"`
	} `json:"MediaContainer"`
}

// GetWatchlist retrieves the user's watchlist, revalidating with the stored
// ETag and resolving per-item details concurrently. Items with no TMDB
// mapping are filtered out; items whose detail lookup returns 404 are
// dropped with a warning. Any other detail failure aborts the whole batch.
func (c *Client) GetWatchlist(ctx context.Context, token string) ([]WatchlistItem, error) {
	params := url.Values{"X-Plex-Token": []string{token}}

	var entry watchlistEntry
	if cached, ok := c.etags.Get(token); ok {
		entry = cached.(watchlistEntry)
	}

	body, etag, notModified, err := c.watchlist.ConditionalGet(ctx, "/library/sections/watchlist/all", params, entry.etag)
	if err != nil {
		return nil, fmt.Errorf("failed to get watchlist: %w", err)
	}

	if notModified {
		c.logger.Debug("Watchlist unchanged")
		body = entry.response
	} else {
		c.etags.Set(token, watchlistEntry{etag: etag, response: body}, gocache.NoExpiration)
	}

	var container mediaContainer
	if err := json.Unmarshal(body, &container); err != nil {
		return nil, fmt.Errorf("failed to decode watchlist: %w", err)
	}

	metadata := container.MediaContainer.Metadata
	items := make([]*WatchlistItem, len(metadata))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, meta := range metadata {
		i, meta := i, meta
		group.Go(func() error {
			item, err := c.getItemDetail(groupCtx, token, meta.RatingKey)
			if err != nil {
				if rest.IsNotFound(err) {
					c.logger.WithFields(logrus.Fields{
						"rating_key": meta.RatingKey,
						"title":      meta.Title,
					}).Warn("Watchlist item no longer exists, skipping")
					return nil
				}
				return err
			}
			items[i] = item
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("failed to resolve watchlist items: %w", err)
	}

	// Drop missing items and items without an actionable identifier
	result := make([]WatchlistItem, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		if item.TmdbID == 0 {
			c.logger.WithField("title", item.Title).Debug("Watchlist item has no TMDB mapping, skipping")
			continue
		}
		result = append(result, *item)
	}

	return result, nil
}

// getItemDetail fetches one item's metadata via the rolling cache
func (c *Client) getItemDetail(ctx context.Context, token, ratingKey string) (*WatchlistItem, error) {
	params := url.Values{"X-Plex-Token": []string{token}}
	endpoint := "/library/metadata/" + ratingKey

	var container mediaContainer
	if err := c.discover.GetRolling(ctx, endpoint, params, detailTTL, &container); err != nil {
		return nil, err
	}

	if len(container.MediaContainer.Metadata) == 0 {
		return nil, &rest.StatusError{Code: 404, Body: "empty metadata container"}
	}

	meta := container.MediaContainer.Metadata[0]
	item := &WatchlistItem{
		RatingKey: ratingKey,
		Title:     meta.Title,
		Type:      meta.Type,
	}

	for _, guid := range meta.Guid {
		if raw, ok := strings.CutPrefix(guid.ID, "tmdb://"); ok {
			if id, err := strconv.Atoi(raw); err == nil {
				item.TmdbID = id
			}
		}
	}

	return item, nil
}
